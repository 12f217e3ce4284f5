package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dualview/dualview/mods/layers"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

func printRecords(cmd *cobra.Command, recs []*layers.Record) error {
	format, _ := cmd.Flags().GetString("format")
	out := cmd.OutOrStdout()
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	case "yaml", "yml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(recs); err != nil {
			return err
		}
		return enc.Close()
	case "table", "":
		boxStyle, _ := cmd.Flags().GetString("box-style")
		w := table.NewWriter()
		w.SetOutputMirror(out)
		w.SetStyle(tableStyle(boxStyle))
		if width := terminalWidth(out); width > 0 {
			w.SetAllowedRowLength(width)
		}
		w.AppendHeader(table.Row{"#", "ID", "TYPE", "TITLE", "HANDLE AS", "ACTIVE", "INDEX", "OPACITY", "PROJECTION"})
		for i, r := range recs {
			w.AppendRow(table.Row{i + 1, r.ID, r.Type, r.Title, r.HandleAs, r.IsActive, r.DisplayIndex, r.Opacity, r.MappingOptions.Projection})
		}
		w.AppendFooter(table.Row{"", fmt.Sprintf("%d layers", len(recs))})
		w.Render()
		return nil
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func tableStyle(name string) table.Style {
	switch name {
	case "bold":
		return table.StyleBold
	case "double":
		return table.StyleDouble
	case "light":
		return table.StyleLight
	case "round":
		return table.StyleRounded
	default:
		return table.StyleDefault
	}
}

// terminalWidth is zero unless out is an interactive terminal.
func terminalWidth(out io.Writer) int {
	f, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0
	}
	if width, _, err := term.GetSize(int(f.Fd())); err == nil {
		return width
	}
	return 0
}
