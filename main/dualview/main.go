package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dualview/dualview/mods"
	"github.com/dualview/dualview/mods/config"
	"github.com/dualview/dualview/mods/drawing"
	"github.com/dualview/dualview/mods/fetch"
	"github.com/dualview/dualview/mods/geo"
	"github.com/dualview/dualview/mods/layers"
	"github.com/dualview/dualview/mods/logging"
	"github.com/dualview/dualview/mods/server"
	"github.com/dualview/dualview/mods/viewer"
	"github.com/spf13/cobra"
)

func main() {
	cobra.CheckErr(NewCmd().ExecuteContext(context.Background()))
}

func NewCmd() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "dualview [command] [flags] [args]",
		Short:         "dualview keeps a flat map and a globe in sync",
		Version:       mods.VersionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Print(cmd.UsageString())
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve [flags]",
		Short: "Load every source and serve the HTTP API",
		RunE:  doServe,
	}
	serveCmd.Flags().StringP("config", "c", "", "`<path>` to the HCL configuration")
	serveCmd.Flags().String("listen", "", "`<host:port>` overriding http.listen")
	addViewFlags(serveCmd)

	layersCmd := &cobra.Command{
		Use:   "layers [flags]",
		Short: "Load every source and print the merged registry",
		RunE:  doLayers,
	}
	layersCmd.Flags().StringP("config", "c", "", "`<path>` to the HCL configuration")
	layersCmd.Flags().StringP("format", "f", "table", "output `<format>` table, json or yaml")
	layersCmd.Flags().StringP("type", "t", "", "only print layers of `<type>` basemap, data or reference")
	layersCmd.Flags().String("box-style", "light", "table `<style>` default, bold, double, light or round")

	ingestCmd := &cobra.Command{
		Use:   "ingest [flags] <file or url>",
		Short: "Parse one document and print the merged records",
		Args:  cobra.ExactArgs(1),
		RunE:  doIngest,
	}
	ingestCmd.Flags().StringP("type", "t", "json", "document `<type>` json, wmts/xml, wms/xml or tileset/json")
	ingestCmd.Flags().String("handle-as", "", "`<handleAs>` stamped on every parsed layer")
	ingestCmd.Flags().String("layer-type", "", "`<type>` stamped on every parsed layer")
	ingestCmd.Flags().StringP("format", "f", "table", "output `<format>` table, json or yaml")
	ingestCmd.Flags().String("box-style", "light", "table `<style>` default, bold, double, light or round")

	plotCmd := &cobra.Command{
		Use:   "plot [flags]",
		Short: "Print the notebook command plotting the active data layers",
		RunE:  doPlot,
	}
	plotCmd.Flags().StringP("config", "c", "", "`<path>` to the HCL configuration")
	plotCmd.Flags().StringSlice("activate", nil, "`<ids>` of layers to show before the command is built")
	plotCmd.Flags().Float64Slice("bbox", nil, "area `<minLon,minLat,maxLon,maxLat>` to plot")
	plotCmd.Flags().StringP("type", "t", "", "plot `<type>` timeseries, timeavgmap, hovmollerlat or hovmollerlon")
	plotCmd.Flags().String("start", "", "start `<date>`, a week before the end when omitted")
	plotCmd.Flags().String("end", "", "end `<date>`, the map date when omitted")
	plotCmd.Flags().StringSlice("datasets", nil, "dataset `<ids>`, the active data layers when omitted")
	addViewFlags(plotCmd)

	genConfigCmd := &cobra.Command{
		Use:   "gen-config",
		Short: "Print the default configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprint(cmd.OutOrStdout(), config.DefaultHCL)
			return err
		},
	}

	rootCmd.AddCommand(
		serveCmd,
		layersCmd,
		ingestCmd,
		plotCmd,
		genConfigCmd,
	)
	return rootCmd
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadFile(path)
}

func addViewFlags(cmd *cobra.Command) {
	cmd.Flags().String("projection", "", "initial `<code>` of the flat map projection")
	cmd.Flags().Float64Slice("extent", nil, "initial view `<minLon,minLat,maxLon,maxLat>` of the active map")
	cmd.Flags().String("date", "", "initial map `<date>`, 2006-01-02 or RFC 3339")
}

// viewFlags applies --date to cfg and returns the initial view options.
func viewFlags(cmd *cobra.Command, cfg *config.Config) (viewer.InitOptions, error) {
	ret := viewer.InitOptions{}
	ret.Projection, _ = cmd.Flags().GetString("projection")
	if ext, _ := cmd.Flags().GetFloat64Slice("extent"); len(ext) > 0 {
		e, err := geo.ExtentFromSlice(ext)
		if err != nil {
			return ret, fmt.Errorf("--extent: %w", err)
		}
		ret.Extent = &e
	}
	if date, _ := cmd.Flags().GetString("date"); date != "" {
		d, err := viewer.ParseDate(date)
		if err != nil {
			return ret, fmt.Errorf("--date: %w", err)
		}
		cfg.Viewer.DefaultDate = d
	}
	return ret, nil
}

// buildViewer creates the coordinator and loads every configured source.
// A failing source is logged and skipped.
func buildViewer(ctx context.Context, cfg *config.Config, initOpts viewer.InitOptions) (*viewer.Viewer, *fetch.Fetcher, error) {
	f := fetch.New(fetch.WithTTL(10 * time.Minute))
	v, err := viewer.New(cfg.ViewerConfig(nil), viewer.WithFetcher(f))
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	log := logging.GetLog("dualview")
	for _, opts := range cfg.LoadOptions() {
		if _, err := v.LoadLayerSource(ctx, opts); err != nil {
			log.Warnf("source %s, %s", opts.Location, err.Error())
		}
	}
	if _, err := v.InitializeMap(initOpts); err != nil {
		f.Close()
		return nil, nil, err
	}
	return v, f, nil
}

func doServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.HTTP.Listen = listen
	}
	initOpts, err := viewFlags(cmd, cfg)
	if err != nil {
		return err
	}
	if err := logging.Configure(&cfg.Log); err != nil {
		return err
	}
	defer logging.Shutdown()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	v, f, err := buildViewer(ctx, cfg, initOpts)
	if err != nil {
		return err
	}
	defer f.Close()

	svr := server.New(v,
		server.WithListenAddress(cfg.HTTP.Listen),
		server.WithDebug(cfg.HTTP.Debug),
	)
	if err := svr.Start(); err != nil {
		return err
	}
	logging.GetLog("dualview").Infof("%s serving %s", mods.VersionString(), svr.AdvertiseAddress())
	<-ctx.Done()
	svr.Stop()
	return nil
}

func doLayers(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logging.Configure(&logging.PresetConfigDiscard)
	v, f, err := buildViewer(cmd.Context(), cfg, viewer.InitOptions{})
	if err != nil {
		return err
	}
	defer f.Close()

	typ, _ := cmd.Flags().GetString("type")
	if typ != "" && !layers.Type(typ).Valid() {
		return fmt.Errorf("unknown layer type %q", typ)
	}
	return printRecords(cmd, v.Registry().List(layers.Type(typ)))
}

func doIngest(cmd *cobra.Command, args []string) error {
	typ, _ := cmd.Flags().GetString("type")
	kind, err := layers.ParseSourceKind(typ)
	if err != nil {
		return err
	}
	opts := layers.SourceOptions{Type: kind, URL: args[0], DefaultOps: map[string]any{}, FillDefaults: true}
	if handleAs, _ := cmd.Flags().GetString("handle-as"); handleAs != "" {
		opts.DefaultOps["handleAs"] = handleAs
	}
	if layerType, _ := cmd.Flags().GetString("layer-type"); layerType != "" {
		if !layers.Type(layerType).Valid() {
			return fmt.Errorf("unknown layer type %q", layerType)
		}
		opts.DefaultOps["type"] = layerType
	}
	if len(opts.DefaultOps) == 0 {
		opts.DefaultOps = nil
	}

	logging.Configure(&logging.PresetConfigDiscard)
	f := fetch.New()
	defer f.Close()
	doc, err := f.Fetch(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	reg := layers.NewRegistry()
	if _, err := reg.Ingest(doc, opts); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "ingest %s\n", err.Error())
	}
	result := reg.MergeLayers()
	for _, d := range result.Unmatched {
		fmt.Fprintf(cmd.ErrOrStderr(), "unmatched partial %q\n", d.ID())
	}
	return printRecords(cmd, result.Added)
}

func doPlot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	initOpts, err := viewFlags(cmd, cfg)
	if err != nil {
		return err
	}
	opts := viewer.PlotOptions{}
	if typ, _ := cmd.Flags().GetString("type"); typ != "" {
		opts.PlotType = viewer.PlotType(typ)
		if !opts.PlotType.Valid() {
			return fmt.Errorf("%w: %q", viewer.ErrUnknownPlotType, typ)
		}
	}
	for _, name := range []string{"start", "end"} {
		s, _ := cmd.Flags().GetString(name)
		if s == "" {
			continue
		}
		d, err := viewer.ParseDate(s)
		if err != nil {
			return fmt.Errorf("--%s: %w", name, err)
		}
		if name == "start" {
			opts.StartDate = &d
		} else {
			opts.EndDate = &d
		}
	}
	if cmd.Flags().Changed("datasets") {
		opts.Datasets, _ = cmd.Flags().GetStringSlice("datasets")
	}

	logging.Configure(&logging.PresetConfigDiscard)
	v, f, err := buildViewer(cmd.Context(), cfg, initOpts)
	if err != nil {
		return err
	}
	defer f.Close()

	ids, _ := cmd.Flags().GetStringSlice("activate")
	for _, id := range ids {
		if _, err := v.ActivateLayer(id, true); err != nil {
			return err
		}
	}
	if bbox, _ := cmd.Flags().GetFloat64Slice("bbox"); len(bbox) > 0 {
		ext, err := geo.ExtentFromSlice(bbox)
		if err != nil {
			return fmt.Errorf("--bbox: %w", err)
		}
		g, err := v.AddDrawing(&drawing.Geometry{Type: drawing.GeometryBox, BBox: &ext})
		if err != nil {
			return err
		}
		opts.GeometryID = g.ID
	}
	plot, err := v.GeneratePlotCommand(opts, true)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), strings.ReplaceAll(plot.Command, "\r\n", "\n"))
	return err
}
