//go:build mage

package main

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	_ "github.com/magefile/mage/mage"
	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

var Default = Build

var Aliases = map[string]any{
	"dualview": Build,
	"cover":    Test,
}

const module = "github.com/dualview/dualview"

var vLastCommit string
var vBuildVersion string

func Build() error {
	mg.Deps(GetVersion)
	fmt.Println("Build dualview", vBuildVersion, "...")

	gitSHA := vLastCommit
	if len(gitSHA) > 8 {
		gitSHA = gitSHA[0:8]
	}
	ldflags := strings.Join([]string{
		"-X", fmt.Sprintf("%s/mods.versionString=%s", module, vBuildVersion),
		"-X", fmt.Sprintf("%s/mods.versionGitSHA=%s", module, gitSHA),
		"-X", fmt.Sprintf("%s/mods.buildTimestamp=%s", module, time.Now().Format("2006-01-02T15:04:05")),
	}, " ")
	output := "./tmp/dualview"
	if runtime.GOOS == "windows" {
		output += ".exe"
	}
	env := map[string]string{"GO111MODULE": "on", "CGO_ENABLED": "0"}
	if err := sh.RunWithV(env, "go", "build", "-ldflags", ldflags, "-o", output, "./main/dualview"); err != nil {
		return err
	}
	fmt.Println("Build done.")
	return nil
}

func Test() error {
	if err := os.MkdirAll("tmp", 0755); err != nil {
		return err
	}
	if err := sh.RunV("go", "test", "./...", "-cover", "-coverprofile", "./tmp/cover.out"); err != nil {
		return err
	}
	fmt.Println("Test done.")
	return nil
}

// Package zips the binary with a default configuration.
func Package() error {
	mg.Deps(CleanPackage, Build)

	bdir := fmt.Sprintf("dualview-%s-%s-%s", vBuildVersion, runtime.GOOS, runtime.GOARCH)
	dst := filepath.Join("packages", bdir)
	if err := os.MkdirAll(dst, 0755); err != nil {
		return err
	}
	exe := "dualview"
	if runtime.GOOS == "windows" {
		exe += ".exe"
	}
	if err := os.Rename(filepath.Join("tmp", exe), filepath.Join(dst, exe)); err != nil {
		return err
	}
	conf, err := sh.Output(filepath.Join(dst, exe), "gen-config")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dst, "viewer.hcl"), []byte(conf+"\n"), 0644); err != nil {
		return err
	}
	if err := archivePackage(dst+".zip", dst); err != nil {
		return err
	}
	return os.RemoveAll(dst)
}

func archivePackage(dst string, src ...string) error {
	archive, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer archive.Close()
	zipWriter := zip.NewWriter(archive)

	for _, file := range src {
		if err := archiveAddEntry(zipWriter, file, "packages"+string(os.PathSeparator)); err != nil {
			return err
		}
	}
	return zipWriter.Close()
}

func archiveAddEntry(zipWriter *zip.Writer, entry string, prefix string) error {
	stat, err := os.Stat(entry)
	if err != nil {
		return err
	}
	if stat.IsDir() {
		entries, err := os.ReadDir(entry)
		if err != nil {
			return err
		}
		for _, ent := range entries {
			if err := archiveAddEntry(zipWriter, filepath.Join(entry, ent.Name()), prefix); err != nil {
				return err
			}
		}
		return nil
	}
	fd, err := os.Open(entry)
	if err != nil {
		return err
	}
	defer fd.Close()

	entryName := strings.TrimPrefix(entry, prefix)
	fmt.Println("Archive", entryName)
	w, err := zipWriter.Create(entryName)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, fd)
	return err
}

func CleanPackage() error {
	entries, err := os.ReadDir("./packages")
	if os.IsNotExist(err) {
		return os.Mkdir("./packages", 0755)
	} else if err != nil {
		return err
	}
	for _, ent := range entries {
		if err = os.RemoveAll(filepath.Join("./packages", ent.Name())); err != nil {
			return err
		}
	}
	return nil
}

// GetVersion derives the build version from the newest tag. Commits past
// the tag build as the next patch snapshot.
func GetVersion() error {
	repo, err := git.PlainOpen(".")
	if err != nil {
		return err
	}
	headRef, err := repo.Head()
	if err != nil {
		return err
	}
	vLastCommit = headRef.Hash().String()

	var lastTag *object.Tag
	tagiter, err := repo.TagObjects()
	if err != nil {
		return err
	}
	err = tagiter.ForEach(func(tag *object.Tag) error {
		tagCommit, err := tag.Commit()
		if err != nil {
			return err
		}
		if lastTag == nil {
			lastTag = tag
			return nil
		}
		lastCommit, _ := lastTag.Commit()
		if tagCommit.Committer.When.After(lastCommit.Committer.When) {
			lastTag = tag
		}
		return nil
	})
	if err != nil {
		return err
	}
	if lastTag == nil {
		vBuildVersion = "v0.0.0-snapshot"
		return nil
	}
	lastTagCommit, err := lastTag.Commit()
	if err != nil {
		return err
	}
	lastVer, err := semver.NewVersion(lastTag.Name)
	if err != nil {
		return err
	}
	if lastTagCommit.Hash.String() != vLastCommit {
		vBuildVersion = fmt.Sprintf("v%d.%d.%d-snapshot", lastVer.Major(), lastVer.Minor(), lastVer.Patch()+1)
	} else {
		vBuildVersion = fmt.Sprintf("v%d.%d.%d", lastVer.Major(), lastVer.Minor(), lastVer.Patch())
	}
	return nil
}
