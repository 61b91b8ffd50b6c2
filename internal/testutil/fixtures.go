package testutil

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"

	"golang.org/x/image/tiff"
)

// Folders a sweep run writes its slice images to, below its output folder.
const (
	SweepImageDir = "images_sweep_recon/images8bit_tif"
	LogFileName   = "user.log"
)

// WriteTIFF writes a small grayscale TIFF to path, creating parent directories.
func WriteTIFF(tb testing.TB, path string) {
	tb.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		tb.Fatal(err)
	}
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	img.SetGray(1, 1, color.Gray{Y: 200})

	f, err := os.Create(path)
	if err != nil {
		tb.Fatal(err)
	}
	defer f.Close()
	if err := tiff.Encode(f, img, nil); err != nil {
		tb.Fatal(err)
	}
}

// WriteSweepImages writes n numbered TIFFs into the sweep folder of outputDir
// and returns their paths in order.
func WriteSweepImages(tb testing.TB, outputDir string, n int) []string {
	tb.Helper()
	paths := make([]string, n)
	for i := range n {
		paths[i] = filepath.Join(outputDir, SweepImageDir, fmt.Sprintf("%05d.tif", i))
		WriteTIFF(tb, paths[i])
	}
	return paths
}

// RunnerOptions configure FakeRunner.
type RunnerOptions struct {
	LogLines []string // Written to the run log
	Images   int      // TIFFs written to the sweep folder
	Stderr   string
	ExitCode int
	Hold     string // If set, the runner waits for this file to exist before exiting
}

// FakeRunner writes a shell stand-in for the reconstruction executable and
// returns its path. It is invoked as
//
//	<runner> run <input> <config> <output-root> --output-folder-name <folder>
//
// and creates the output folder, the run log and the sweep images there.
func FakeRunner(tb testing.TB, opts RunnerOptions) string {
	tb.Helper()
	if runtime.GOOS == "windows" {
		tb.Skip("shell script runner")
	}
	dir := tb.TempDir()
	sample := filepath.Join(dir, "sample.tif")
	WriteTIFF(tb, sample)

	var script strings.Builder
	script.WriteString("#!/bin/sh\n")
	script.WriteString(`[ "$1" = "run" ] || exit 64` + "\n")
	script.WriteString(`[ "$5" = "--output-folder-name" ] || exit 64` + "\n")
	script.WriteString(`out="$4/$6"` + "\n")
	script.WriteString(`mkdir -p "$out/` + SweepImageDir + `"` + "\n")
	script.WriteString(`: > "$out/` + LogFileName + `"` + "\n")
	for _, line := range opts.LogLines {
		script.WriteString("echo " + shellQuote(line) + ` >> "$out/` + LogFileName + `"` + "\n")
	}
	script.WriteString("i=0\n")
	script.WriteString("while [ $i -lt " + strconv.Itoa(opts.Images) + " ]; do\n")
	script.WriteString(`  cp ` + shellQuote(sample) + ` "$out/` + SweepImageDir + `/$(printf %05d $i).tif"` + "\n")
	script.WriteString("  i=$((i+1))\ndone\n")
	if opts.Hold != "" {
		script.WriteString("while [ ! -e " + shellQuote(opts.Hold) + " ]; do sleep 0.05; done\n")
	}
	if opts.Stderr != "" {
		script.WriteString("echo " + shellQuote(opts.Stderr) + " >&2\n")
	}
	script.WriteString("exit " + strconv.Itoa(opts.ExitCode) + "\n")

	path := filepath.Join(dir, "httomo")
	if err := os.WriteFile(path, []byte(script.String()), 0o755); err != nil {
		tb.Fatal(err)
	}
	return path
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
