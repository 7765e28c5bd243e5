// Command makemix builds a mix archive from a directory of files or an
// explicit manifest.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"

	"github.com/go-ccmix/ccmix/internal/ccmixhash"
	"github.com/go-ccmix/ccmix/internal/cliflags"
	"github.com/go-ccmix/ccmix/internal/mix"
	"github.com/go-ccmix/ccmix/internal/namedb"
	"github.com/go-ccmix/ccmix/internal/rsakey"
	"github.com/go-ccmix/ccmix/internal/store"
	"github.com/go-ccmix/ccmix/metrics"
)

var gitCommitSHA = ""

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, syscall.SIGTERM, syscall.SIGINT)
		select {
		case <-interrupt:
			klog.Info("received interrupt signal")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(interrupt)
	}()

	app := &cli.App{
		Name:      "makemix",
		Version:   gitCommitSHA,
		Usage:     "build a mix archive from a directory of files or a manifest",
		ArgsUsage: "mixfile",
		Flags: append([]cli.Flag{
			&cli.BoolFlag{Name: "e", Usage: "encrypt header (requires embedded key pair)"},
			&cli.BoolFlag{Name: "s", Usage: "append SHA-1 body checksum"},
			&cli.BoolFlag{Name: "c", Usage: "use CRC-32 hash instead of legacy hash"},
			&cli.BoolFlag{Name: "q", Usage: "quiet mode"},
			&cli.StringFlag{Name: "i", Value: "./", Usage: "input directory"},
			&cli.StringFlag{Name: "m", Usage: "manifest text file, one relative path per line"},
			&cli.StringFlag{Name: "format", Value: "ini", Usage: "name database format: ini or yaml"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "if set, serve Prometheus metrics on this address"},
		}, cliflags.NewKlogFlagSet()...),
		Action: run,
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		klog.Fatal(err)
	}
}

func run(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("makemix: exactly one mixfile argument is required", 1)
	}
	outputPath := c.Args().Get(0)
	quiet := c.Bool("q")
	useCRC32 := c.Bool("c")
	wantChecksum := c.Bool("s")
	wantEncrypt := c.Bool("e")
	inputDir := c.String("i")
	manifest := c.String("m")
	format := c.String("format")

	if addr := c.String("metrics-addr"); addr != "" {
		metrics.ServeMetrics(addr)
	}

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	hashNew := func() ccmixhash.Hash32 { return ccmixhash.NewLegacy() }
	if useCRC32 {
		hashNew = func() ccmixhash.Hash32 { return ccmixhash.NewCRC32() }
	}

	var rsaKey *rsakey.Key
	if wantEncrypt {
		rsaKey = rsakey.Embedded()
	}

	w := mix.NewWriter(outputPath, hashNew, wantChecksum, wantEncrypt, quiet, false, rsaKey)
	w.WithProgress(!quiet)

	if manifest != "" {
		if err := addFromManifest(w, manifest, inputDir); err != nil {
			return cli.Exit(fmt.Sprintf("makemix: %v", err), 1)
		}
	} else {
		if err := w.AddFiles(inputDir); err != nil {
			klog.Warningf("makemix: %v", err)
		}
	}

	if err := w.WriteMix(ctx); err != nil {
		return cli.Exit(fmt.Sprintf("makemix: %v", err), 1)
	}

	dbPath := store.Resolve(format)
	db, err := store.Load(dbPath)
	if err != nil {
		klog.Warningf("makemix: %v", err)
		db = namedb.New()
	}
	method := namedb.HashLegacy
	if useCRC32 {
		method = namedb.HashCRC32
	}
	for _, name := range w.MemberNames() {
		db.AddEntry(name, "", method)
	}
	if err := store.Save(db, dbPath, format); err != nil {
		klog.Warningf("makemix: save name database: %v", err)
	}

	if !quiet {
		size := "unknown size"
		if info, err := os.Stat(outputPath); err == nil {
			size = humanize.Bytes(uint64(info.Size()))
		}
		fmt.Printf("wrote %s (%s)\n", outputPath, size)
	}
	return nil
}

func addFromManifest(w *mix.Writer, manifestPath, inputDir string) error {
	f, err := os.Open(manifestPath)
	if err != nil {
		return fmt.Errorf("open manifest %q: %w", manifestPath, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		path := line
		if !filepath.IsAbs(path) {
			path = filepath.Join(inputDir, path)
		}
		if err := w.AddFile(path); err != nil {
			klog.Warningf("makemix: add_file %q: %v", path, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read manifest %q: %w", manifestPath, err)
	}
	return nil
}
