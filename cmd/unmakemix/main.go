// Command unmakemix lists or extracts the contents of a mix archive.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
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
		Name:      "unmakemix",
		Version:   gitCommitSHA,
		Usage:     "list or extract the contents of a mix archive",
		ArgsUsage: "mixfile",
		Flags: append([]cli.Flag{
			&cli.BoolFlag{Name: "x", Usage: "extract"},
			&cli.BoolFlag{Name: "l", Usage: "list contents"},
			&cli.BoolFlag{Name: "c", Usage: "use CRC-32 hash"},
			&cli.BoolFlag{Name: "v", Usage: "verbose"},
			&cli.StringFlag{Name: "o", Value: "./", Usage: "output directory"},
			&cli.StringSliceFlag{Name: "f", Usage: "specific member to extract (repeatable)"},
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
		return cli.Exit("unmakemix: exactly one mixfile argument is required", 1)
	}
	mixPath := c.Args().Get(0)
	doExtract := c.Bool("x")
	doList := c.Bool("l")
	useCRC32 := c.Bool("c")
	verbose := c.Bool("v")
	outDir := c.String("o")
	wanted := c.StringSlice("f")
	format := c.String("format")

	if addr := c.String("metrics-addr"); addr != "" {
		metrics.ServeMetrics(addr)
	}

	f, err := os.Open(mixPath)
	if err != nil {
		return cli.Exit(fmt.Sprintf("unmakemix: %v", err), 1)
	}
	defer f.Close()

	r, err := mix.Open(c.Context, f, rsakey.Embedded())
	if err != nil {
		return cli.Exit(fmt.Sprintf("unmakemix: %v", err), 1)
	}

	method := namedb.HashLegacy
	if useCRC32 {
		method = namedb.HashCRC32
	}
	dbPath := store.Resolve(format)
	db, err := store.Load(dbPath)
	if err != nil {
		klog.Warningf("unmakemix: %v", err)
		db = namedb.New()
	}

	if doList || (!doExtract && len(wanted) == 0) {
		listArchive(r, db, method, verbose)
	}

	if doExtract {
		if err := extractArchive(c.Context, r, db, method, outDir, wanted); err != nil {
			return cli.Exit(fmt.Sprintf("unmakemix: %v", err), 1)
		}
	}

	return nil
}

func nameFor(db *namedb.Database, method namedb.HashMethod, hash int32) string {
	if entry, ok := db.GetEntry(hash, method); ok {
		return entry.FileName
	}
	return fmt.Sprintf("%08X", uint32(hash))
}

func listArchive(r *mix.Reader, db *namedb.Database, method namedb.HashMethod, verbose bool) {
	for _, e := range r.Index() {
		name := nameFor(db, method, e.Hash)
		fmt.Printf("%-24s%10s%10s\n", name, strconv.FormatUint(uint64(e.Offset), 10), strconv.FormatUint(uint64(e.Size), 10))
	}
	if verbose {
		var total uint64
		for _, e := range r.Index() {
			total += uint64(e.Size)
		}
		fmt.Printf("%d file(s), %s total\n", r.FileCount(), humanize.Bytes(total))
	}
}

func extractArchive(ctx context.Context, r *mix.Reader, db *namedb.Database, method namedb.HashMethod, outDir string, wanted []string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output directory %q: %w", outDir, err)
	}

	targets := r.Index()
	if len(wanted) > 0 {
		targets = nil
		for _, w := range wanted {
			hash := hashFor(w, method)
			for _, e := range r.Index() {
				if e.Hash == hash {
					targets = append(targets, e)
				}
			}
		}
	}

	var errs []error
	for _, e := range targets {
		name := nameFor(db, method, e.Hash)
		outPath := filepath.Join(outDir, name)
		if err := extractOne(ctx, r, e.Hash, outPath); err != nil {
			errs = append(errs, err)
			klog.Warningf("unmakemix: extract %q: %v", name, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d member(s) failed to extract", len(errs))
	}
	return nil
}

func extractOne(ctx context.Context, r *mix.Reader, hash int32, outPath string) error {
	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()
	return r.Extract(ctx, hash, out)
}

func hashFor(nameOrHex string, method namedb.HashMethod) int32 {
	if v, err := strconv.ParseUint(nameOrHex, 16, 32); err == nil && len(nameOrHex) == 8 {
		return int32(uint32(v))
	}
	if method == namedb.HashCRC32 {
		return ccmixhash.CRC32HashName(nameOrHex)
	}
	return ccmixhash.LegacyHashName(nameOrHex)
}
