// Command catalog-ingest loads initial stock levels from gzipped CSV
// exports. Each line is "sku,quantity". Files are parsed concurrently;
// when the same SKU appears in several files the first file wins.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/arula-ai/commerce-api/internal/storage/postgres"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	progressEvery = 1_000_000
	maxSKULen     = 64
)

// fileStock holds the parsed (sku, quantity) pairs of one export file, in
// file order so merging stays deterministic.
type fileStock struct {
	skus       []string
	quantities []int
}

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing catalog *.gz exports")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL); err != nil {
		slog.Error("catalog ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.gz"))
	if err != nil {
		return errors.Wrap(err, "list data dir")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.gz files in %s", dataDir)
	}

	slog.Info("parsing catalog exports", slog.Int("files", len(files)))

	results, err := parseFiles(ctx, files)
	if err != nil {
		return errors.Wrap(err, "parse catalog files")
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	return writeStock(ctx, postgres.NewInventoryRepository(pool), files, results)
}

// parseFiles reads every export concurrently.
func parseFiles(ctx context.Context, files []string) ([]fileStock, error) {
	results := make([]fileStock, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(parseFile(ctx, i, f, results))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func parseFile(ctx context.Context, idx int, path string, results []fileStock) func() error {
	return func() error {
		var (
			fs    fileStock
			count uint64
			bad   uint64
		)

		if err := streamGzFile(ctx, path, func(line string) {
			count++
			if count%progressEvery == 0 {
				slog.Info("parse progress",
					slog.String("file", filepath.Base(path)),
					slog.Uint64("lines", count),
				)
			}

			sku, qty, ok := parseLine(line)
			if !ok {
				bad++
				return
			}
			fs.skus = append(fs.skus, sku)
			fs.quantities = append(fs.quantities, qty)
		}); err != nil {
			return errors.Wrapf(err, "parse %s", path)
		}

		slog.Info("parse complete",
			slog.String("file", filepath.Base(path)),
			slog.Uint64("lines", count),
			slog.Uint64("skipped", bad),
		)

		results[idx] = fs
		return nil
	}
}

// parseLine splits a "sku,quantity" line. Blank lines, malformed SKUs, and
// negative quantities are skipped.
func parseLine(line string) (sku string, qty int, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", 0, false
	}

	sku, qtyStr, found := strings.Cut(line, ",")
	if !found {
		return "", 0, false
	}
	sku = strings.TrimSpace(sku)
	if sku == "" || len(sku) > maxSKULen {
		return "", 0, false
	}

	qty, err := strconv.Atoi(strings.TrimSpace(qtyStr))
	if err != nil || qty < 0 {
		return "", 0, false
	}
	return sku, qty, true
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}

// writeStock applies the parsed quantities in file order. A bloom filter
// tracks SKUs already written so duplicates across exports are skipped
// without holding every SKU in memory; the rare false positive only costs a
// duplicate-looking skip, never a wrong quantity.
func writeStock(ctx context.Context, stock *postgres.InventoryRepository, files []string, results []fileStock) error {
	seen := bloom.NewWithEstimates(bloomCapacity, bloomFPR)

	var written, skipped uint64
	for i, fs := range results {
		for j, sku := range fs.skus {
			if seen.TestString(sku) {
				skipped++
				continue
			}
			seen.AddString(sku)

			if _, err := stock.Adjust(ctx, sku, fs.quantities[j]); err != nil {
				return errors.Wrapf(err, "write stock for %s", sku)
			}
			written++
			if written%10_000 == 0 {
				slog.Info("write progress", slog.Uint64("written", written))
			}
		}
		slog.Info("file applied",
			slog.String("file", filepath.Base(files[i])),
			slog.Uint64("written", written),
			slog.Uint64("duplicates_skipped", skipped),
		)
	}

	slog.Info("stock load complete",
		slog.Uint64("written", written),
		slog.Uint64("duplicates_skipped", skipped),
	)
	return nil
}
