package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/loppis/internal/repository"
)

const (
	bloomFPR      = 0.001
	progressEvery = 100_000
	maxTitleLen   = 200
	copyBatchSize = 5_000
)

// listingRecord is one line of a gzipped JSONL export.
type listingRecord struct {
	Title      string `json:"title"`
	PriceCents *int64 `json:"price_cents"`
	City       string `json:"city"`
	Category   string `json:"category"`
	Size       string `json:"size"`
	Condition  string `json:"condition"`
}

// fileResult holds the accepted records from a single file plus a bloom
// filter over their dedupe keys, consulted during the merge to find
// cross-file collisions.
type fileResult struct {
	records []listingRecord
	filter  *bloom.BloomFilter
}

func newFileResult(records []listingRecord) fileResult {
	filter := bloom.NewWithEstimates(uint(len(records))+1, bloomFPR)
	for _, rec := range records {
		filter.AddString(dedupeKey(rec))
	}
	return fileResult{records: records, filter: filter}
}

func main() {
	var (
		dataDir     string
		pattern     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing listing export files")
	flag.StringVar(&pattern, "pattern", "listings-*.jsonl.gz", "glob pattern for export files")
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

	if err := run(ctx, dataDir, pattern, databaseURL); err != nil {
		slog.Error("listing ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("listing ingest completed successfully")
}

func run(ctx context.Context, dataDir, pattern, databaseURL string) error {
	files, err := filepath.Glob(filepath.Join(dataDir, pattern))
	if err != nil {
		return errors.Wrap(err, "glob export files")
	}
	if len(files) == 0 {
		return errors.Errorf("no export files matching %s in %s", pattern, dataDir)
	}

	slog.Info("parsing export files", slog.Int("files", len(files)))

	records, err := parseExports(ctx, files)
	if err != nil {
		return errors.Wrap(err, "parse exports")
	}

	slog.Info("records accepted", slog.Int("count", len(records)))

	if len(records) == 0 {
		slog.Info("nothing to insert")
		return nil
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := writeListings(ctx, pool, records); err != nil {
		return errors.Wrap(err, "write listings to database")
	}

	return nil
}

// parseExports streams every file concurrently, validates each line, and
// dedupes by (title, city). Duplicates within a file are dropped during the
// parse; the merge handles cross-file duplicates.
func parseExports(ctx context.Context, files []string) ([]listingRecord, error) {
	results := make([]fileResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(parseExportFile(ctx, i, f, results))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return mergeResults(results), nil
}

// mergeResults concatenates per-file results, dropping cross-file duplicate
// keys. Bloom filters have no false negatives, so a key that misses every
// other file's filter is unique across files and passes straight through;
// only the candidate collisions (true duplicates plus the filters' false
// positives) are materialized in the exact map.
func mergeResults(results []fileResult) []listingRecord {
	seen := make(map[string]struct{})

	var merged []listingRecord
	for i, r := range results {
		for _, rec := range r.records {
			key := dedupeKey(rec)
			if !collidesElsewhere(results, i, key) {
				merged = append(merged, rec)
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, rec)
		}
	}

	return merged
}

func collidesElsewhere(results []fileResult, self int, key string) bool {
	for j, r := range results {
		if j == self {
			continue
		}
		if r.filter.TestString(key) {
			return true
		}
	}
	return false
}

func parseExportFile(ctx context.Context, idx int, path string, results []fileResult) func() error {
	return func() error {
		var (
			accepted []listingRecord
			local    = make(map[string]struct{})
			count    uint64
			skipped  uint64
		)

		if err := streamGzFile(ctx, path, func(line string) {
			count++
			if count%progressEvery == 0 {
				slog.Info("parse progress",
					slog.Int("file", idx+1),
					slog.Uint64("lines", count),
				)
			}

			var rec listingRecord
			if err := json.Unmarshal([]byte(line), &rec); err != nil {
				skipped++
				return
			}
			if !validRecord(rec) {
				skipped++
				return
			}
			key := dedupeKey(rec)
			if _, ok := local[key]; ok {
				skipped++
				return
			}
			local[key] = struct{}{}
			accepted = append(accepted, rec)
		}); err != nil {
			return errors.Wrapf(err, "parse file %d", idx+1)
		}

		slog.Info("parse complete",
			slog.Int("file", idx+1),
			slog.Uint64("lines", count),
			slog.Uint64("skipped", skipped),
			slog.Int("accepted", len(accepted)),
		)

		results[idx] = newFileResult(accepted)
		return nil
	}
}

func validRecord(rec listingRecord) bool {
	if rec.Title == "" || len(rec.Title) > maxTitleLen {
		return false
	}
	if rec.City == "" || rec.Category == "" {
		return false
	}
	if rec.PriceCents != nil && *rec.PriceCents < 0 {
		return false
	}
	return true
}

func dedupeKey(rec listingRecord) string {
	return strings.ToLower(rec.Title) + "\x00" + strings.ToLower(rec.City)
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
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
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

// writeListings bulk-inserts all accepted records with COPY, in batches so a
// single failure does not roll back the whole import.
func writeListings(ctx context.Context, pool *pgxpool.Pool, records []listingRecord) error {
	slog.Info("writing listings to database", slog.Int("count", len(records)))

	cols := []string{"title", "price_cents", "city", "category", "size", "condition"}

	for start := 0; start < len(records); start += copyBatchSize {
		end := min(start+copyBatchSize, len(records))
		batch := records[start:end]

		rows := make([][]any, len(batch))
		for i, rec := range batch {
			// A nil price means "free / price on request" and stays NULL.
			rows[i] = []any{rec.Title, rec.PriceCents, rec.City, rec.Category, rec.Size, rec.Condition}
		}

		if _, err := pool.CopyFrom(ctx, pgx.Identifier{"listings"}, cols, pgx.CopyFromRows(rows)); err != nil {
			return errors.Wrapf(err, "copy batch %d..%d", start, end)
		}

		slog.Info("write progress", slog.Int("written", end), slog.Int("total", len(records)))
	}

	return nil
}
