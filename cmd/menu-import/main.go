package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/posledger/internal/domain/menu"
	"github.com/xenking/posledger/internal/storage/postgres"
)

const (
	bloomMinCapacity = 10_000
	bloomFPR         = 0.001
	progressEvery    = 1_000
)

// itemWriter is the subset of postgres.MenuRepository the import needs.
type itemWriter interface {
	Upsert(ctx context.Context, item menu.Item) error
}

// stats counts import outcomes across all feeds.
type stats struct {
	added   atomic.Int64
	updated atomic.Int64
	skipped atomic.Int64
}

func main() {
	var (
		dataDir     string
		pattern     string
		databaseURL string
		workers     int
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing gzipped JSON-lines menu feeds")
	flag.StringVar(&pattern, "pattern", "*.jsonl.gz", "glob of feed files inside data-dir")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&workers, "workers", 4, "feeds imported concurrently")
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

	if err := run(ctx, dataDir, pattern, databaseURL, workers); err != nil {
		slog.Error("menu import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("menu import completed successfully")
}

func run(ctx context.Context, dataDir, pattern, databaseURL string, workers int) error {
	files, err := filepath.Glob(filepath.Join(dataDir, pattern))
	if err != nil {
		return errors.Wrap(err, "glob feeds")
	}
	if len(files) == 0 {
		slog.Info("no feeds found", slog.String("dir", dataDir), slog.String("pattern", pattern))
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	repo := postgres.NewMenuRepository(pool)

	ids, err := repo.ListIDs(ctx)
	if err != nil {
		return errors.Wrap(err, "list existing menu items")
	}
	known := knownFilter(ids)
	slog.Info("loaded existing menu ids", slog.Int("count", len(ids)))

	var st stats
	if err := importFeeds(ctx, files, workers, repo, known, &st); err != nil {
		return err
	}

	slog.Info("import summary",
		slog.Int64("added", st.added.Load()),
		slog.Int64("updated", st.updated.Load()),
		slog.Int64("skipped", st.skipped.Load()),
	)
	return nil
}

// knownFilter builds a bloom filter over ids. A negative test means the id
// is definitely new.
func knownFilter(ids []string) *bloom.BloomFilter {
	n := uint(max(len(ids), bloomMinCapacity))
	f := bloom.NewWithEstimates(n, bloomFPR)
	for _, id := range ids {
		f.AddString(id)
	}
	return f
}

func importFeeds(
	ctx context.Context,
	files []string,
	workers int,
	w itemWriter,
	known *bloom.BloomFilter,
	st *stats,
) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for _, f := range files {
		g.Go(func() error {
			return importFeed(ctx, f, w, known, st)
		})
	}
	return g.Wait()
}

func importFeed(ctx context.Context, path string, w itemWriter, known *bloom.BloomFilter, st *stats) error {
	var lines int
	err := streamGzFile(ctx, path, func(line []byte) error {
		lines++
		if len(line) == 0 {
			return nil
		}
		item, err := parseItem(line)
		if err != nil {
			st.skipped.Add(1)
			slog.Warn("skipping malformed line",
				slog.String("file", path),
				slog.Int("line", lines),
				slog.String("error", err.Error()),
			)
			return nil
		}

		if err := w.Upsert(ctx, item); err != nil {
			return errors.Wrapf(err, "upsert %s", item.ID)
		}
		// The filter is read-only here, so concurrent tests are safe.
		if known.TestString(item.ID) {
			st.updated.Add(1)
		} else {
			st.added.Add(1)
		}

		if lines%progressEvery == 0 {
			slog.Info("import progress", slog.String("file", path), slog.Int("lines", lines))
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "import %s", filepath.Base(path))
	}

	slog.Info("feed complete", slog.String("file", path), slog.Int("lines", lines))
	return nil
}

// parseItem decodes one feed line:
//
//	{"id":"soup","name":"Soup","price":"5.50","category":"Starters","available":true}
//
// Price may be a string or a number. Available defaults to true.
func parseItem(line []byte) (menu.Item, error) {
	item := menu.Item{Available: true}
	var rawPrice string
	err := jx.DecodeBytes(line).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			item.ID, err = d.Str()
		case "name":
			item.Name, err = d.Str()
		case "category":
			item.Category, err = d.Str()
		case "available":
			item.Available, err = d.Bool()
		case "price":
			if d.Next() == jx.String {
				rawPrice, err = d.Str()
				return err
			}
			var n jx.Num
			n, err = d.Num()
			rawPrice = string(n)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return menu.Item{}, errors.Wrap(err, "decode")
	}
	if item.ID == "" || item.Name == "" {
		return menu.Item{}, errors.New("id and name are required")
	}

	price, err := decimal.NewFromString(rawPrice)
	if err != nil {
		return menu.Item{}, errors.Wrapf(err, "price %q", rawPrice)
	}
	if price.IsNegative() {
		return menu.Item{}, errors.Errorf("negative price %s", price)
	}
	item.Price = price.Round(2)
	return item, nil
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line []byte) error) error {
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
		if err := fn(scanner.Bytes()); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}
