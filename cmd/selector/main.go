package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/airbusgeo/geocube-s2chips/common"
	"github.com/airbusgeo/geocube-s2chips/interface/database/pg"
	"github.com/airbusgeo/geocube-s2chips/interface/table"
	"github.com/airbusgeo/geocube-s2chips/selector"
	"github.com/airbusgeo/geocube-s2chips/service"
	"github.com/airbusgeo/geocube-s2chips/service/log"
	"github.com/airbusgeo/geocube-s2chips/service/metrics"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type config struct {
	Input  string
	Output string
	Prefix string

	DbConnection string
	DbTable      string

	S3          service.S3Config
	MetricsAddr string
	LogLevel    string
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func newAppConfig() (*config, error) {
	_ = godotenv.Load(".env")
	config := config{}
	flag.StringVar(&config.Input, "input", envOr("SELECTOR_INPUT", "tables/stratified_S2_points_wdate_filter.csv"), "candidate table (local path, gs:// or s3:// uri)")
	flag.StringVar(&config.Output, "output", envOr("SELECTOR_OUTPUT", "tables/stratified_S2_points_wdate_filter_reduced.csv"), "selection table, replaced if exists (local path, gs:// or s3:// uri)")
	flag.StringVar(&config.Prefix, "prefix", envOr("SELECTOR_PREFIX", common.DefaultSelectorPrefix), "prefix of the download ids (PREFIX_00000)")

	// Database
	flag.StringVar(&config.DbConnection, "db-connection", os.Getenv("DB_CONNECTION"), "copy the selection table in a postgres database (optional)")
	flag.StringVar(&config.DbTable, "db-table", envOr("DB_TABLE", "s2_selection"), "name of the table ([schema.]table) of the copy")

	// S3
	flag.StringVar(&config.S3.Region, "s3-region", os.Getenv("AWS_REGION"), "s3 region (optional)")
	flag.StringVar(&config.S3.Endpoint, "s3-endpoint", os.Getenv("AWS_ENDPOINT_URL_S3"), "s3 endpoint (optional, e.g. minio)")
	pathStyle := flag.Bool("s3-path-style", false, "use path-style s3 urls")

	flag.StringVar(&config.MetricsAddr, "metrics-addr", os.Getenv("METRICS_ADDR"), "serve /metrics on this address (optional)")
	flag.StringVar(&config.LogLevel, "log-level", envOr("LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
	flag.Parse()

	config.S3.UsePathStyle = *pathStyle
	config.S3.AccessKeyID = os.Getenv("AWS_ACCESS_KEY_ID")
	config.S3.SecretAccessKey = os.Getenv("AWS_SECRET_ACCESS_KEY")

	if config.Input == "" {
		return nil, fmt.Errorf("missing input config flag")
	}
	if config.Output == "" {
		return nil, fmt.Errorf("missing output config flag")
	}
	if config.Prefix == "" {
		return nil, fmt.Errorf("missing prefix config flag")
	}
	return &config, nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	err := run(ctx)
	if err != nil {
		log.Fatal("error", zap.Error(err))
	}
}

func run(ctx context.Context) error {
	config, err := newAppConfig()
	if err != nil {
		return err
	}
	log.SetLevel(config.LogLevel)
	if config.MetricsAddr != "" {
		metrics.Serve(ctx, config.MetricsAddr)
	}
	storage := service.NewStorageStrategy(config.S3)

	// Read candidates
	r, err := service.Open(ctx, storage, config.Input)
	if err != nil {
		return fmt.Errorf("Input.%w", err)
	}
	header, candidates, err := table.ReadCandidates(r, table.SelectionColumns...)
	r.Close()
	if err != nil {
		return fmt.Errorf("ReadCandidates[%s]: %w", config.Input, err)
	}
	metrics.CandidatesRead.Add(float64(len(candidates)))

	// Select
	selections, err := selector.Select(candidates, config.Prefix)
	if err != nil {
		return fmt.Errorf("Select[%s]: %w", config.Input, err)
	}
	metrics.LocationsSelected.Add(float64(len(selections)))
	log.Logger(ctx).Info("candidates selected",
		zap.Int("candidates", len(candidates)),
		zap.Int("locations", len(selections)),
		zap.String("first", selections[0].DownloadID),
		zap.String("last", selections[len(selections)-1].DownloadID))

	// Write selections
	w, err := service.Create(ctx, storage, config.Output)
	if err != nil {
		return fmt.Errorf("Output.%w", err)
	}
	if err := table.WriteSelections(w, header, selections); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("Output.Close: %w", err)
	}
	log.Logger(ctx).Info("selection table written", zap.String("output", config.Output))

	if config.DbConnection != "" {
		db, err := pg.New(ctx, config.DbConnection)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.ReplaceSelections(ctx, config.DbTable, header, selections); err != nil {
			return err
		}
		log.Logger(ctx).Info("selection table copied", zap.String("table", config.DbTable), zap.Int("rows", len(selections)))
	}
	return nil
}
