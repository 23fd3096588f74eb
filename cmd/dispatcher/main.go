package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/airbusgeo/geocube-s2chips/common"
	"github.com/airbusgeo/geocube-s2chips/dispatcher"
	"github.com/airbusgeo/geocube-s2chips/interface/catalog"
	"github.com/airbusgeo/geocube-s2chips/interface/catalog/earthengine"
	"github.com/airbusgeo/geocube-s2chips/interface/catalog/file"
	"github.com/airbusgeo/geocube-s2chips/interface/fetcher"
	"github.com/airbusgeo/geocube-s2chips/interface/table"
	"github.com/airbusgeo/geocube-s2chips/selector"
	"github.com/airbusgeo/geocube-s2chips/service"
	"github.com/airbusgeo/geocube-s2chips/service/log"
	"github.com/airbusgeo/geocube-s2chips/service/metrics"
	"github.com/airbusgeo/geocube/interface/messaging"
	"github.com/airbusgeo/geocube/interface/messaging/pgqueue"
	"github.com/airbusgeo/geocube/interface/messaging/pubsub"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type config struct {
	Input           string
	Prefix          string
	SelectionOutput string
	ResolvedOutput  string

	// Catalog
	PrimaryCollection  string
	FallbackCollection string
	FallbackMode       string
	Catalog            string
	CatalogPath        string
	CatalogCacheSize   int
	EEKeyFile          string
	EEProject          string
	EEParallelism      int

	// Chips
	EdgeSize int
	Scale    float64
	Bands    []string

	// Fetcher
	Fetcher         string
	FetchCmd        string
	WorkingDir      string
	Options         fetcher.Options
	OutputURI       string
	ManifestURI     string
	PsProject       string
	JobQueue        string
	PgqDbConnection string

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
	// Tables
	flag.StringVar(&config.Input, "input", envOr("DISPATCHER_INPUT", "tables/stratified_S2_points_wdate_filter.csv"), "selection table, or candidate table to select inline if it has no s2_download_id column (local path, gs:// or s3:// uri)")
	flag.StringVar(&config.Prefix, "prefix", envOr("DISPATCHER_PREFIX", common.DefaultDispatcherPrefix), "prefix of the download ids of the inline selection")
	flag.StringVar(&config.SelectionOutput, "selection-output", "", "write the inline selection table to this uri (optional)")
	flag.StringVar(&config.ResolvedOutput, "resolved-output", "", "write the resolved table (with the s2_full_id column) to this uri (optional)")

	// Catalog
	flag.StringVar(&config.PrimaryCollection, "primary-collection", common.PrimaryCollection, "collection of the dispatched scenes")
	flag.StringVar(&config.FallbackCollection, "fallback-collection", common.FallbackCollection, "collection of the scenes that are not in the primary collection")
	flag.StringVar(&config.FallbackMode, "fallback-mode", string(catalog.FallbackQuery), "query: the fallback collection is queried. complement: every scene that is not in the primary collection is in the fallback collection")
	flag.StringVar(&config.Catalog, "catalog", "earthengine", "membership checker (earthengine, file)")
	flag.StringVar(&config.CatalogPath, "catalog-path", "", "directory or uri of the <collection>.txt lists of scenes (catalog=file)")
	flag.IntVar(&config.CatalogCacheSize, "catalog-cache-size", 100000, "number of memberships kept in memory")
	flag.StringVar(&config.EEKeyFile, "ee-key-file", os.Getenv("EE_KEY_FILE"), "key file used if the application default credentials are not found (catalog=earthengine)")
	flag.StringVar(&config.EEProject, "ee-project", os.Getenv("EE_PROJECT"), "quota project of the Earth Engine requests (optional)")
	flag.IntVar(&config.EEParallelism, "ee-parallelism", 8, "max number of concurrent Earth Engine requests")

	// Chips
	flag.IntVar(&config.EdgeSize, "edge-size", 128, "size of the chips in pixels")
	flag.Float64Var(&config.Scale, "scale", 10, "resolution of the chips in meters")
	bands := flag.String("bands", strings.Join(common.DefaultBands, ","), "comma-separated bands of the chips")

	// Fetcher
	flag.StringVar(&config.Fetcher, "fetcher", "command", "cube fetcher (command, queue, manifest)")
	flag.StringVar(&config.FetchCmd, "fetch-cmd", envOr("FETCH_CMD", "getcube"), "command called with --requests --output --nworkers --max-deep-level (fetcher=command)")
	flag.StringVar(&config.WorkingDir, "workdir", os.TempDir(), "working directory to store the requests (fetcher=command)")
	flag.StringVar(&config.Options.OutputPath, "output-path", fetcher.DefaultOutputPath, "output directory of the chips")
	flag.IntVar(&config.Options.Workers, "workers", fetcher.DefaultWorkers, "number of parallel workers of the fetcher")
	flag.IntVar(&config.Options.MaxDeepLevel, "max-deep-level", fetcher.DefaultMaxDeepLevel, "maximum fan-out depth of the fetcher")
	flag.StringVar(&config.OutputURI, "output-uri", "", "zip the output directory and save it to this uri (.zip) after the fetch (fetcher=command, optional)")
	flag.StringVar(&config.ManifestURI, "manifest-uri", "", "uri of the manifest (fetcher=manifest, default: <output-path>/manifest.geojson)")
	flag.StringVar(&config.PgqDbConnection, "pgq-connection", "", "enable pgq messaging system with a connection to the database (fetcher=queue)")
	flag.StringVar(&config.PsProject, "ps-project", "", "pubsub project (fetcher=queue)")
	flag.StringVar(&config.JobQueue, "job-queue", "", "name of the queue for fetch jobs (pgqueue or pubsub topic) (fetcher=queue)")

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
	for _, b := range strings.Split(*bands, ",") {
		if b = strings.TrimSpace(b); b != "" {
			config.Bands = append(config.Bands, b)
		}
	}

	if config.Input == "" {
		return nil, fmt.Errorf("missing input config flag")
	}
	if len(config.Bands) == 0 {
		return nil, fmt.Errorf("missing bands config flag")
	}
	if config.Options.OutputPath == "" {
		return nil, fmt.Errorf("missing output-path config flag")
	}
	if config.Catalog == "file" && config.CatalogPath == "" {
		return nil, fmt.Errorf("missing catalog-path config flag")
	}
	return &config, nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	err := run(ctx)
	if err != nil {
		if service.Temporary(err) {
			log.Fatal("temporary error", zap.Error(err))
		}
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

	fallbackMode, err := catalog.ParseFallbackMode(config.FallbackMode)
	if err != nil {
		return err
	}

	// Read selections
	header, selections, err := readSelections(ctx, storage, config)
	if err != nil {
		return err
	}

	// Catalog
	var checker catalog.MembershipChecker
	switch config.Catalog {
	case "earthengine":
		session, err := earthengine.NewSession(ctx, config.EEKeyFile, config.EEProject)
		if err != nil {
			return err
		}
		defer session.Close()
		if checker, err = earthengine.NewSessionChecker(ctx, session, config.EEParallelism); err != nil {
			return err
		}
	case "file":
		checker = file.NewChecker(storage, config.CatalogPath)
	default:
		return fmt.Errorf("unknown catalog: %s", config.Catalog)
	}
	if config.CatalogCacheSize > 0 {
		if checker, err = catalog.NewCache(checker, config.CatalogCacheSize); err != nil {
			return err
		}
	}
	primary := catalog.Collection{Name: config.PrimaryCollection, Checker: checker}
	fallback := catalog.NewFallback(fallbackMode, config.FallbackCollection, checker, primary)

	// Fetcher
	var cubeFetcher fetcher.CubeFetcher
	switch config.Fetcher {
	case "command":
		cubeFetcher = fetcher.Command{Executable: config.FetchCmd, WorkingDir: config.WorkingDir}
	case "manifest":
		cubeFetcher = fetcher.Manifest{Storage: storage, URI: config.ManifestURI}
	case "queue":
		publisher, stop, err := newPublisher(ctx, config)
		if err != nil {
			return err
		}
		defer stop()
		cubeFetcher = fetcher.Queue{Publisher: publisher}
	default:
		return fmt.Errorf("unknown fetcher: %s", config.Fetcher)
	}

	d := dispatcher.Dispatcher{
		Primary:  primary,
		Fallback: fallback,
		Fetcher:  cubeFetcher,
		Spec:     common.ChipSpec{EdgeSize: config.EdgeSize, Scale: config.Scale, Bands: config.Bands},
		Options:  config.Options,
	}
	resolved, err := d.Run(ctx, selections)
	if err != nil {
		return err
	}

	if config.ResolvedOutput != "" {
		w, err := service.Create(ctx, storage, config.ResolvedOutput)
		if err != nil {
			return fmt.Errorf("ResolvedOutput.%w", err)
		}
		if err := table.WriteResolved(w, header, resolved); err != nil {
			w.Close()
			return err
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("ResolvedOutput.Close: %w", err)
		}
	}

	if config.OutputURI != "" && config.Fetcher == "command" {
		if err := service.SaveDirectory(ctx, storage, config.Options.OutputPath, config.OutputURI); err != nil {
			return err
		}
		log.Logger(ctx).Info("output saved", zap.String("uri", config.OutputURI))
	}
	return nil
}

// readSelections reads the input table. Without s2_download_id column, the candidates are selected inline.
func readSelections(ctx context.Context, storage service.Storage, config *config) (table.Header, []common.Selection, error) {
	r, err := service.Open(ctx, storage, config.Input)
	if err != nil {
		return nil, nil, fmt.Errorf("Input.%w", err)
	}
	header, candidates, err := table.ReadCandidates(r, table.DispatchColumns...)
	r.Close()
	if err != nil {
		return nil, nil, fmt.Errorf("ReadCandidates[%s]: %w", config.Input, err)
	}
	metrics.CandidatesRead.Add(float64(len(candidates)))

	if header.Has(table.ColumnDownloadID) {
		selections, err := table.SelectionsFromCandidates(header, candidates)
		if err != nil {
			return nil, nil, err
		}
		if len(selections) == 0 {
			return nil, nil, fmt.Errorf("ReadSelections[%s]: %w", config.Input, selector.ErrEmptyInput)
		}
		return header, selections, nil
	}

	log.Logger(ctx).Info("no download id: selecting candidates", zap.String("prefix", config.Prefix))
	if err := header.Check(table.SelectionColumns...); err != nil {
		return nil, nil, fmt.Errorf("ReadCandidates[%s]: %w", config.Input, err)
	}
	selections, err := selector.Select(candidates, config.Prefix)
	if err != nil {
		return nil, nil, fmt.Errorf("Select[%s]: %w", config.Input, err)
	}
	metrics.LocationsSelected.Add(float64(len(selections)))

	if config.SelectionOutput != "" {
		w, err := service.Create(ctx, storage, config.SelectionOutput)
		if err != nil {
			return nil, nil, fmt.Errorf("SelectionOutput.%w", err)
		}
		if err := table.WriteSelections(w, header, selections); err != nil {
			w.Close()
			return nil, nil, err
		}
		if err := w.Close(); err != nil {
			return nil, nil, fmt.Errorf("SelectionOutput.Close: %w", err)
		}
	}
	return header, selections, nil
}

func newPublisher(ctx context.Context, config *config) (messaging.Publisher, func(), error) {
	if config.JobQueue == "" {
		return nil, nil, fmt.Errorf("missing job-queue config flag")
	}
	if config.PgqDbConnection != "" {
		_, w, err := pgqueue.SqlConnect(ctx, config.PgqDbConnection)
		if err != nil {
			return nil, nil, fmt.Errorf("pgqueue.SqlConnect: %w", err)
		}
		log.Logger(ctx).Info("fetch jobs published with pgqueue", zap.String("queue", config.JobQueue))
		return pgqueue.NewPublisher(w, config.JobQueue, pgqueue.WithMaxRetries(5)), func() {}, nil
	}
	if config.PsProject != "" {
		topic, err := pubsub.NewPublisher(ctx, config.PsProject, config.JobQueue, pubsub.WithMaxRetries(5))
		if err != nil {
			return nil, nil, fmt.Errorf("pubsub.NewPublisher: %w", err)
		}
		log.Logger(ctx).Info("fetch jobs published with pubsub", zap.String("topic", config.JobQueue))
		return topic, func() { topic.Stop() }, nil
	}
	return nil, nil, fmt.Errorf("missing configuration for messaging.Publisher (pgq-connection or ps-project)")
}
