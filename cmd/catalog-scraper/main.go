package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"catalog-scraper/pkg/checkpoint"
	"catalog-scraper/pkg/config"
	"catalog-scraper/pkg/extract"
	"catalog-scraper/pkg/fetch"
	"catalog-scraper/pkg/index"
	"catalog-scraper/pkg/models"
	"catalog-scraper/pkg/pipeline"
	"catalog-scraper/pkg/quality"
	"catalog-scraper/pkg/sitemap"
	"catalog-scraper/pkg/storage"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runAcquisition(os.Args[2:], false)
	case "resume":
		runAcquisition(os.Args[2:], true)
	case "reset":
		runReset(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "validate":
		runValidate(os.Args[2:])
	case "version":
		fmt.Printf("catalog-scraper %s\n", version)
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`catalog-scraper - E-commerce catalog acquisition pipeline

Usage:
  catalog-scraper <command> [options]

Commands:
  run       Start a fresh acquisition run
  resume    Resume an interrupted run
  reset     Move every known URL back to pending (keeps all records)
  status    Show URL state counts and quality distribution
  validate  Validate configuration file
  version   Show version info

Run 'catalog-scraper <command> -h' for command-specific help.`)
}

func setupLogger(logLevelStr string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	log.SetLevel(logrus.InfoLevel)

	level, err := logrus.ParseLevel(logLevelStr)
	if err != nil {
		log.Warnf("Invalid log level '%s', using default 'info'. Error: %v", logLevelStr, err)
	} else {
		log.SetLevel(level)
	}
	return log
}

func loadAndValidateConfig(path string, log *logrus.Logger) *config.AppConfig {
	log.Infof("Loading configuration from %s", path)
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	warnings, err := cfg.Validate()
	for _, w := range warnings {
		log.Warn(w)
	}
	if err != nil {
		log.Fatalf("Config validation failed: %v", err)
	}
	return cfg
}

// commonFlags holds the flags shared by run/resume/reset/status.
func commonFlags(fs *flag.FlagSet) (configFile, logLevel *string) {
	configFile = fs.String("config", "config.yaml", "Path to config file")
	logLevel = fs.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")
	return
}

func runAcquisition(args []string, isResume bool) {
	cmdName := "run"
	if isResume {
		cmdName = "resume"
	}
	fs := flag.NewFlagSet(cmdName, flag.ExitOnError)
	configFile, logLevel := commonFlags(fs)
	skipDiscovery := fs.Bool("skip-discovery", false, "Skip sitemap discovery, work the known URL set only")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	log := setupLogger(*logLevel)
	cfg := loadAndValidateConfig(*configFile, log)

	if err := index.InitTokenizer(cfg.TokenizerEncoding); err != nil {
		log.Fatalf("Tokenizer init failed: %v", err)
	}

	// Global context with signal-driven graceful shutdown
	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		sig := <-sigChan
		log.Warnf("Received signal: %v. Initiating graceful shutdown...", sig)
		cancelRun()
		select {
		case sig = <-sigChan:
			log.Warnf("Received second signal: %v. Forcing exit.", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Warn("Graceful shutdown period exceeded after signal. Forcing exit.")
			os.Exit(1)
		}
	}()

	log.Info("Initializing components...")
	logEntry := log.WithField("component", "main")

	// --- URL state store ---
	urlStore, err := storage.NewBadgerURLStore(runCtx, cfg.StateDir, cfg.AllowedDomain, false, logEntry)
	if err != nil {
		log.Fatalf("Failed to initialize URL state DB: %v", err)
	}
	defer urlStore.Close()
	go urlStore.RunGC(runCtx, 10*time.Minute)

	// --- HTTP fetching components ---
	httpClient := fetch.NewClient(cfg.HTTPClientSettings, log)
	rateLimiter := fetch.NewRateLimiter(cfg.DelayPerHost, log)
	var robots *fetch.RobotsGate
	if cfg.RobotsEnabled() {
		robots = fetch.NewRobotsGate(httpClient, cfg.UserAgent, log.WithField("component", "robots"))
	} else {
		log.Warn("robots.txt checking is DISABLED by configuration")
	}
	fetcher := fetch.NewFetcher(httpClient, cfg, rateLimiter, robots, log)

	// --- Sitemap manager ---
	mgr, err := sitemap.NewManager(urlStore, fetcher, cfg, log)
	if err != nil {
		log.Fatalf("Failed to initialize sitemap manager: %v", err)
	}

	// Leases left behind by a previous crash go straight back to pending.
	if n := mgr.ReclaimStale(0); n > 0 {
		log.Infof("Reclaimed %d leases from a previous run", n)
	}

	// --- Product store and index producer ---
	records, err := storage.NewMongoProductStore(runCtx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection, log.WithField("component", "product_store"))
	if err != nil {
		log.Fatalf("Failed to initialize product store: %v", err)
	}
	defer records.Close(context.Background())

	producer := index.NewProducer(cfg.KafkaBroker, cfg.KafkaIndexTopic, cfg.SummaryTokenBudget, log.WithField("component", "index_producer"))
	defer producer.Close()

	// --- Checkpoint session ---
	checkpoints := checkpoint.NewStore(cfg.StateDir, log.WithField("component", "checkpoint"))
	cp, err := checkpoints.Open(isResume)
	if err != nil {
		// A corrupt checkpoint costs only progress counters; URL state is
		// intact in the sitemap store, so the run proceeds fresh.
		log.Warnf("Checkpoint session degraded: %v", err)
	}
	log.Infof("Session %s (processed so far: %d)", cp.SessionID, cp.ProcessedCount)

	// --- Discovery ---
	if *skipDiscovery {
		log.Info("Skipping sitemap discovery (-skip-discovery)")
	} else {
		added, err := mgr.Discover(runCtx, cfg.SitemapURL)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Warn("Discovery cancelled")
				return
			}
			log.Fatalf("Sitemap discovery failed: %v", err)
		}
		log.Infof("Discovery added %d new URLs", added)
	}

	if !isResume {
		// A fresh run works the complete URL set from the top.
		if err := mgr.ResetAll(); err != nil {
			log.Fatalf("Failed to reset URL states: %v", err)
		}
	}

	// --- Pipeline ---
	worker := pipeline.NewWorker(
		fetcher,
		extract.NewExtractor(extract.DefaultRegistry(), log),
		quality.NewGate(cfg.QualityAcceptThreshold, log),
		records,
		producer,
		cfg.PersistRetries,
		log,
	)
	orch := pipeline.NewOrchestrator(mgr, worker, checkpoints, records, cfg, log)

	err = orch.Run(runCtx)
	switch {
	case err == nil:
		log.Info("Acquisition completed successfully.")
	case errors.Is(err, context.Canceled):
		log.Warn("Acquisition cancelled gracefully.")
	default:
		log.Errorf("Acquisition failed: %v", err)
		os.Exit(1)
	}
}

func runReset(args []string) {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	configFile, logLevel := commonFlags(fs)
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	log := setupLogger(*logLevel)
	cfg := loadAndValidateConfig(*configFile, log)

	ctx := context.Background()
	urlStore, err := storage.NewBadgerURLStore(ctx, cfg.StateDir, cfg.AllowedDomain, false, log.WithField("component", "main"))
	if err != nil {
		log.Fatalf("Failed to open URL state DB: %v", err)
	}
	defer urlStore.Close()

	mgr, err := sitemap.NewManager(urlStore, nil, cfg, log)
	if err != nil {
		log.Fatalf("Failed to initialize sitemap manager: %v", err)
	}
	if err := mgr.ResetAll(); err != nil {
		log.Fatalf("Reset failed: %v", err)
	}
	fmt.Printf("Reset %d URL records to pending.\n", mgr.Total())
}

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configFile, logLevel := commonFlags(fs)
	jsonOut := fs.Bool("json", false, "Emit status as JSON")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	log := setupLogger(*logLevel)
	log.SetOutput(io.Discard) // status output goes to stdout only
	cfg := loadAndValidateConfig(*configFile, log)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	urlStore, err := storage.NewBadgerURLStore(ctx, cfg.StateDir, cfg.AllowedDomain, false, log.WithField("component", "main"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open URL state DB: %v\n", err)
		os.Exit(1)
	}
	defer urlStore.Close()

	mgr, err := sitemap.NewManager(urlStore, nil, cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	checkpoints := checkpoint.NewStore(cfg.StateDir, log.WithField("component", "checkpoint"))

	st := pipeline.Status{}
	counts := mgr.Counts()
	st.Pending = counts[models.URLStatusPending]
	st.InProgress = counts[models.URLStatusInProgress]
	st.Completed = counts[models.URLStatusCompleted]
	st.Failed = counts[models.URLStatusFailed]
	if cp, err := checkpoints.Resume(); err == nil && cp != nil {
		st.Checkpoint = *cp
	}

	// Quality distribution needs the product store; skip silently if it is
	// unreachable so status still works offline.
	if records, err := storage.NewMongoProductStore(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection, log.WithField("component", "product_store")); err == nil {
		defer records.Close(ctx)
		if dist, err := records.QualityDistribution(ctx); err == nil {
			st.QualityDistribution = dist
		}
	}

	if *jsonOut {
		out, _ := json.MarshalIndent(st, "", "  ")
		fmt.Println(string(out))
		return
	}

	fmt.Printf("URL records:  %d total\n", mgr.Total())
	fmt.Printf("  pending:     %d\n", st.Pending)
	fmt.Printf("  in_progress: %d\n", st.InProgress)
	fmt.Printf("  completed:   %d\n", st.Completed)
	fmt.Printf("  failed:      %d\n", st.Failed)
	if st.Checkpoint.SessionID != "" {
		fmt.Printf("Session %s: processed=%d success=%d failure=%d (flushed %s)\n",
			st.Checkpoint.SessionID, st.Checkpoint.ProcessedCount, st.Checkpoint.SuccessCount,
			st.Checkpoint.FailureCount, st.Checkpoint.LastFlushedAt.Format(time.RFC3339))
	}
	if len(st.QualityDistribution) > 0 {
		fmt.Println("Quality distribution:")
		for _, bucket := range []string{"0.00-0.25", "0.25-0.50", "0.50-0.75", "0.75-1.00"} {
			if n, ok := st.QualityDistribution[bucket]; ok {
				fmt.Printf("  %s: %d\n", bucket, n)
			}
		}
	}
}

func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	warnings, err := cfg.Validate()
	for _, w := range warnings {
		fmt.Printf("WARN: %s\n", w)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Configuration valid.")
}
