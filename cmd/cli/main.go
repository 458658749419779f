package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-search/internal/app"
	"github.com/dvloznov/ledger-search/internal/buildlog"
	"github.com/dvloznov/ledger-search/internal/config"
	"github.com/dvloznov/ledger-search/internal/datagen"
	"github.com/dvloznov/ledger-search/internal/domain"
	"github.com/dvloznov/ledger-search/internal/indexer"
	"github.com/dvloznov/ledger-search/internal/logger"
	"github.com/dvloznov/ledger-search/internal/recordstore"
	"github.com/dvloznov/ledger-search/internal/search"
	"github.com/dvloznov/ledger-search/internal/snapshot"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "generate":
		runGenerate(log)
	case "build-index":
		runBuildIndex(log)
	case "search":
		runSearch(log)
	case "summarize":
		runSummarize(log)
	case "embed":
		runEmbed(log)
	case "builds":
		runBuilds(log)
	case "fetch-artifacts":
		runFetchArtifacts(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Ledger Search CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  generate         Append synthetic transactions to a JSON ledger")
	fmt.Println("  build-index      Embed the ledger and write the index and metadata")
	fmt.Println("  search           Run a query against the on-disk index")
	fmt.Println("  summarize        Search, then summarize the results")
	fmt.Println("  embed            Export raw ledger embeddings as little-endian float32")
	fmt.Println("  builds           List recent index builds")
	fmt.Println("  fetch-artifacts  Download published index artifacts from Cloud Storage")
	fmt.Println("  help             Show this help message")
	fmt.Println("\nConfiguration is read from .env and LEDGER_* variables.")
	fmt.Println("Run 'cli <command> -h' for more information on a command.")
}

// loadConfig reads configuration and rebuilds the logger from it.
func loadConfig(envFile string, log zerolog.Logger) (config.Config, zerolog.Logger) {
	cfg, err := config.Load(envFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	configured, err := logger.NewFromConfig(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid logging configuration")
	}
	return cfg, configured
}

func runGenerate(log zerolog.Logger) {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	out := fs.String("out", "data/transactions.json", "Ledger file to append to")
	users := fs.String("users", "user_1,user_2,user_3", "Comma-separated user ids")
	n := fs.Int("n", 200, "Attempted transactions per user")
	start := fs.String("start", datagen.DefaultStart.Format(time.DateOnly), "First possible date (YYYY-MM-DD)")
	seed := fs.Int64("seed", 0, "Random seed (0 uses the current time)")
	fs.Parse(os.Args[2:])

	startDate, err := time.Parse(time.DateOnly, *start)
	if err != nil {
		log.Fatal().Err(err).Msg("Error: --start must be YYYY-MM-DD")
	}
	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}

	ids := splitList(*users)
	if len(ids) == 0 {
		log.Fatal().Msg("Error: --users is required")
	}

	txns := datagen.GenerateUsers(ids, *n, startDate, rand.New(rand.NewSource(*seed)))
	total, err := datagen.AppendToFile(*out, txns)
	if err != nil {
		log.Fatal().Err(err).Msg("Generation failed")
	}

	fmt.Printf("Wrote %d transactions for %d users to %s (%d total)\n", len(txns), len(ids), *out, total)
}

func runBuildIndex(log zerolog.Logger) {
	fs := flag.NewFlagSet("build-index", flag.ExitOnError)
	envFile := fs.String("env", ".env", "Path to an optional .env file")
	source := fs.String("source", "", "Transactions URI (overrides LEDGER_TRANSACTIONS_URI)")
	fs.Parse(os.Args[2:])

	cfg, log := loadConfig(*envFile, log)
	if *source != "" {
		cfg.TransactionsURI = *source
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	svc, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer svc.Close()

	builder, err := svc.NewBuilder(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open transactions source")
	}

	log.Info().Str("source", cfg.TransactionsURI).Msg("Starting index build")

	res, err := builder.Build(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Index build failed")
	}

	fmt.Printf("Build %s: indexed %d records (dim %d) in %s\n", res.BuildID, res.Index.Len(), res.Index.Dim(), res.Duration.Round(time.Millisecond))
	fmt.Printf("  index:    %s\n  metadata: %s\n", cfg.IndexPath, cfg.MetadataPath)
	for _, uri := range res.Published {
		fmt.Printf("  published: %s\n", uri)
	}
}

// searchFlags registers the query flags shared by search and summarize.
type searchFlags struct {
	envFile      *string
	query        *string
	topK         *int
	userID       *string
	month        *string
	initialFetch *int
}

func newSearchFlags(fs *flag.FlagSet) searchFlags {
	return searchFlags{
		envFile:      fs.String("env", ".env", "Path to an optional .env file"),
		query:        fs.String("query", "", "Free-text query"),
		topK:         fs.Int("top-k", 0, "Maximum results (defaults to LEDGER_DEFAULT_TOP_K)"),
		userID:       fs.String("user", "", "Only this user's transactions"),
		month:        fs.String("month", "", "Only this month (MM or YYYY-MM)"),
		initialFetch: fs.Int("initial-fetch", 0, "Candidate pool size (defaults to LEDGER_DEFAULT_INITIAL_FETCH)"),
	}
}

func (f searchFlags) request(cfg config.Config) search.Request {
	req := search.Request{
		Query:        *f.query,
		TopK:         cfg.DefaultTopK,
		UserID:       *f.userID,
		Month:        *f.month,
		InitialFetch: cfg.DefaultInitialFetch,
	}
	if *f.topK != 0 {
		req.TopK = *f.topK
	}
	if *f.initialFetch != 0 {
		req.InitialFetch = *f.initialFetch
	}
	return req
}

// runQuery loads the on-disk snapshot and runs one search.
func runQuery(ctx context.Context, f searchFlags, log zerolog.Logger) (*search.Response, *app.Services) {
	if *f.query == "" {
		log.Fatal().Msg("Error: --query is required")
	}
	cfg, log := loadConfig(*f.envFile, log)

	svc, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}

	holder := snapshot.NewHolder(nil)
	if _, err := holder.Reload(cfg.IndexPath, cfg.MetadataPath); err != nil {
		log.Fatal().Err(err).Msg("Failed to load index; run build-index first")
	}

	resp, err := search.NewPipeline(holder, svc.Embedder, log).Search(ctx, f.request(cfg))
	if err != nil {
		log.Fatal().Err(err).Msg("Search failed")
	}
	return resp, svc
}

func runSearch(log zerolog.Logger) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	f := newSearchFlags(fs)
	asJSON := fs.Bool("json", false, "Print the raw JSON response")
	fs.Parse(os.Args[2:])

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	resp, svc := runQuery(ctx, f, log)
	defer svc.Close()

	if *asJSON {
		if err := writeJSON(os.Stdout, resp); err != nil {
			log.Fatal().Err(err).Msg("Failed to encode response")
		}
		return
	}
	printResponse(os.Stdout, resp)
}

func runSummarize(log zerolog.Logger) {
	fs := flag.NewFlagSet("summarize", flag.ExitOnError)
	f := newSearchFlags(fs)
	fs.Parse(os.Args[2:])

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	resp, svc := runQuery(ctx, f, log)
	defer svc.Close()

	sum, err := svc.NewSummarizer(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create summarizer")
	}

	txns := make([]domain.Transaction, len(resp.Results))
	for i, r := range resp.Results {
		txns[i] = r.Transaction
	}
	summary, err := sum.Summarize(ctx, txns)
	if err != nil {
		log.Fatal().Err(err).Msg("Summarize failed")
	}

	printResponse(os.Stdout, resp)
	fmt.Printf("\n=== Summary ===\n%s\n", summary)
}

func runEmbed(log zerolog.Logger) {
	fs := flag.NewFlagSet("embed", flag.ExitOnError)
	envFile := fs.String("env", ".env", "Path to an optional .env file")
	source := fs.String("source", "", "Transactions URI (overrides LEDGER_TRANSACTIONS_URI)")
	out := fs.String("out", "embeddings/embeddings.f32", "Output file")
	fs.Parse(os.Args[2:])

	cfg, log := loadConfig(*envFile, log)
	if *source != "" {
		cfg.TransactionsURI = *source
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	svc, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer svc.Close()

	src, err := recordstore.Open(ctx, cfg.TransactionsURI)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open transactions source")
	}
	defer src.Close()

	store, err := recordstore.Load(ctx, src)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load transactions")
	}

	vecs, err := indexer.EmbedRecords(ctx, svc.Cache, store.Records())
	if err != nil {
		log.Fatal().Err(err).Msg("Embedding failed")
	}
	if err := indexer.WriteEmbeddings(*out, vecs); err != nil {
		log.Fatal().Err(err).Msg("Failed to write embeddings")
	}

	dim := 0
	if len(vecs) > 0 {
		dim = len(vecs[0])
	}
	fmt.Printf("Saved %d embeddings (dim %d) at %s\n", len(vecs), dim, *out)
}

func runBuilds(log zerolog.Logger) {
	fs := flag.NewFlagSet("builds", flag.ExitOnError)
	envFile := fs.String("env", ".env", "Path to an optional .env file")
	limit := fs.Int("limit", 10, "Number of builds to show")
	fs.Parse(os.Args[2:])

	cfg, log := loadConfig(*envFile, log)

	ctx := logger.WithContext(context.Background(), log)

	svc, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer svc.Close()

	if svc.BuildLog == nil {
		log.Fatal().Msg("Build log disabled (LEDGER_BUILD_LOG_PATH is empty)")
	}

	runs, err := svc.BuildLog.ListRuns(ctx, *limit)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list builds")
	}

	fmt.Printf("\n=== Builds (%d) ===\n", len(runs))
	for i, run := range runs {
		fmt.Printf("\n%d. %s [%s]\n", i+1, run.BuildID, run.Status)
		fmt.Printf("   Source:   %s\n", run.Source)
		fmt.Printf("   Started:  %s\n", run.StartedAt.Format(time.RFC3339))
		if run.FinishedAt != nil {
			fmt.Printf("   Finished: %s\n", run.FinishedAt.Format(time.RFC3339))
		}
		if run.Status == buildlog.StatusSuccess {
			fmt.Printf("   Records:  %d (dim %d)\n", run.Records, run.Dimension)
		}
		if run.Error != "" {
			fmt.Printf("   Error:    %s\n", run.Error)
		}
	}
	fmt.Println()
}

func runFetchArtifacts(log zerolog.Logger) {
	fs := flag.NewFlagSet("fetch-artifacts", flag.ExitOnError)
	envFile := fs.String("env", ".env", "Path to an optional .env file")
	buildID := fs.String("build-id", "", "Build to fetch (defaults to the latest)")
	fs.Parse(os.Args[2:])

	cfg, log := loadConfig(*envFile, log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	svc, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer svc.Close()

	if svc.Publisher == nil {
		log.Fatal().Msg("Error: LEDGER_ARTIFACT_BUCKET is not set")
	}

	if *buildID == "" {
		err = svc.Publisher.FetchLatest(ctx, cfg.IndexPath, cfg.MetadataPath)
	} else {
		err = svc.Publisher.Fetch(ctx, *buildID, cfg.IndexPath, cfg.MetadataPath)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Fetch failed")
	}

	snap, err := snapshot.Load(cfg.IndexPath, cfg.MetadataPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Fetched artifacts are not usable")
	}
	fmt.Printf("Fetched %d records (dim %d) to %s and %s\n", snap.Len(), snap.Index.Dim(), cfg.IndexPath, cfg.MetadataPath)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func printResponse(w io.Writer, resp *search.Response) {
	fmt.Fprintf(w, "\n=== Results for %q (%d of %d) ===\n", resp.Query, resp.Count, resp.TotalBeforeLimit)
	for i, r := range resp.Results {
		fmt.Fprintf(w, "%d. %s\n", i+1, formatResult(r))
	}
}

func formatResult(r search.Result) string {
	return fmt.Sprintf("%s  %-7s %12s  %-13s %s  (%s, score %.4f)",
		r.Date, r.Type, domain.FormatAmount(r.Amount), r.Category, r.Description, r.UserID, r.Score)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
