// Package main is the Kikoe CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/kikoe/internal/cli"
	"github.com/hyperjump/kikoe/internal/config"
	"github.com/hyperjump/kikoe/internal/embedding"
	"github.com/hyperjump/kikoe/internal/indexer"
	"github.com/hyperjump/kikoe/internal/models"
	"github.com/hyperjump/kikoe/internal/search"
	"github.com/hyperjump/kikoe/internal/server"
	"github.com/hyperjump/kikoe/internal/storage"
	"github.com/hyperjump/kikoe/internal/transcript"
	"github.com/hyperjump/kikoe/internal/watcher"
	"github.com/hyperjump/kikoe/pkg/utils"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kikoe/config.yaml"

// loadConfig loads config from path. When path is the default, config.yaml in the current
// directory takes precedence, and when neither exists the built-in defaults are used.
// Returns the config and the path that was actually loaded ("" for built-in defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			return config.Default(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// A missing .env is fine; keys may come from the environment or the config file.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(1)
	}
	command, args := os.Args[1], os.Args[2:]
	var err error
	switch command {
	case "server":
		err = runServer(args)
	case "index":
		err = runIndex(args, os.Stdout)
	case "query", "search":
		err = runQuery(args, os.Stdout)
	case "status":
		err = runStatus(args, os.Stdout)
	case "version", "--version", "-v":
		fmt.Printf("kikoe version %s\n", version)
	case "help", "--help", "-h":
		printUsage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage(os.Stderr)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads and validates the config and creates the logger.
func setup(configPath string, debugFlag bool) (*config.Config, *zap.Logger, error) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	debugMode := cfg.Debug || debugFlag
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}
	if resolved == "" {
		resolved = "(built-in defaults)"
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debugMode))
	return cfg, logger, nil
}

func runServer(args []string) error {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args)

	cfg, logger, err := setup(*configPath, *debug)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	components, err := initializeComponents(ctx, cfg, logger, componentOptions{})
	if err != nil {
		return err
	}
	defer components.Close()

	if cfg.Transcripts.Watch {
		watchSvc := watcher.NewWatcher(
			cfg.Transcripts.Directory,
			components.Indexer,
			watcher.WithExtensions(cfg.Transcripts.Extensions),
			watcher.WithRecursive(cfg.Transcripts.RecursiveOrDefault()),
			watcher.WithLogger(logger.Named("watcher")),
		)
		if err := watchSvc.Start(ctx); err != nil {
			return fmt.Errorf("start watcher: %w", err)
		}
		go watchSvc.SyncExistingFiles()
	}

	server.Version = version
	srv := server.NewServer(
		components.Engine,
		components.Indexer,
		components.Source,
		components.Store,
		cfg,
		logger.Named("server"),
	)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Stop(shutdownCtx)
}

// providerOverride turns the --local and --openai flags into a per-call provider choice;
// nil keeps the configured provider.
func providerOverride(local, openai bool) (*bool, error) {
	switch {
	case local && openai:
		return nil, fmt.Errorf("%w: --local and --openai are mutually exclusive", models.ErrInvalidInput)
	case local:
		v := true
		return &v, nil
	case openai:
		v := false
		return &v, nil
	default:
		return nil, nil
	}
}

func runIndex(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	force := fs.Bool("force", false, "re-ingest transcripts even when unchanged")
	rebuild := fs.Bool("rebuild", false, "delete the index and ingest everything again (after changing the embedding provider or model)")
	local := fs.Bool("local", false, "embed with the local model")
	openai := fs.Bool("openai", false, "embed with the remote API")
	outputFormat := fs.String("output", "text", "output format: text or json")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(argsReorder(fs, args))

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		return err
	}
	useLocal, err := providerOverride(*local, *openai)
	if err != nil {
		return err
	}
	if *rebuild && fs.NArg() > 0 {
		if info, err := os.Stat(fs.Arg(0)); err == nil && !info.IsDir() {
			return fmt.Errorf("%w: --rebuild needs a transcript directory, not a single file", models.ErrInvalidInput)
		}
	}
	cfg, logger, err := setup(*configPath, *debug)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if *rebuild {
		if err := storage.RemoveIndex(cfg.Storage.IndexDir); err != nil {
			return err
		}
		logger.Info("index removed for rebuild", zap.String("index_dir", cfg.Storage.IndexDir))
		fmt.Fprintf(stdout, "Rebuilding index in %s\n", cfg.Storage.IndexDir)
	}

	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger, componentOptions{useLocal: useLocal, force: *force || *rebuild})
	if err != nil {
		return err
	}
	defer components.Close()

	src := components.Source
	if fs.NArg() > 0 {
		path := fs.Arg(0)
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		if !info.IsDir() {
			n, err := components.Indexer.IngestFile(ctx, path)
			if errors.Is(err, indexer.ErrUnchanged) {
				fmt.Fprintf(stdout, "Transcript unchanged: %s\n", path)
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Indexed %s (%d chunks)\n", path, n)
			return nil
		}
		src = transcript.NewDirSource(path, cfg.Transcripts.Extensions,
			transcript.WithRecursive(cfg.Transcripts.RecursiveOrDefault()),
			transcript.WithLogger(logger))
	}

	report, err := components.Indexer.IngestAll(ctx, src)
	if err != nil {
		return err
	}
	if err := cli.WriteIngestReport(stdout, report, format); err != nil {
		return err
	}
	if report.Failed() {
		return fmt.Errorf("%d transcript(s) failed to ingest", len(report.Failures))
	}
	return nil
}

// printQueryUsage prints query subcommand usage.
func printQueryUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: kikoe query [flags] <text>\n\n")
	fmt.Fprintf(fs.Output(), "The query is all remaining arguments joined by spaces.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  kikoe query vector databases
  kikoe query --top-k 3 --podcast episode-12 "retrieval augmented generation"
  kikoe query --local --output json embeddings
  kikoe query --server http://localhost:8080 embeddings
`)
}

// buildQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves flags and their values to the front so flag.Parse sees them
// wherever they appear; Go's flag package stops at the first non-flag argument.
// Positional words keep their relative order. Arguments after "--" are positional.
func argsReorder(fs *flag.FlagSet, args []string) []string {
	var flags, words []string
	terminated := false
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			words = append(words, args[i+1:]...)
			terminated = true
			break
		}
		if len(a) < 2 || a[0] != '-' {
			words = append(words, a)
			continue
		}
		flags = append(flags, a)
		if strings.Contains(a, "=") || !flagTakesValue(fs, strings.TrimLeft(a, "-")) {
			continue
		}
		if i+1 < len(args) {
			i++
			flags = append(flags, args[i])
		}
	}
	if terminated && len(words) > 0 {
		flags = append(flags, "--")
	}
	if flags == nil && words == nil {
		return args
	}
	return append(flags, words...)
}

// flagTakesValue reports whether the named flag consumes the next argument.
// Unknown flags are left for flag.Parse to reject.
func flagTakesValue(fs *flag.FlagSet, name string) bool {
	f := fs.Lookup(name)
	if f == nil {
		return false
	}
	if bf, ok := f.Value.(interface{ IsBoolFlag() bool }); ok && bf.IsBoolFlag() {
		return false
	}
	return true
}

func runQuery(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL; empty queries the index directly")
	topK := fs.Int("top-k", 0, "number of results (default from config)")
	podcast := fs.String("podcast", "", "only return chunks of this source id")
	local := fs.Bool("local", false, "embed the query with the local model")
	openai := fs.Bool("openai", false, "embed the query with the remote API")
	outputFormat := fs.String("output", "text", "output format: text or json")
	debug := fs.Bool("debug", false, "enable debug logging")
	fs.Usage = func() { printQueryUsage(fs) }
	_ = fs.Parse(argsReorder(fs, args))

	text := buildQuery(fs.Args())
	if text == "" {
		printQueryUsage(fs)
		return fmt.Errorf("%w: missing query text", models.ErrInvalidInput)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		return err
	}
	useLocal, err := providerOverride(*local, *openai)
	if err != nil {
		return err
	}
	query := &models.SearchQuery{Search: text, TopK: *topK, Podcast: *podcast, Local: useLocal}

	if *serverURL != "" {
		response, err := queryViaHTTP(*serverURL, query)
		if err != nil {
			return err
		}
		return cli.WriteSearchResults(stdout, response, format)
	}

	cfg, logger, err := setup(*configPath, *debug)
	if err != nil {
		return err
	}
	defer logger.Sync()
	if query.TopK == 0 {
		query.TopK = cfg.Search.DefaultTopK
	}

	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger, componentOptions{})
	if err != nil {
		return err
	}
	defer components.Close()

	response, err := components.Engine.Search(ctx, query)
	if err != nil {
		return err
	}
	return cli.WriteSearchResults(stdout, response, format)
}

func queryViaHTTP(serverURL string, query *models.SearchQuery) (*models.SearchResponse, error) {
	params := url.Values{}
	params.Set("search", query.Search)
	if query.TopK > 0 {
		params.Set("top_k", strconv.Itoa(query.TopK))
	}
	if query.Podcast != "" {
		params.Set("podcast", query.Podcast)
	}
	if query.Local != nil {
		params.Set("local", strconv.FormatBool(*query.Local))
	}
	resp, err := http.Get(strings.TrimRight(serverURL, "/") + "/query?" + params.Encode())
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var response models.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

func runStatus(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		return err
	}
	cfg, logger, err := setup(*configPath, false)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := context.Background()
	store, err := storage.LoadOrCreate(ctx, cfg.Storage.IndexDir, logger.Named("store"))
	if err != nil {
		return err
	}
	defer store.Close()
	stats, err := store.Stats(ctx)
	if err != nil {
		return err
	}
	if format == cli.OutputText {
		fmt.Fprintf(stdout, "Index:      %s\n", store.Dir())
		fmt.Fprintf(stdout, "Provider:   %s\n", cfg.Embedding.Provider)
	}
	return cli.WriteStats(stdout, stats, format)
}

// Components holds initialized services.
type Components struct {
	Store    *storage.TranscriptStore
	Selector *embedding.Selector
	Embedder embedding.Embedder
	Chunker  *indexer.Chunker
	Indexer  *indexer.Indexer
	Engine   *search.Engine
	Source   *transcript.DirSource
}

// Close releases the store and every embedder that was created.
func (c *Components) Close() {
	if c.Selector != nil {
		_ = c.Selector.Close()
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
}

type componentOptions struct {
	useLocal *bool
	force    bool
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts componentOptions) (*Components, error) {
	chunker, err := indexer.NewChunker(cfg.Chunking.WindowSize, cfg.Chunking.OverlapOrDefault())
	if err != nil {
		return nil, err
	}
	store, err := storage.LoadOrCreate(ctx, cfg.Storage.IndexDir, logger.Named("store"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	selector := embedding.NewSelector(cfg.Embedding, embedding.WithSelectorLogger(logger.Named("embedding")))
	var embedder embedding.Embedder
	if opts.useLocal != nil {
		embedder, err = selector.For(*opts.useLocal)
	} else {
		embedder, err = selector.Default()
	}
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	source := transcript.NewDirSource(cfg.Transcripts.Directory, cfg.Transcripts.Extensions,
		transcript.WithRecursive(cfg.Transcripts.RecursiveOrDefault()),
		transcript.WithLogger(logger.Named("transcripts")))
	idx := indexer.NewIndexer(store, embedder, chunker,
		indexer.WithLogger(logger.Named("indexer")),
		indexer.WithWorkers(cfg.Chunking.Workers),
		indexer.WithLocalBatchSize(cfg.Chunking.LocalBatchSize),
		indexer.WithForce(opts.force))
	engine := search.NewEngine(store, selector,
		search.WithLogger(logger.Named("search")),
		search.WithMaxTopK(cfg.Search.MaxTopK))

	logger.Debug("components initialized",
		zap.String("index_dir", store.Dir()),
		zap.String("embedder", string(embedder.Kind())),
		zap.Int("dimension", store.Dimensions()),
		zap.Int("window_size", cfg.Chunking.WindowSize),
		zap.Int("overlap_words", chunker.Overlap()))

	return &Components{
		Store:    store,
		Selector: selector,
		Embedder: embedder,
		Chunker:  chunker,
		Indexer:  idx,
		Engine:   engine,
		Source:   source,
	}, nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `kikoe - Semantic search over podcast transcripts

Usage:
  kikoe server [flags]           Start the HTTP server
  kikoe index [flags] [path]     Ingest the transcript directory, or one file or directory
  kikoe query [flags] <text>     Search transcripts
  kikoe status [flags]           Show index statistics
  kikoe version                  Show version
  kikoe help                     Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/kikoe/config.yaml,
                     falling back to ./config.yaml, then built-in defaults)
  --debug            Enable debug logging

Index Flags:
  --force            Re-ingest transcripts even when unchanged
  --rebuild          Delete the index and ingest everything again; needed after
                     switching embedding provider or model dimensions
  --local, --openai  Override embedding.provider for this run
  --output string    Output format: text or json (default: text)

Query Flags:
  --top-k int        Number of results (default from config)
  --podcast string   Only return chunks of this source id
  --local, --openai  Override embedding.provider for this query
  --server string    Query a running server instead of the index directly
  --output string    Output format: text or json (default: text)

Examples:
  kikoe server
  kikoe index
  kikoe index --force ./transcripts
  kikoe index --rebuild --openai
  kikoe query "how do embeddings work"
  kikoe query --top-k 3 --podcast episode-12 vector search
  kikoe status --output json`)
}
