package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"maps"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/hyperjump/shirabe/internal/cli"
	"github.com/hyperjump/shirabe/internal/extract"
	"github.com/hyperjump/shirabe/internal/indexer"
	"github.com/hyperjump/shirabe/internal/models"
	"github.com/hyperjump/shirabe/internal/storage"
)

// statusResponse is the shape of GET /api/v1/status.
type statusResponse struct {
	Documents      int                    `json:"documents"`
	Chunks         int                    `json:"chunks"`
	Collection     string                 `json:"collection"`
	Queue          models.QueueStats      `json:"queue"`
	DiskUsageBytes *int64                 `json:"disk_usage_bytes,omitempty"`
	Config         map[string]interface{} `json:"config,omitempty"`
}

func parseFormat(s string) cli.OutputFormat {
	format, err := cli.ParseOutputFormat(s)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return format
}

func fail(what string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", what, err)
	os.Exit(1)
}

// interruptible returns a context cancelled on SIGINT or SIGTERM.
func interruptible() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runSearch() {
	args := searchArgsReorder(os.Args[2:])
	flagSet := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := flagSet.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := flagSet.String("server", defaultServerURL, "server URL (empty = search local storage directly)")
	limit := flagSet.Int("limit", 0, "number of results (0 = config default)")
	threshold := flagSet.Float64("threshold", 0, "minimum similarity in [0,1] (0 = config default)")
	output := flagSet.String("output", "text", "output format: text, compact or json")
	_ = flagSet.Parse(args)

	q := buildSearchQuery(flagSet.Args())
	if q == "" {
		fmt.Println("Usage: shirabe search [flags] <query>")
		os.Exit(1)
	}
	format := parseFormat(*output)
	query := &models.SearchQuery{Query: q, Limit: *limit, Threshold: *threshold}

	ctx, cancel := interruptible()
	defer cancel()
	var (
		response *models.SearchResponse
		err      error
	)
	if *serverURL != "" {
		response, err = newAPIClient(*serverURL).Search(ctx, query)
	} else {
		_, logger, components := openDirect(*configPath)
		defer logger.Sync()
		defer components.Close()
		response, err = components.Engine.Search(ctx, query)
	}
	if err != nil {
		fail("Search failed", err)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fail("Output failed", err)
	}
}

func runAsk() {
	args := searchArgsReorder(os.Args[2:])
	flagSet := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := flagSet.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := flagSet.String("server", defaultServerURL, "server URL (empty = answer from local storage directly)")
	maxResults := flagSet.Int("sources", 0, "number of chunks to ground the answer in (0 = config default)")
	threshold := flagSet.Float64("threshold", 0, "minimum similarity in [0,1] (0 = config default)")
	output := flagSet.String("output", "text", "output format: text or json")
	_ = flagSet.Parse(args)

	q := buildSearchQuery(flagSet.Args())
	if q == "" {
		fmt.Println("Usage: shirabe ask [flags] <question>")
		os.Exit(1)
	}
	format := parseFormat(*output)
	req := &models.AnswerRequest{Query: q, MaxResults: *maxResults, Threshold: *threshold}

	ctx, cancel := interruptible()
	defer cancel()
	var (
		resp *models.AnswerResponse
		err  error
	)
	if *serverURL != "" {
		resp, err = newAPIClient(*serverURL).Answer(ctx, req)
	} else {
		_, logger, components := openDirect(*configPath)
		defer logger.Sync()
		defer components.Close()
		resp, err = components.Engine.Answer(ctx, req)
	}
	if err != nil {
		fail("Answer failed", err)
	}
	if err := cli.WriteAnswer(os.Stdout, resp, format); err != nil {
		fail("Output failed", err)
	}
}

func runIndex() {
	flagSet := flag.NewFlagSet("index", flag.ExitOnError)
	configPath := flagSet.String("config", defaultConfigPath, "config file path")
	serverURL := flagSet.String("server", defaultServerURL, "server URL (empty = index directly and wait for completion)")
	output := flagSet.String("output", "text", "output format for the final queue (direct mode): text or json")
	_ = flagSet.Parse(os.Args[2:])

	if flagSet.NArg() < 1 {
		fmt.Println("Usage: shirabe index [flags] <file-or-directory>...")
		os.Exit(1)
	}
	ctx, cancel := interruptible()
	defer cancel()

	if *serverURL == "" {
		indexDirect(ctx, *configPath, flagSet.Args(), parseFormat(*output))
		return
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fail("Failed to load config", err)
	}
	client := newAPIClient(*serverURL)
	extractor := extract.NewExtractor()
	queued, failed := 0, 0
	for _, root := range flagSet.Args() {
		paths, err := collectFiles(root, cfg.Watch.Extensions)
		if err != nil {
			fail("Failed to read "+root, err)
		}
		for _, path := range paths {
			id, err := enqueueFile(ctx, client, extractor, path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
				failed++
				var apiErr *apiError
				if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
					fmt.Fprintln(os.Stderr, "Queue is full; stopping.")
					os.Exit(1)
				}
				continue
			}
			fmt.Printf("%s  %s\n", id, path)
			queued++
		}
	}
	fmt.Printf("Queued %d file(s)", queued)
	if failed > 0 {
		fmt.Printf(", %d failed", failed)
	}
	fmt.Println()
}

func enqueueFile(ctx context.Context, client *apiClient, extractor *extract.Extractor, path string) (string, error) {
	text, err := extractor.Extract(path)
	if err != nil {
		return "", err
	}
	return client.Enqueue(ctx, models.DocumentInput{
		Title:    filepath.Base(path),
		Content:  text,
		Source:   indexer.SourceFile,
		Metadata: map[string]interface{}{"source_path": path},
	})
}

// collectFiles returns root when it is a file, or every file below it whose extension is in
// exts. Explicitly named files are never filtered.
func collectFiles(root string, exts []string) ([]string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{abs}, nil
	}
	var out []string
	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != abs && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if len(exts) == 0 || hasExtension(ext, exts) {
			out = append(out, path)
		}
		return nil
	})
	return out, err
}

func hasExtension(ext string, exts []string) bool {
	for _, e := range exts {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

func indexDirect(ctx context.Context, configPath string, roots []string, format cli.OutputFormat) {
	_, logger, components := openDirect(configPath)
	defer logger.Sync()
	defer components.Close()

	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil {
			fail("Failed to stat path", err)
		}
		if info.IsDir() {
			n, err := components.Ingester.IngestDirectory(ctx, root)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Indexing %s stopped after %d file(s): %v\n", root, n, err)
			}
			continue
		}
		if _, _, err := components.Ingester.IngestFile(ctx, root); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", root, err)
		}
	}
	if err := components.Coordinator.Wait(ctx); err != nil {
		logger.Warn("indexing interrupted", zap.Error(err))
	}
	if err := cli.WriteQueue(os.Stdout, components.Coordinator.Status(), format); err != nil {
		fail("Output failed", err)
	}
}

func runQueue() {
	sub := "list"
	args := os.Args[2:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		sub, args = args[0], args[1:]
	}
	flagSet := flag.NewFlagSet("queue", flag.ExitOnError)
	serverURL := flagSet.String("server", defaultServerURL, "server URL")
	output := flagSet.String("output", "text", "output format: text or json")
	_ = flagSet.Parse(args)

	format := parseFormat(*output)
	client := newAPIClient(*serverURL)
	ctx, cancel := interruptible()
	defer cancel()

	switch sub {
	case "list":
		snap, err := client.Queue(ctx)
		if err != nil {
			fail("Queue failed", err)
		}
		if err := cli.WriteQueue(os.Stdout, snap, format); err != nil {
			fail("Output failed", err)
		}
	case "get":
		if flagSet.NArg() < 1 {
			fmt.Println("Usage: shirabe queue get <document-id>")
			os.Exit(1)
		}
		item, err := client.QueueItem(ctx, flagSet.Arg(0))
		if err != nil {
			fail("Queue item failed", err)
		}
		snap := models.QueueSnapshot{Items: []models.QueueItem{item}}
		if format == cli.OutputJSON {
			_ = cli.WriteJSON(os.Stdout, item)
			return
		}
		_ = cli.WriteQueue(os.Stdout, snap, format)
	case "remove":
		if flagSet.NArg() < 1 {
			fmt.Println("Usage: shirabe queue remove <document-id>")
			os.Exit(1)
		}
		if err := client.RemoveQueueItem(ctx, flagSet.Arg(0)); err != nil {
			fail("Remove failed", err)
		}
		fmt.Printf("Removed: %s\n", flagSet.Arg(0))
	case "clear":
		n, err := client.ClearQueue(ctx)
		if err != nil {
			fail("Clear failed", err)
		}
		fmt.Printf("Cleared %d finished item(s)\n", n)
	default:
		fmt.Printf("Unknown queue subcommand: %s\n", sub)
		os.Exit(1)
	}
}

func runDelete() {
	flagSet := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := flagSet.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := flagSet.String("server", defaultServerURL, "server URL (empty = delete from local storage directly)")
	_ = flagSet.Parse(os.Args[2:])

	if flagSet.NArg() < 1 {
		fmt.Println("Usage: shirabe delete [flags] <document-id>")
		os.Exit(1)
	}
	docID := flagSet.Arg(0)
	ctx, cancel := interruptible()
	defer cancel()

	var (
		n   int
		err error
	)
	if *serverURL != "" {
		n, err = newAPIClient(*serverURL).DeleteDocument(ctx, docID)
	} else {
		_, logger, components := openDirect(*configPath)
		defer logger.Sync()
		defer components.Close()
		n, err = components.Coordinator.DeleteDocument(ctx, docID)
	}
	if err != nil {
		fail("Deletion failed", err)
	}
	fmt.Printf("Document deleted: %s (%d chunks)\n", docID, n)
}

func runStatus() {
	flagSet := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := flagSet.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := flagSet.String("server", defaultServerURL, "server URL (empty = use local storage directly)")
	output := flagSet.String("output", "text", "output format: text or json")
	_ = flagSet.Parse(os.Args[2:])

	format := parseFormat(*output)
	ctx, cancel := interruptible()
	defer cancel()

	var status *statusResponse
	if *serverURL != "" {
		res, err := newAPIClient(*serverURL).Status(ctx)
		if err != nil {
			fail("Status failed", err)
		}
		status = res
	} else {
		cfg, logger, components := openDirect(*configPath)
		defer logger.Sync()
		defer components.Close()
		res, err := directStatus(ctx, components)
		if err != nil {
			fail("Status failed", err)
		}
		if n, err := storage.DiskUsageBytes(cfg.Storage.DatabasePath, cfg.Storage.VectorIndexPath); err == nil {
			res.DiskUsageBytes = &n
		}
		status = res
	}

	if format == cli.OutputJSON {
		if err := cli.WriteJSON(os.Stdout, status); err != nil {
			fail("Output failed", err)
		}
		return
	}
	writeStatusText(status)
}

func directStatus(ctx context.Context, c *Components) (*statusResponse, error) {
	chunks, err := c.Store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count chunks: %w", err)
	}
	ids, err := c.Store.ListDocumentIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return &statusResponse{
		Documents:  len(ids),
		Chunks:     chunks,
		Collection: c.Store.CollectionName(),
		Queue:      c.Coordinator.Status().Stats,
	}, nil
}

func writeStatusText(s *statusResponse) {
	fmt.Printf("documents:   %d\n", s.Documents)
	fmt.Printf("chunks:      %d\n", s.Chunks)
	fmt.Printf("collection:  %s\n", s.Collection)
	q := s.Queue
	fmt.Printf("queue:       %d total, %d pending, %d processing, %d completed, %d failed\n",
		q.Total, q.Pending, q.Processing, q.Completed, q.Failed)
	if s.DiskUsageBytes != nil {
		fmt.Printf("disk_usage:  %d bytes\n", *s.DiskUsageBytes)
	}
	if len(s.Config) > 0 {
		fmt.Println()
		fmt.Println("# configuration")
		for _, key := range slices.Sorted(maps.Keys(s.Config)) {
			if v := s.Config[key]; v != nil && v != "" {
				fmt.Printf("%-22s %v\n", key+":", v)
			}
		}
	}
}

func runReset() {
	flagSet := flag.NewFlagSet("reset", flag.ExitOnError)
	serverURL := flagSet.String("server", defaultServerURL, "server URL")
	yes := flagSet.Bool("yes", false, "confirm deleting every indexed chunk")
	_ = flagSet.Parse(os.Args[2:])

	if !*yes {
		fmt.Println("This deletes every indexed chunk. Re-run with --yes to confirm.")
		os.Exit(1)
	}
	ctx, cancel := interruptible()
	defer cancel()
	if err := newAPIClient(*serverURL).Reset(ctx); err != nil {
		fail("Reset failed", err)
	}
	fmt.Println("Vector collection reset")
}

func runWatch() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: shirabe watch <add|remove|list> [path]")
		fmt.Println("  shirabe watch add <path>     Add directory to watch")
		fmt.Println("  shirabe watch remove <path>  Remove directory from watch")
		fmt.Println("  shirabe watch list           List watched directories")
		os.Exit(1)
	}
	sub := os.Args[2]
	flagSet := flag.NewFlagSet("watch", flag.ExitOnError)
	serverURL := flagSet.String("server", defaultServerURL, "server URL")
	noSync := flagSet.Bool("no-sync", false, "do not index files already in the directory")
	_ = flagSet.Parse(os.Args[3:])

	client := newAPIClient(*serverURL)
	ctx, cancel := interruptible()
	defer cancel()

	switch sub {
	case "add", "remove":
		if flagSet.NArg() < 1 {
			fmt.Printf("Usage: shirabe watch %s <path>\n", sub)
			os.Exit(1)
		}
		path, err := filepath.Abs(flagSet.Arg(0))
		if err != nil {
			fail("Invalid path", err)
		}
		if sub == "add" {
			if err := client.AddWatchDirectory(ctx, path, !*noSync); err != nil {
				fail("Add failed", err)
			}
			fmt.Printf("Added: %s\n", path)
			return
		}
		if err := client.RemoveWatchDirectory(ctx, path); err != nil {
			fail("Remove failed", err)
		}
		fmt.Printf("Removed: %s\n", path)
	case "list":
		dirs, err := client.WatchDirectories(ctx)
		if err != nil {
			fail("List failed", err)
		}
		for _, d := range dirs {
			fmt.Println(d)
		}
	default:
		fmt.Printf("Unknown watch subcommand: %s\n", sub)
		os.Exit(1)
	}
}
