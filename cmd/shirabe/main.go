// Package main is the shirabe CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/shirabe/internal/config"
	"github.com/hyperjump/shirabe/internal/server"
	"github.com/hyperjump/shirabe/internal/watcher"
	"github.com/hyperjump/shirabe/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/shirabe/config.yaml"

// loadConfig loads config from path. When path is the default and config.yaml exists in
// the current directory, that file wins, so "shirabe server" run from a project directory
// uses the project's config. Returns the path that was actually loaded.
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
	}
	if path == defaultConfigPath {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			cfg := &config.Config{}
			config.ApplyDefaults(cfg)
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "index", "enqueue":
		runIndex()
	case "queue":
		runQueue()
	case "search":
		runSearch()
	case "ask":
		runAsk()
	case "delete":
		runDelete()
	case "status":
		runStatus()
	case "reset":
		runReset()
	case "watch":
		runWatch()
	case "version", "--version", "-v":
		fmt.Printf("shirabe version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// openDirect loads config and builds the components for commands that run without a
// server. It exits on failure.
func openDirect(configPath string) (*config.Config, *zap.Logger, *Components) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	return cfg, logger, components
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	host := fs.String("host", "", "listen host (overrides server.host)")
	port := fs.Int("port", 0, "listen port (overrides server.port)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	ctx := context.Background()
	if n, err := components.Coordinator.Restore(ctx); err != nil {
		logger.Warn("queue restore failed", zap.Error(err))
	} else if n > 0 {
		logger.Info("queue restored", zap.Int("requeued", n))
	}

	watchSvc := watcher.New(components.Ingester,
		watcher.WithDirectories(cfg.Watch.Directories...),
		watcher.WithExtensions(cfg.Watch.Extensions),
		watcher.WithRecursive(cfg.Watch.RecursiveOrDefault()),
		watcher.WithLogger(logger),
	)
	watchCtx, watchCancel := context.WithCancel(ctx)
	defer watchCancel()
	if err := watchSvc.Start(watchCtx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	go watchSvc.SyncExisting()

	srv := server.NewServer(server.Deps{
		Queue:      components.Coordinator,
		Search:     components.Engine,
		Chunks:     components.Store,
		Models:     components.LLM,
		Extractor:  components.Extractor,
		Watch:      watchSvc,
		Config:     cfg,
		ConfigPath: resolvedConfigPath,
	}, logger)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(cfg.Server.Host, cfg.Server.Port)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", zap.Error(err))
		}
	}

	logger.Info("shutting down")
	watchCancel()
	watchSvc.Stop()
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(stopCtx); err != nil {
		logger.Warn("server stop failed", zap.Error(err))
	}
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// configPathFromArgs returns the value of -config/--config from args if present, else defaultPath.
func configPathFromArgs(args []string, defaultPath string) string {
	for i, a := range args {
		if (a == "-config" || a == "--config") && i+1 < len(args) {
			return args[i+1]
		}
		if v, ok := strings.CutPrefix(a, "--config="); ok {
			return v
		}
		if v, ok := strings.CutPrefix(a, "-config="); ok {
			return v
		}
	}
	return defaultPath
}

// searchArgsReorder moves any flags (and their values) that appear after the query
// to the front so that flag.Parse sees them. The flag package stops at the first
// non-flag argument, so "shirabe search fuel levels -limit 3" would otherwise leave
// -limit unparsed.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func printUsage() {
	fmt.Println(`shirabe - document indexing and grounded question answering

Usage:
  shirabe server [flags]                 Start the HTTP server
  shirabe index [flags] <file-or-dir>    Queue files for indexing
  shirabe queue [list|get|remove|clear]  Inspect or edit the indexing queue
  shirabe search [flags] <query>         Semantic search over indexed chunks
  shirabe ask [flags] <question>         Answer a question from indexed documents
  shirabe delete [flags] <document-id>   Delete a document and its chunks
  shirabe status [flags]                 Show store, queue and config status
  shirabe reset [flags]                  Delete every indexed chunk
  shirabe watch <add|remove|list>        Manage watched directories
  shirabe version                        Show version
  shirabe help                           Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/shirabe/config.yaml)
  --debug            Enable debug logging
  --host string      Listen host (overrides config)
  --port int         Listen port (overrides config)

Common Flags:
  --server string    Server URL (default: http://localhost:8080). Use --server "" to run
                     index, search, ask, delete and status directly against local storage.
  --output string    Output format: text, compact or json (default: text)

Search Flags:
  --limit int          Number of results (default from config)
  --threshold float    Minimum similarity in [0,1] (default from config)

Examples:
  shirabe server
  shirabe index ./reports
  shirabe search fuel levels at checkpoint north
  shirabe ask --output json "Who reported the bridge closure?"
  shirabe queue
  shirabe delete 0b6a9c1e-2f3d-5a1b-8c7d-1e2f3a4b5c6d
  shirabe status --output json
  shirabe watch add /path/to/reports`)
}
