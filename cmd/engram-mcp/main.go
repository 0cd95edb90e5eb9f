package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/xiy/engram-mcp/internal/admin"
	"github.com/xiy/engram-mcp/internal/bootstrap"
	"github.com/xiy/engram-mcp/internal/config"
	"github.com/xiy/engram-mcp/internal/engine"
	"github.com/xiy/engram-mcp/internal/graph"
	"github.com/xiy/engram-mcp/internal/maintenance"
	"github.com/xiy/engram-mcp/internal/mcp"
	"github.com/xiy/engram-mcp/internal/store"
	"github.com/xiy/engram-mcp/internal/vector"
)

const version = "engram-mcp v0.1.0"

var subcommands = map[string]func([]string) error{
	"serve":          runServe,
	"admin":          runAdmin,
	"bootstrap-clis": runBootstrap,
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	name := os.Args[1]
	if name == "version" || name == "--version" || name == "-v" {
		fmt.Println(version)
		return
	}
	run, ok := subcommands[name]
	if !ok {
		usage()
		os.Exit(2)
	}
	if err := run(os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig parses the shared --config flag plus any extra flags the
// subcommand registered, then loads and prepares the config.
func loadConfig(fs *flag.FlagSet, args []string) (config.Config, error) {
	configPath := fs.String("config", "config/engram-mcp.yaml", "Path to config file")
	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return config.Config{}, err
	}
	return cfg, cfg.EnsurePaths()
}

func runServe(args []string) error {
	cfg, err := loadConfig(flag.NewFlagSet("serve", flag.ContinueOnError), args)
	if err != nil {
		return err
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: cfg.ServerName})
	setLogLevel(logger, cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := store.OpenSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	opts := []engine.Option{engine.WithGraph(graph.New(st.DB()))}
	if cfg.OllamaHost != "" && cfg.EmbeddingModel != "" {
		emb := vector.NewOllamaEmbedder(cfg.OllamaHost, cfg.EmbeddingModel)
		opts = append(opts, engine.WithVector(vector.NewIndex(), emb))
		logger.Info("semantic recall enabled", "host", cfg.OllamaHost, "model", cfg.EmbeddingModel)
	} else {
		logger.Info("semantic recall disabled, keyword search only")
	}
	eng := engine.New(&cfg, st, logger, opts...)

	go maintenance.Start(ctx, logger, time.Duration(cfg.MaintenanceIntervalSeconds)*time.Second, eng)

	logger.Info("starting MCP stdio server", "db", cfg.DBPath)
	err = mcp.NewServer(eng, logger, st, cfg.ServerName).Serve(ctx, os.Stdin, os.Stdout)
	if err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func runAdmin(args []string) error {
	fs := flag.NewFlagSet("admin", flag.ContinueOnError)
	ci := fs.String("ci", "", "CI whose memories to inspect")
	cfg, err := loadConfig(fs, args)
	if err != nil {
		return err
	}
	if *ci == "" {
		return fmt.Errorf("admin requires --ci")
	}

	st, err := store.OpenSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return admin.Run(ctx, st, *ci)
}

func runBootstrap(args []string) error {
	fs := flag.NewFlagSet("bootstrap-clis", flag.ContinueOnError)
	configPath := fs.String("config", "config/engram-mcp.yaml", "Path to config file")
	scope := fs.String("scope", "user", "Config scope: user or project")
	serverName := fs.String("server-name", "engram", "MCP server registration name")
	serveCmd := fs.String("serve-command", "engram-mcp serve", "Command MCP clients use to launch the stdio server")
	all := fs.Bool("all", false, "Configure all available CLIs")
	codex := fs.Bool("codex", false, "Configure Codex CLI")
	claude := fs.Bool("claude", false, "Configure Claude CLI")
	gemini := fs.Bool("gemini", false, "Configure Gemini CLI")
	dryRun := fs.Bool("dry-run", false, "Print intended commands without executing")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return bootstrap.Bootstrap(log.New(os.Stderr), bootstrap.Options{
		ConfigPath: *configPath,
		Scope:      *scope,
		ServerName: *serverName,
		ServeCmd:   *serveCmd,
		All:        *all,
		Codex:      *codex,
		Claude:     *claude,
		Gemini:     *gemini,
		DryRun:     *dryRun,
	}, nil)
}

func setLogLevel(logger *log.Logger, level string) {
	switch level {
	case "debug":
		logger.SetLevel(log.DebugLevel)
	case "warn":
		logger.SetLevel(log.WarnLevel)
	case "error":
		logger.SetLevel(log.ErrorLevel)
	default:
		logger.SetLevel(log.InfoLevel)
	}
}

func usage() {
	fmt.Print(`engram-mcp

Usage:
  engram-mcp serve [--config path]
  engram-mcp admin --ci name [--config path]
  engram-mcp bootstrap-clis [--config path] [--all|--codex --claude --gemini] [--scope user|project]
  engram-mcp version
`)
}
