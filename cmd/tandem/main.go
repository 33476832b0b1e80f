package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/vito/tandem/pkg/backend"
	"github.com/vito/tandem/pkg/editor"
)

// Config holds the application configuration
type Config struct {
	Debug      bool
	ConfigFile string
	DebugAddr  string
	Backend    string
	Delay      time.Duration
}

func main() {
	var cfg Config

	rootCmd := &cobra.Command{
		Use:   "tandem [flags]",
		Short: "Source/output alignment engine demo",
		Long: `Tandem keeps a source pane and an execution-output pane in lockstep:
results are clustered into line groups, tracked through incremental
execution and cancellation, realigned across document edits, and
height-balanced across the two panes with invisible spacers.

With no backend address, tandem replays a built-in scripted session.`,
		Example: `  # Replay the built-in demo session
  tandem

  # Slow the playback down and watch the passes
  tandem --debug --delay 500ms

  # Consume events from a real execution service
  tandem --backend localhost:7788`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd.Context(), cfg)
		},
	}

	rootCmd.Flags().BoolVarP(&cfg.Debug, "debug", "d", false, "Enable debug logging")
	rootCmd.Flags().StringVar(&cfg.ConfigFile, "config", "", "Path to TOML config file")
	rootCmd.Flags().StringVar(&cfg.DebugAddr, "debug-addr", "", "Listen address for pprof/expvar debug handlers")
	rootCmd.Flags().StringVar(&cfg.Backend, "backend", "", "Address of a JSON-RPC execution backend (default: scripted demo)")
	rootCmd.Flags().DurationVar(&cfg.Delay, "delay", 0, "Per-statement playback delay (overrides config)")

	ctx := context.Background()
	if err := fang.Execute(ctx, rootCmd,
		fang.WithVersion("v0.1.0"),
		fang.WithErrorHandler(func(w io.Writer, styles fang.Styles, err error) {
			_, _ = fmt.Fprintln(w, err.Error())
		}),
	); err != nil {
		os.Exit(1)
	}
}

func runDemo(ctx context.Context, cfg Config) error {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))

	if cfg.DebugAddr != "" {
		if err := setupDebugHandlers(cfg.DebugAddr); err != nil {
			return fmt.Errorf("debug handlers: %w", err)
		}
	}

	edCfg := editor.DefaultConfig()
	if cfg.ConfigFile != "" {
		var err error
		edCfg, err = editor.LoadConfig(cfg.ConfigFile)
		if err != nil {
			return err
		}
	}
	delay := time.Duration(edCfg.PlaybackDelayMS) * time.Millisecond
	if cfg.Delay > 0 {
		delay = cfg.Delay
	}

	var client backend.Client
	if cfg.Backend != "" {
		conn, err := net.Dial("tcp", cfg.Backend)
		if err != nil {
			return fmt.Errorf("connect backend %s: %w", cfg.Backend, err)
		}
		client = backend.DialRPC(conn)
	} else {
		client = scriptedSession(delay)
	}
	defer client.Close()

	return (&demo{cfg: edCfg, client: client, debug: cfg.Debug}).run(ctx)
}
