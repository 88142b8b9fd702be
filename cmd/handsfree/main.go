// Command handsfree talks to the co-host and the guest from the terminal,
// either through a server or with the providers running in-process.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/koscakluka/ema-duet/core/audio/miniaudio"
	"github.com/koscakluka/ema-duet/core/audio/portaudio"
	"github.com/koscakluka/ema-duet/core/conversations"
	"github.com/koscakluka/ema-duet/core/sessions"
	"github.com/koscakluka/ema-duet/internal/client"
	"github.com/koscakluka/ema-duet/internal/config"
	"github.com/koscakluka/ema-duet/internal/providers"
	"github.com/koscakluka/ema-duet/internal/telemetry"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const (
	defaultLogFile = "ema-duet-handsfree.log"
	sweepInterval  = time.Minute
)

var logger = otelslog.NewLogger("github.com/koscakluka/ema-duet/cmd/handsfree")

type flags struct {
	serverURL string
	sessionID string
	audio     string
	logFile   string
	handsFree bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	f := &flags{}
	rootCmd := &cobra.Command{
		Use:          "handsfree",
		Short:        "Talk to the co-host and the guest from the terminal",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, f.handsFree)
		},
	}
	rootCmd.PersistentFlags().StringVar(&f.serverURL, "server", "", "run turns on this server instead of in-process")
	rootCmd.PersistentFlags().StringVar(&f.sessionID, "session", "", "session id, generated when empty")
	rootCmd.Flags().StringVar(&f.audio, "audio", "", "audio backend: miniaudio or portaudio")
	rootCmd.Flags().StringVar(&f.logFile, "log-file", "", "file the logs are written to")
	rootCmd.Flags().BoolVar(&f.handsFree, "hands-free", false, "start with hands-free mode on")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "history",
		Short: "Print the history of a session kept by the server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			return printHistory(cmd, cfg)
		},
	})
	return rootCmd
}

// loadConfig applies the command line flags on top of the configuration.
func loadConfig(f *flags) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if f.serverURL != "" {
		cfg.Client.ServerURL = f.serverURL
	}
	if f.sessionID != "" {
		cfg.Client.SessionID = f.sessionID
	}
	if f.audio != "" {
		cfg.Client.AudioBackend = f.audio
	}
	if f.logFile != "" {
		cfg.Telemetry.LogFile = f.logFile
	}
	return cfg, nil
}

func printHistory(cmd *cobra.Command, cfg *config.Config) error {
	if cfg.Client.ServerURL == "" {
		return fmt.Errorf("history needs a server, set --server or SERVER_URL")
	}
	c := client.New(cfg.Client.ServerURL,
		client.WithSessionID(cfg.Client.SessionID),
		client.WithTimeout(cfg.HTTPTimeoutDuration()),
	)
	entries, err := c.History(cmd.Context())
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		cmd.Println("No history for session", c.SessionID())
		return nil
	}
	for _, entry := range entries {
		cmd.Printf("[%s] %s: %s\n", entry.Timestamp.Format(time.TimeOnly), entry.Label, entry.Text)
	}
	return nil
}

func run(parent context.Context, cfg *config.Config, handsFree bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGTERM)
	defer stop()

	// The terminal belongs to the UI, logs always go to a file.
	logFile := cfg.Telemetry.LogFile
	if logFile == "" {
		logFile = defaultLogFile
	}
	logs, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logs.Close()

	shutdownTelemetry, err := telemetry.Setup(ctx, "ema-duet-handsfree", cfg.Telemetry.OTLPEndpoint, logs)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(shutdownCtx)
	}()

	sessionID := cfg.Client.SessionID
	if sessionID == "" || sessionID == sessions.DefaultSessionID {
		sessionID = "handsfree-" + uuid.NewString()
	}

	dev, err := openDevice(cfg.Client.AudioBackend)
	if err != nil {
		return err
	}
	defer dev.Close()

	b, mode := newBackend(ctx, cfg, sessionID)
	d, err := newDuet(b, dev, cfg.VAD.Monitor())
	if err != nil {
		return err
	}

	d.SetHandsFree(handsFree)

	program := tea.NewProgram(newModel(d, sessionID, mode), tea.WithAltScreen(), tea.WithContext(ctx))
	d.notify = func(msg any) { program.Send(msg) }

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := d.Run(runCtx); err != nil {
			logger.Error("audio loop stopped", "error", err)
			program.Send(audioStoppedMsg{err: err})
		}
	}()
	logger.Info("hands-free client started", "session", sessionID, "mode", mode, "audio", cfg.Client.AudioBackend)

	_, runErr := program.Run()
	cancel()
	if err := d.Close(); err != nil {
		logger.Warn("failed to close orchestrator", "error", err)
	}
	if runErr != nil && ctx.Err() == nil {
		return fmt.Errorf("ui stopped: %w", runErr)
	}
	return nil
}

func openDevice(backend string) (device, error) {
	switch backend {
	case config.AudioBackendPortaudio:
		dev, err := portaudio.NewClient(portaudio.DefaultBufferSize)
		if err != nil {
			return nil, fmt.Errorf("failed to open portaudio device: %w", err)
		}
		return dev, nil
	case config.AudioBackendMiniaudio, "":
		dev, err := miniaudio.NewClient()
		if err != nil {
			return nil, fmt.Errorf("failed to open miniaudio device: %w", err)
		}
		return dev, nil
	}
	return nil, fmt.Errorf("unknown audio backend %q", backend)
}

// newBackend runs turns on the configured server, or in-process when no
// server is configured.
func newBackend(ctx context.Context, cfg *config.Config, sessionID string) (backend, string) {
	if cfg.Client.ServerURL != "" {
		c := client.New(cfg.Client.ServerURL,
			client.WithSessionID(sessionID),
			client.WithTimeout(cfg.HTTPTimeoutDuration()),
		)
		return backend{
			runner:       c,
			availability: c.Health,
			reset:        c.Reset,
		}, cfg.Client.ServerURL
	}

	store := newLocalStore(cfg)
	go store.Run(ctx, sweepInterval)
	pipeline := providers.NewPipeline(cfg, store)
	return backend{
		runner: pipeline.Runner(sessionID),
		availability: func(context.Context) (map[conversations.Speaker]bool, error) {
			return pipeline.Available(), nil
		},
		reset: func(context.Context) error {
			store.ClearSession(sessionID)
			return nil
		},
	}, "local"
}

func newLocalStore(cfg *config.Config) *sessions.Store {
	return sessions.New(
		sessions.WithTTL(cfg.Session.TTL()),
		sessions.WithMaxHistory(cfg.Session.MaxHistory),
		sessions.WithMaxSessions(cfg.Session.MaxSessions),
	)
}
