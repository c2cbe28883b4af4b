package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agentchat/internal/attachment"
	"agentchat/internal/cache"
	"agentchat/internal/channel"
	"agentchat/internal/config"
	"agentchat/internal/conversation"
	"agentchat/internal/domain"
	"agentchat/internal/exchange"
	"agentchat/internal/fallback"
	"agentchat/internal/metrics"
	"agentchat/internal/session"
	"agentchat/internal/storage"
	"agentchat/internal/stream"
	"agentchat/internal/voice"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	// .env is optional; real environment always wins.
	_ = godotenv.Load()

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:     "agentchat",
		Short:   "agentchat: terminal and web client for conversational agents",
		Long:    "agentchat connects to remote conversational agents with streamed replies, image attachments, voice input, and durable conversation history.",
		Version: version,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.agentchat/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(agentsCmd())
	root.AddCommand(configCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func loadConfig() *config.Config {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not found, using defaults", "path", cfgPath, "err", err)
		return config.Defaults()
	}
	return cfg
}

func setupLogger(cfg *config.Config) {
	level := slog.LevelInfo
	switch cfg.General.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	out := os.Stderr
	if cfg.General.LogFile != "" {
		if f, err := os.OpenFile(cfg.General.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
			out = f
		} else {
			logger.Warn("cannot open log file, logging to stderr", "path", cfg.General.LogFile, "err", err)
		}
	}
	logger = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config, storage, and an example agent registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			for _, dir := range []string{cfg.Storage.FallbackDir, cfg.Storage.AttachmentDir} {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return err
				}
			}
			if _, err := os.Stat(cfg.Exchange.AgentsFile); os.IsNotExist(err) {
				reg, _ := config.LoadAgents(cfg.Exchange.AgentsFile)
				if err := config.SaveAgents(cfg.Exchange.AgentsFile, reg); err != nil {
					return err
				}
			}
			logger.Info("initialized", "config", cfgPath, "agents", cfg.Exchange.AgentsFile)
			return nil
		},
	}
}

// stack bundles the wired collaborators behind both channels.
type stack struct {
	sessions *session.Manager
	durable  *storage.SQLiteStore
}

func (s *stack) Close() { s.durable.Close() }

func buildStack(cfg *config.Config) (*stack, error) {
	durable, err := storage.NewSQLiteStore(cfg.Storage.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("conversation store: %w", err)
	}
	fb, err := fallback.NewFileStore(cfg.Storage.FallbackDir, logger)
	if err != nil {
		durable.Close()
		return nil, fmt.Errorf("fallback store: %w", err)
	}
	validator, err := attachment.NewValidator(attachment.Config{
		StoragePath: cfg.Storage.AttachmentDir,
		Logger:      logger,
	})
	if err != nil {
		durable.Close()
		return nil, fmt.Errorf("attachment validator: %w", err)
	}

	agents, err := config.LoadAgents(cfg.Exchange.AgentsFile)
	if err != nil {
		durable.Close()
		return nil, err
	}

	client := exchange.NewClient(exchange.Config{
		Cache:       cache.New(cfg.Exchange.CacheCapacity),
		Logger:      logger,
		Timeout:     time.Duration(cfg.Exchange.TimeoutSeconds) * time.Second,
		MaxAttempts: cfg.Exchange.MaxAttempts,
		Backoff:     time.Duration(cfg.Exchange.BackoffSeconds) * time.Second,
	})

	return &stack{
		sessions: session.NewManager(session.ManagerConfig{
			Exchange:  client,
			Store:     conversation.New(durable, fb, logger),
			Presenter: stream.New(stream.Config{Logger: logger}),
			Validator: validator,
			Endpoint:  agents.Endpoint,
			Logger:    logger,
		}),
		durable: durable,
	}, nil
}

func chatCmd() *cobra.Command {
	var agentID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive terminal conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			setupLogger(cfg)
			if agentID == "" {
				agentID = cfg.General.DefaultAgent
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			st, err := buildStack(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			sess, err := st.sessions.Get(ctx, cfg.General.OwnerID, agentID)
			if err != nil {
				return err
			}

			voiceInput := buildVoice(cfg, sess)

			cli := channel.NewCLI(channel.CLIConfig{
				Session: sess,
				Voice:   voiceInput,
				Logger:  logger,
			})
			return cli.Start(ctx)
		},
	}
	cmd.Flags().StringVarP(&agentID, "agent", "a", "", "agent id to talk to (default: general.defaultAgent)")
	return cmd
}

// buildVoice picks the voice adapter for this environment. Without an API
// key or a capture device the capability is absent, not broken.
func buildVoice(cfg *config.Config, sess *session.Session) domain.VoiceInput {
	if !cfg.Voice.Enabled || cfg.Voice.APIKey == "" {
		return voice.NewUnsupported()
	}
	mic := voice.NewMicSource(voice.MicConfig{Logger: logger})
	if mic == nil {
		logger.Warn("no audio recorder found, voice input disabled")
		return voice.NewUnsupported()
	}
	return voice.NewWhisper(voice.WhisperConfig{
		APIBase:  cfg.Voice.APIBase,
		APIKey:   cfg.Voice.APIKey,
		Model:    cfg.Voice.Model,
		Language: cfg.Voice.Language,
		Source:   mic,
		Events:   sess.VoiceEvents(),
		Logger:   logger,
	})
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the WebSocket gateway",
		Long:  "Serves conversations over WebSocket at /ws?owner=&agent=. Press Ctrl+C to stop.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			setupLogger(cfg)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			st, err := buildStack(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			var metricsHandler http.Handler
			if cfg.Metrics.Enabled {
				metricsHandler = metrics.Collector.Handler()
			}

			web := channel.NewWeb(channel.WebConfig{
				Host:     cfg.Channels.Web.Host,
				Port:     cfg.Channels.Web.Port,
				Sessions: st.sessions,
				Metrics:  metricsHandler,
				Logger:   logger,
			})
			logger.Info("gateway starting. Press Ctrl+C to stop.")
			return web.Start(ctx)
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration and storage status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				logger.Info("config", "path", cfgPath, "loaded", false)
				cfg = config.Defaults()
			} else {
				logger.Info("config", "path", cfgPath, "loaded", true)
			}

			if _, err := os.Stat(cfg.Storage.DBPath); err == nil {
				logger.Info("storage", "db", cfg.Storage.DBPath, "present", true)
			} else {
				logger.Info("storage", "db", cfg.Storage.DBPath, "present", false)
			}

			agents, err := config.LoadAgents(cfg.Exchange.AgentsFile)
			if err != nil {
				logger.Warn("agents registry unreadable", "path", cfg.Exchange.AgentsFile, "err", err)
				return nil
			}
			logger.Info("agents", "path", cfg.Exchange.AgentsFile, "count", len(agents.List()))
			return nil
		},
	}
}

func agentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "Manage the agent registry",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			agents, err := config.LoadAgents(cfg.Exchange.AgentsFile)
			if err != nil {
				return err
			}
			for _, a := range agents.List() {
				fmt.Printf("%-20s %-30s %s\n", a.ID, a.Name, a.Endpoint)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add [id] [endpoint]",
		Short: "Add an agent to the registry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			path := cfg.Exchange.AgentsFile
			reg, err := config.LoadAgents(path)
			if err != nil {
				return err
			}
			profiles := append(reg.List(), config.AgentProfile{ID: args[0], Name: args[0], Endpoint: args[1]})
			updated, err := config.NewAgentRegistry(profiles)
			if err != nil {
				return err
			}
			if err := config.SaveAgents(path, updated); err != nil {
				return err
			}
			logger.Info("agent added", "id", args[0], "count", len(updated.List()))
			return nil
		},
	})

	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. exchange.timeoutSeconds)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. channels.web.port 9000)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "value", args[1], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			data, _ := json.MarshalIndent(config.Sanitize(cfg), "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}
