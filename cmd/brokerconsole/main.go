package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nhle/broker-console/internal/app"
	"github.com/nhle/broker-console/internal/credential"
	"github.com/nhle/broker-console/internal/logging"
	"github.com/nhle/broker-console/internal/model"
	appsync "github.com/nhle/broker-console/internal/sync"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "brokerconsole",
		Short:        "Terminal inbox for load chats and bid negotiations",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsole()
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", model.DefaultConfigPath(), "Path to configuration file")
	rootCmd.AddCommand(
		newPollCommand(),
		newTokenCommand(),
		newConfigCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*model.AppConfig, error) {
	cfg, err := model.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgFile, err)
	}
	return cfg, nil
}

func runConsole() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	engine := app.NewEngine(cfg, credential.SessionToken, logger)
	root := app.New(engine)
	defer root.Close()

	p := tea.NewProgram(root, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running console: %w", err)
	}
	return nil
}

func newPollCommand() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Poll without the console and log new messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPoll(cmd.Context(), once)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Run a single tick and exit")
	return cmd
}

func runPoll(ctx context.Context, once bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(cfg.Log.Level, "stderr")
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	engine := app.NewEngine(cfg, credential.SessionToken, logger)

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if once {
		result, err := engine.Cycle.Tick(signalCtx)
		report(logger, result, true)
		return err
	}

	engine.Poller.Run()
	defer engine.Poller.Stop()

	for {
		select {
		case <-signalCtx.Done():
			logger.Info("poll stopped")
			return nil
		case msg := <-engine.Poller.Results():
			report(logger, msg.Result, false)
			if msg.AuthError != nil {
				logger.Error(msg.AuthError.Message, zap.Error(msg.Error))
			}
		}
	}
}

// report logs one tick. Backlog items are listed only for single runs.
func report(logger *zap.Logger, result appsync.TickResult, listBacklog bool) {
	logger.Info("tick",
		zap.Bool("first_tick", result.FirstTick),
		zap.Int("subjects", result.Subjects),
		zap.Int("added", len(result.Added)),
		zap.Int("surfaced", len(result.Surfaced)),
		zap.Int("recorded", result.Recorded),
		zap.Int("failures", len(result.Failures)),
	)

	shown := result.Surfaced
	if listBacklog && result.FirstTick {
		shown = result.Added
	}
	for _, n := range shown {
		logger.Info("message",
			zap.String("kind", string(n.Kind)),
			zap.String("load_id", n.Subject.LoadID),
			zap.String("bid_id", n.Subject.BidID),
			zap.String("from", n.SenderLabel),
			zap.String("body", n.Body),
			zap.Time("at", n.OccurredAt),
		)
	}
	for _, f := range result.Failures {
		logger.Warn("thread unavailable", zap.String("thread", f.Describe()))
	}
}

func newTokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the stored session token",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "set [token]",
			Short: "Store the session token in the system keyring (reads stdin without an argument)",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				token := ""
				if len(args) == 1 {
					token = args[0]
				} else {
					scanner := bufio.NewScanner(cmd.InOrStdin())
					if scanner.Scan() {
						token = scanner.Text()
					}
					if err := scanner.Err(); err != nil {
						return fmt.Errorf("reading token: %w", err)
					}
				}
				token = strings.TrimSpace(token)
				if token == "" {
					return errors.New("token is empty")
				}
				if err := credential.Set(credential.TokenKey, token); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Session token stored.")
				return nil
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Remove the stored session token",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := credential.Delete(credential.TokenKey); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Session token removed.")
				return nil
			},
		},
	)
	return cmd
}

func newConfigCommand() *cobra.Command {
	var baseURL, userID, userName, role string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with defaults and the given identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := model.LoadConfig(cfgFile)
			if err != nil {
				return err
			}
			if baseURL != "" {
				cfg.API.BaseURL = baseURL
			}
			if userID != "" {
				cfg.User.ID = userID
			}
			if userName != "" {
				cfg.User.Name = userName
			}
			if role != "" {
				cfg.User.Role = role
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := model.SaveConfig(cfgFile, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", cfgFile)
			return nil
		},
	}
	initCmd.Flags().StringVar(&baseURL, "base-url", "", "REST API base URL")
	initCmd.Flags().StringVar(&userID, "user-id", "", "Employee id of the console user")
	initCmd.Flags().StringVar(&userName, "user-name", "", "Display name of the console user")
	initCmd.Flags().StringVar(&role, "role", "", "Department of the console user (sales monitors created loads)")

	cmd.AddCommand(initCmd)
	return cmd
}
