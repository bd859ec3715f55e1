// Package main is the entry point for the omnikey binary. It resolves a
// wallet address to its UDP omnikey identity, creating the identity on the
// remote side when it does not exist yet.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/udplabs/omnikey/pkg/config"
	"github.com/udplabs/omnikey/pkg/identity"
	"github.com/udplabs/omnikey/pkg/telemetry"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps terminal resolution failures onto distinct exit codes so
// scripts can tell a rejected create from an exhausted poll.
func exitCode(err error) int {
	switch {
	case errors.Is(err, identity.ErrCreateRejected):
		return 2
	case errors.Is(err, identity.ErrExhausted):
		return 3
	case errors.Is(err, context.DeadlineExceeded):
		return 4
	default:
		return 1
	}
}

// overrides carries the CLI flag values that take precedence over the
// config file and the environment. Zero values mean "not set".
type overrides struct {
	baseURL      string
	timeout      time.Duration
	logLevel     string
	logFormat    string
	otlpEndpoint string
	headers      []string
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "omnikey",
		Short:         "UDP omnikey identity resolver",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(newResolveCmd())
	return rootCmd
}

func newResolveCmd() *cobra.Command {
	var (
		configPath string
		o          overrides
	)

	cmd := &cobra.Command{
		Use:   "resolve <wallet-address>",
		Short: "Resolve a wallet address to its omnikey identity",
		Long: `Resolve checks whether the UDP service already holds an identity for the
wallet address and returns it immediately when it does. Otherwise it requests
creation, waits for remote provisioning to settle, and polls the fetch
endpoint until the identity appears or the retry budget runs out.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd, args[0], configPath, o)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (YAML)")
	cmd.Flags().StringVar(&o.baseURL, "base-url", "", "Base URL of the UDP identity service (overrides UDP_BASE_URL)")
	cmd.Flags().DurationVar(&o.timeout, "timeout", 0, "Overall resolution timeout")
	cmd.Flags().StringVarP(&o.logLevel, "log-level", "l", "", "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&o.logFormat, "log-format", "", "Log format (json, text)")
	cmd.Flags().StringVar(&o.otlpEndpoint, "otlp-endpoint", "", "OTLP gRPC endpoint for trace export")
	cmd.Flags().StringArrayVar(&o.headers, "header", nil, "Extra request header as key=value (repeatable)")

	return cmd
}

func runResolve(cmd *cobra.Command, walletAddress, configPath string, o overrides) error {
	cfg, err := buildConfig(configPath, o)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log)

	ctx := cmd.Context()
	shutdown, err := telemetry.SetupProvider(ctx, telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Endpoint:    cfg.Telemetry.Endpoint,
		Environment: cfg.Telemetry.Environment,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     cfg.Telemetry.Headers,
	})
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	client := identity.NewClient(cfg.BaseURL,
		identity.WithHeaders(cfg.Headers),
		identity.WithClientLogger(logger),
	)
	resolver := identity.NewResolver(client,
		identity.WithSchedule(cfg.Schedule()),
		identity.WithTimeout(cfg.Timeout),
		identity.WithLogger(logger),
	)

	id, err := resolver.Resolve(ctx, walletAddress)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}

// buildConfig layers defaults, config file, environment, then CLI flags.
func buildConfig(configPath string, o overrides) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}

	if o.baseURL != "" {
		cfg.BaseURL = o.baseURL
	}
	if o.timeout > 0 {
		cfg.Timeout = o.timeout
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}
	if o.otlpEndpoint != "" {
		cfg.Telemetry.Endpoint = o.otlpEndpoint
	}

	headers, err := parseHeaders(o.headers)
	if err != nil {
		return config.Config{}, err
	}
	if len(headers) > 0 {
		if cfg.Headers == nil {
			cfg.Headers = make(map[string]string, len(headers))
		}
		for k, v := range headers {
			cfg.Headers[k] = v
		}
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func parseHeaders(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid header %q, expected key=value", pair)
		}
		headers[key] = value
	}
	return headers, nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
