package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ayush/truth-engine/internal/api"
	"github.com/ayush/truth-engine/internal/config"
)

var (
	envFile   string
	skipCache bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "truth-engine",
		Short:         "Market research reports for business niches",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional .env file to load before reading the environment")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE:  runServe,
	}
	analyzeCmd := &cobra.Command{
		Use:   "analyze <niche>",
		Short: "Generate one report and print it as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAnalyze,
	}
	analyzeCmd.Flags().BoolVar(&skipCache, "skip-cache", false, "ignore any cached report")

	rootCmd.AddCommand(serveCmd, analyzeCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the environment and returns the config and a base logger.
func setup() (*config.Config, zerolog.Logger, error) {
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error loading %s: %v\n", envFile, err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("config: %w", err)
	}
	return cfg, newLogger(cfg), nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.LogPretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	ctx := logger.WithContext(cmd.Context())

	d, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.Close(context.Background())

	handler := api.NewHandler(d.Handler())
	router := api.NewRouter(logger, handler, cfg.CORSOrigins)

	// Synthesis alone can take two minutes, so the write timeout has to cover
	// a full pipeline run.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.ResearchTimeout + cfg.SynthesisTimeout + 30*time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("port", cfg.Port).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info().Msg("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	ctx := logger.WithContext(cmd.Context())

	d, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.Close(context.Background())

	report, err := d.Controller.Run(ctx, strings.Join(args, " "), skipCache)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
