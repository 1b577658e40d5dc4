package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/barekit/relnotes/pkg/config"
	"github.com/barekit/relnotes/pkg/ingest"
	"github.com/barekit/relnotes/pkg/knowledge"
	"github.com/barekit/relnotes/pkg/rag"
	"github.com/barekit/relnotes/pkg/server"
	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "relnotes",
	Short: "Answer questions about product release notes",
	Long: `relnotes indexes product release notes into a vector store and answers
questions about them with a generative model.

Configuration is read from the environment (and a .env file if present),
optionally overlaid on a YAML file given with --config or CONFIG_FILE.`,
	SilenceUsage: true,
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Fetch all release notes and replace the collection",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := load(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		src, err := a.newSource(ctx)
		if err != nil {
			return err
		}
		locker, err := a.newLocker(ctx)
		if err != nil {
			return err
		}

		job := ingest.New(src, a.embedder, a.index,
			ingest.WithLocker(locker),
			ingest.WithLogger(a.logger))
		report, err := job.Run(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "fetched=%d indexed=%d\n", report.Fetched, report.Indexed)
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the question answering API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := load(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		generator, err := a.newGenerator(ctx)
		if err != nil {
			return err
		}
		safety, err := a.cfg.Safety()
		if err != nil {
			return err
		}
		debug, _ := cmd.Flags().GetBool("debug")

		pipeline := rag.New(
			knowledge.NewRetriever(a.embedder, a.index, a.cfg.RetrievalK),
			generator,
			rag.WithSafety(safety),
			rag.WithTimeout(a.cfg.RequestTimeout),
			rag.WithLogger(a.logger),
			rag.WithDebug(debug),
		)

		srv := server.New(pipeline, a.index, ":"+strconv.Itoa(a.cfg.Port), a.logger)
		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		a.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Stop(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("failed to stop server: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML configuration file")
	serveCmd.Flags().Bool("debug", false, "log retrieval details per request")
	rootCmd.AddCommand(indexCmd, serveCmd)
}

func load(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return newApp(ctx, cfg)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
