package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mercasmart/catalog-search/indexjob"
	"github.com/mercasmart/catalog-search/internal/catalog"
	"github.com/mercasmart/catalog-search/internal/config"
	"github.com/mercasmart/catalog-search/internal/factory"
	"github.com/mercasmart/catalog-search/internal/logger"
)

// setup loads the configuration and a signal-bound context for local commands.
func setup() (context.Context, context.CancelFunc, *config.Config, zerolog.Logger, error) {
	log := logger.New("catalogctl")
	cfg, err := config.New()
	if err != nil {
		return nil, nil, nil, log, err
	}
	log = logger.WithLevel(log, cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return ctx, stop, cfg, log, nil
}

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load newline-delimited JSON product records into the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			batch, _ := cmd.Flags().GetInt("batch")
			ctx, stop, cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer stop()

			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()

			st, closeStore, err := factory.NewStore(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = closeStore() }()

			n, err := catalog.Import(ctx, st, f, batch)
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d records\n", n)
			return err
		},
	}
	cmd.Flags().StringP("file", "f", "", "JSONL file of product records")
	cmd.Flags().Int("batch", 500, "Records per insert batch")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Create the tables, classes or vector search indexes of the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop, cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer stop()

			st, closeStore, err := factory.NewStore(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = closeStore() }()

			dims := factory.SpaceDimensions(cfg)
			if err := st.EnsureSchema(ctx, dims); err != nil {
				return err
			}
			for _, sp := range catalog.Spaces() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: field=%s index=%s dims=%d\n", sp, sp.Field(), sp.Index(), dims[sp])
			}
			return nil
		},
	}
}

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Compute and store embeddings for one vector space",
		RunE: func(cmd *cobra.Command, args []string) error {
			space, _ := cmd.Flags().GetString("space")
			batch, _ := cmd.Flags().GetInt("batch")
			var cooldown *time.Duration
			if cmd.Flags().Changed("cooldown") {
				d, _ := cmd.Flags().GetDuration("cooldown")
				cooldown = &d
			}
			ensure, _ := cmd.Flags().GetBool("ensure-schema")
			ctx, stop, cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer stop()

			rep, err := indexjob.Run(ctx, cfg, log, indexjob.Options{
				Space: space, BatchSize: batch, Cooldown: cooldown, EnsureSchema: ensure,
			})
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(rep); encErr != nil && err == nil {
				err = encErr
			}
			return err
		},
	}
	cmd.Flags().StringP("space", "s", "", "text-openai | text-voyage | image-voyage (default INDEX_SPACE)")
	cmd.Flags().Int("batch", 0, "Page size (default from config: 100 text, 10 image)")
	cmd.Flags().Duration("cooldown", 0*time.Second, "Pause between pages (default INDEX_COOLDOWN)")
	cmd.Flags().Bool("ensure-schema", false, "Create tables or indexes first")
	return cmd
}
