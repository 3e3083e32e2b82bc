package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/mercasmart/catalog-search/indexjob"
	"github.com/mercasmart/catalog-search/internal/config"
	"github.com/mercasmart/catalog-search/internal/logger"
)

func main() {
	space := flag.String("space", "", "Override INDEX_SPACE (text-openai, text-voyage, image-voyage)")
	ensureSchema := flag.Bool("ensure-schema", false, "Create tables or search indexes before indexing")
	flag.Parse()

	log := logger.New("catalog-indexer")
	cfg, err := config.New()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log = logger.WithLevel(log, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep, err := indexjob.Run(ctx, cfg, log, indexjob.Options{Space: *space, EnsureSchema: *ensureSchema})
	if err != nil {
		stop()
		os.Exit(1)
	}
	if rep.Skipped > 0 {
		log.Warn().Int("skipped", rep.Skipped).Msg("some documents were not indexed; re-run to retry them")
	}
}
