package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/knowledge-engine/questionbank/internal/api"
	"github.com/knowledge-engine/questionbank/internal/engine"
	"github.com/knowledge-engine/questionbank/internal/storage"
)

var flagServeAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagServeAddr, "addr", "", "Listen address (overrides SERVER_ADDR)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if flagServeAddr != "" {
		cfg.Server.Addr = flagServeAddr
	}

	var store storage.QuestionStorage
	if cfg.Corpus.Path != "" {
		fs, err := storage.NewFileStorage(cfg.Corpus.Path)
		if err != nil {
			return err
		}
		defer fs.Close()
		store = fs
	}

	eng, err := engine.NewEngine(cfg, logger, store)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Corpus.LoadOnStart {
		res, err := eng.LoadCorpus(ctx)
		if err != nil {
			return err
		}
		if res.Indexed > 0 {
			logger.WithField("indexed", res.Indexed).Info("Pre-loaded corpus into search index")
		}
	}

	server := api.NewServer(eng, cfg.Server, logger.WithField("component", "api"))
	return server.Start(ctx)
}
