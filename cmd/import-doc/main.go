// Command import-doc indexes a directory of documents, or a crawled site,
// through the same pipeline as the upload endpoint.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/josinaldojr/askdocs-rag/internal/app"
	"github.com/josinaldojr/askdocs-rag/internal/config"
	"github.com/josinaldojr/askdocs-rag/internal/logging"
)

func main() {
	pathFlag := flag.String("path", "", "directory with local documents (.pdf/.html/.xlsx/.txt/.md/.csv)")
	baseURLFlag := flag.String("base-url", "", "crawl pages under this URL and index each one")
	maxPagesFlag := flag.Int("max-pages", 50, "page limit for --base-url")
	flag.Parse()

	if *pathFlag == "" && *baseURLFlag == "" {
		log.Fatal("use --path, --base-url or both")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("init", zap.Error(err))
	}
	defer func() { _ = a.Close() }()

	imp := &importer{svc: a.Service, supports: a.Extractor.Supports, log: logger}

	if *pathFlag != "" {
		if err := imp.fromDir(ctx, *pathFlag); err != nil {
			logger.Error("import files", zap.Error(err))
		}
	}
	if *baseURLFlag != "" {
		if err := imp.fromURL(ctx, *baseURLFlag, *maxPagesFlag); err != nil {
			logger.Error("import url", zap.Error(err))
		}
	}

	logger.Info("import finished",
		zap.Int("indexed", imp.indexed),
		zap.Int("failed", imp.failed),
	)
	if imp.failed > 0 {
		stop()
		_ = logger.Sync()
		os.Exit(1)
	}
}
