// Package app wires configuration, storage, extraction and the HTTP surface
// into the docverify command line.
package app

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"docverify/internal/config"
	"docverify/internal/extract"
	"docverify/internal/httpx"
	"docverify/internal/integrations/llm"
	slackalert "docverify/internal/integrations/slack"
	"docverify/internal/logging"
	"docverify/internal/metrics"
	"docverify/internal/pipeline"
	"docverify/internal/reupload"
	"docverify/internal/storage/sqlite"
	"docverify/internal/sweep"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

func Main() {
	if err := NewRootCmd().Execute(); err != nil {
		log.Printf("docverify: %v", err)
		os.Exit(1)
	}
}

// deps is everything a command may need. Fields are built in dependency order
// by loadBase and loadFull; db is nil for commands that do not touch storage.
type deps struct {
	cfg       config.Config
	logger    *zap.Logger
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	db        *sql.DB
	store     *sqlite.Gateway
	llm       *llm.Client
	extractor *extract.Extractor
	processor *pipeline.Processor
	reupload  *reupload.Service
	sweeper   *sweep.Sweeper
}

func loadBase() (*deps, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	d := &deps{cfg: cfg, logger: logger, registry: registry, metrics: metrics.New(registry)}

	httpClient := httpx.NewExternalClient(cfg.ExternalHTTPTimeoutSeconds)
	d.llm, err = llm.New(llm.Config{
		Provider:          cfg.LLMProvider,
		Model:             cfg.LLMModel,
		APIKey:            cfg.APIKey(),
		BaseURL:           cfg.LLMBaseURL,
		Temperature:       cfg.Temperature(),
		MaxTokens:         cfg.LLMMaxTokens,
		MaxRetries:        cfg.LLMMaxRetries,
		RetryBackoff:      cfg.RetryBackoff(),
		RequestsPerMinute: cfg.LLMRequestsPerMinute,
		HTTPClient:        httpClient,
	}, logger.Named("llm"), d.metrics)
	if err != nil {
		return nil, fmt.Errorf("build llm client: %w", err)
	}
	d.extractor, err = extract.NewExtractor(d.llm, logger.Named("extract"), d.metrics)
	if err != nil {
		return nil, fmt.Errorf("build extractor: %w", err)
	}

	logger.Info("config loaded",
		zap.String("llm_provider", cfg.LLMProvider),
		zap.String("llm_model", cfg.LLMModel),
		zap.Bool("llm_enabled", cfg.LLMEnabled()),
		zap.Int("llm_max_retries", cfg.LLMMaxRetries),
		zap.String("db_path", cfg.DBPath),
		zap.Duration("external_http_timeout", httpClient.Timeout),
		zap.String("timezone", cfg.Location.String()),
		zap.Bool("slack_alerts", cfg.SlackConfigured()),
	)
	if !cfg.LLMEnabled() {
		logger.Warn("no LLM API key configured; document extraction is disabled", zap.String("provider", cfg.LLMProvider))
	}
	return d, nil
}

// loadFull also opens the database and wires the services on top of it.
func loadFull() (*deps, error) {
	d, err := loadBase()
	if err != nil {
		return nil, err
	}
	d.db, err = sqlite.InitDB(d.cfg.DBPath)
	if err != nil {
		_ = d.logger.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}
	d.logger.Info("database initialized", zap.String("path", d.cfg.DBPath))
	d.store = sqlite.NewGateway(d.db)

	var notifier pipeline.Notifier
	if n := slackalert.New(d.cfg.SlackBotToken, d.cfg.SlackAlertChannelID, d.logger.Named("slack"),
		slack.OptionHTTPClient(httpx.NewExternalClient(d.cfg.ExternalHTTPTimeoutSeconds))); n != nil {
		notifier = n
	}
	d.processor = pipeline.NewProcessor(d.extractor, d.store, notifier, d.logger.Named("pipeline"), d.metrics)
	d.reupload = reupload.NewService(d.store, d.logger.Named("reupload"), d.metrics)
	d.sweeper, err = sweep.New(d.cfg.Schedule(), d.cfg.Location, d.store, d.processor, d.logger.Named("sweep"))
	if err != nil {
		d.close()
		return nil, err
	}
	return d, nil
}

func (d *deps) close() {
	if d.db != nil {
		if err := d.db.Close(); err != nil {
			d.logger.Warn("close database", zap.Error(err))
		}
	}
	_ = d.logger.Sync()
}
