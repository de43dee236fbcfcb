// Package cmd provides the CLI commands for the lectern tool.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/lecternlabs/lectern/client"
	"github.com/lecternlabs/lectern/config"
	"github.com/lecternlabs/lectern/credentials"
	"github.com/lecternlabs/lectern/pkg/index"
	"github.com/lecternlabs/lectern/pkg/logging"
	"github.com/lecternlabs/lectern/pkg/media"
	"github.com/lecternlabs/lectern/pkg/notes"
	"github.com/lecternlabs/lectern/pkg/pipeline"
	"github.com/lecternlabs/lectern/pkg/search"
	"github.com/lecternlabs/lectern/pkg/segment"
	"github.com/lecternlabs/lectern/pkg/store"
	"github.com/lecternlabs/lectern/pkg/transcript"
)

// App bundles the assembled application components commands operate on.
type App struct {
	Pipeline *pipeline.Pipeline
	Store    store.Store
	Index    *index.Index
	Search   *search.Service
	Queue    pipeline.JobQueue
	Metrics  *pipeline.Metrics
}

// Deps holds command dependencies. Tests replace the constructors with
// fakes; production commands use DefaultDeps.
type Deps struct {
	Config       *config.Config
	Logger       logging.Logger
	OutputFormat config.OutputFormat
	Out          io.Writer

	LoadConfig func() (*config.Config, error)
	NewApp     func(ctx context.Context, cfg *config.Config, logger logging.Logger) (*App, func(), error)
}

// DefaultDeps returns production dependencies.
func DefaultDeps() *Deps {
	return &Deps{
		Out:        os.Stdout,
		LoadConfig: config.LoadConfig,
		NewApp:     buildApp,
	}
}

// setup loads configuration and the logger once per command invocation.
func (d *Deps) setup() error {
	if d.Out == nil {
		d.Out = os.Stdout
	}
	if d.Config == nil {
		cfg, err := d.LoadConfig()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		d.Config = cfg
	}
	if d.OutputFormat == "" {
		d.OutputFormat = d.Config.OutputFormat
	}
	if d.Logger == nil {
		level := logging.LevelInfo
		if d.Config.Debug {
			level = logging.LevelDebug
		}
		d.Logger = logging.NewLogger(&logging.Config{
			Level:      level,
			JSONFormat: d.Config.LogJSON,
		})
	}
	return nil
}

// apiKey resolves a service API key: environment first, then the encrypted
// credentials file.
func apiKey(cfg config.ServiceConfig, service string) string {
	if cfg.APIKeyEnv != "" {
		if v := os.Getenv(cfg.APIKeyEnv); v != "" {
			return v
		}
	}
	credStore, err := credentials.NewStore()
	if err != nil {
		return ""
	}
	key, err := credStore.APIKey(service)
	if err != nil {
		return ""
	}
	return key
}

// buildApp assembles the full pipeline from configuration.
func buildApp(ctx context.Context, cfg *config.Config, logger logging.Logger) (*App, func(), error) {
	st, closeStore, err := store.Open(ctx, cfg.Store, logger)
	if err != nil {
		return nil, nil, err
	}

	embedClient := client.NewEmbedClient(client.Options{
		BaseURL:     cfg.Embed.BaseURL,
		Model:       cfg.Embed.Model,
		APIKey:      apiKey(cfg.Embed, credentials.ServiceEmbed),
		CallTimeout: cfg.CallTimeout,
		Retry:       cfg.Retry,
		Logger:      logger,
	})
	ix := index.New(embedClient, logger)
	if err := ix.Rebuild(ctx, st); err != nil {
		closeStore()
		return nil, nil, err
	}

	transcribeClient := client.NewTranscribeClient(client.Options{
		BaseURL:     cfg.Transcribe.BaseURL,
		Model:       cfg.Transcribe.Model,
		APIKey:      apiKey(cfg.Transcribe, credentials.ServiceTranscribe),
		CallTimeout: cfg.CallTimeout,
		Retry:       cfg.Retry,
		Logger:      logger,
	})
	generateClient := client.NewGenerateClient(client.Options{
		BaseURL:     cfg.Generate.BaseURL,
		Model:       cfg.Generate.Model,
		APIKey:      apiKey(cfg.Generate, credentials.ServiceGenerate),
		CallTimeout: cfg.CallTimeout,
		Retry:       cfg.Retry,
		Logger:      logger,
	})

	spool, err := pipeline.NewSpool(cfg.SpoolDir())
	if err != nil {
		closeStore()
		return nil, nil, err
	}

	metrics := pipeline.DefaultMetrics()
	pl := pipeline.New(pipeline.Deps{
		Preprocessor: media.NewPreprocessor(media.NewExecutor(), cfg.Silence, logger),
		Transcriber:  transcript.NewAdapter(transcribeClient, logger),
		Segmenter:    segment.New(cfg.Chapters),
		Generator:    notes.NewGenerator(generateClient, cfg.Notes, logger),
		Store:        st,
		Index:        ix,
		Spool:        spool,
		Metrics:      metrics,
		Logger:       logger,
	})

	app := &App{
		Pipeline: pl,
		Store:    st,
		Index:    ix,
		Search:   search.New(ix, cfg.Search, logger),
		Metrics:  metrics,
	}

	cleanup := closeStore
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		app.Queue = pipeline.NewRedisQueue(rdb, cfg.Worker, logger)
		cleanup = func() {
			rdb.Close()
			closeStore()
		}
	}

	return app, cleanup, nil
}

// printResult renders v according to the output format.
func (d *Deps) printResult(v any) error {
	switch d.OutputFormat {
	case config.OutputFormatJSON:
		enc := json.NewEncoder(d.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case config.OutputFormatYAML:
		return yaml.NewEncoder(d.Out).Encode(v)
	default:
		return fmt.Errorf("format %q has no generic renderer", d.OutputFormat)
	}
}

// textFormat reports whether human-readable output is selected.
func (d *Deps) textFormat() bool {
	return d.OutputFormat == "" || d.OutputFormat == config.OutputFormatText
}
