// Package app assembles the retrieval and narration services from configuration. The service
// binary, the CLI and the MCP server share it.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"
	"github.com/panjf2000/ants/v2"

	"github.com/book-expert/scripture-service/internal/audio"
	"github.com/book-expert/scripture-service/internal/cache"
	"github.com/book-expert/scripture-service/internal/catalog"
	"github.com/book-expert/scripture-service/internal/config"
	"github.com/book-expert/scripture-service/internal/core"
	"github.com/book-expert/scripture-service/internal/narration"
	"github.com/book-expert/scripture-service/internal/objectstore"
	"github.com/book-expert/scripture-service/internal/retrieval"
	"github.com/book-expert/scripture-service/internal/speech"
	"github.com/book-expert/scripture-service/internal/upstream"
)

var (
	// ErrNATSRequired indicates the nats backend was selected without a connection.
	ErrNATSRequired = errors.New("nats cache backend requires a NATS connection")
	// ErrUnknownBackend indicates an unsupported cache backend.
	ErrUnknownBackend = errors.New("unknown cache backend")
)

// App holds the assembled services.
type App struct {
	Catalog  *catalog.Catalog
	Texts    *retrieval.Service
	Narrator *narration.Orchestrator
	Speech   *speech.HTTPClient
	Store    core.ObjectStore

	pool       *ants.Pool
	closeStore func() error
}

// New builds every component. natsConnection may be nil unless the nats backend is configured.
func New(ctx context.Context, cfg *config.Config, natsConnection *nats.Conn, log *logger.Logger) (*App, error) {
	cat, err := catalog.New(cfg.Catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to build catalog: %w", err)
	}

	store, closeStore, err := NewStore(ctx, cfg, natsConnection)
	if err != nil {
		return nil, err
	}

	pool, err := ants.NewPool(cfg.Narration.SynthesisConcurrency)
	if err != nil {
		_ = closeStore()

		return nil, fmt.Errorf("failed to create synthesis pool: %w", err)
	}

	contentCache := cache.New(store, log)
	fetcher := upstream.NewHTTPFetcher(cfg.Upstream.UserAgent)
	tokens := upstream.NewTokenResolver(fetcher, cfg.LandingURL(), cfg.UpstreamTimeout(), log)
	client := upstream.NewClient(fetcher, cfg.Upstream.BaseURL, cfg.UpstreamTimeout())
	texts := retrieval.NewService(cat, tokens, client, contentCache, log)
	speechClient := speech.NewHTTPClient(cfg.Speech.BaseURL, cfg.Speech.APIKey, cfg.SpeechTimeout())

	narrator := narration.New(
		cat,
		texts,
		speechClient,
		audio.NewFFmpegConcatenator(cfg.Narration.FFmpegPath, log),
		contentCache,
		pool,
		narration.Options{
			ChunkLimit:  cfg.Narration.ChunkLimit,
			Format:      audio.ParseFormat(cfg.Speech.Format),
			StagingRoot: cfg.Narration.StagingDir,
			RunTimeout:  cfg.AudioRequestTimeout(),
		},
		log,
	)

	log.Info("Services assembled with %s cache backend.", cfg.Cache.Backend)

	return &App{
		Catalog:    cat,
		Texts:      texts,
		Narrator:   narrator,
		Speech:     speechClient,
		Store:      store,
		pool:       pool,
		closeStore: closeStore,
	}, nil
}

// Close releases the synthesis pool and the object store.
func (a *App) Close() error {
	a.pool.Release()

	return a.closeStore()
}

// NewStore opens the configured object store. The returned function releases it.
func NewStore(ctx context.Context, cfg *config.Config, natsConnection *nats.Conn) (core.ObjectStore, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Cache.Backend {
	case config.BackendNATS:
		if natsConnection == nil {
			return nil, nil, ErrNATSRequired
		}

		jetstreamContext, err := natsConnection.JetStream()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
		}

		store, err := objectstore.New(jetstreamContext, cfg.NATS.ObjectStoreBucket, cfg.Cache.PublicBaseURL)
		if err != nil {
			return nil, nil, err
		}

		return store, noop, nil
	case config.BackendS3:
		store, err := objectstore.NewS3(objectstore.S3Options{
			Bucket:          cfg.Cache.S3.Bucket,
			Region:          cfg.Cache.S3.Region,
			Endpoint:        cfg.Cache.S3.Endpoint,
			ForcePathStyle:  cfg.Cache.S3.ForcePathStyle,
			AccessKeyID:     cfg.Cache.S3.AccessKeyID,
			SecretAccessKey: cfg.Cache.S3.SecretAccessKey,
			Anonymous:       false,
			PublicBaseURL:   cfg.Cache.PublicBaseURL,
		})
		if err != nil {
			return nil, nil, err
		}

		return store, noop, nil
	case config.BackendSQLite:
		store, err := objectstore.NewSQLite(ctx, cfg.Cache.SQLite.Path, cfg.Cache.PublicBaseURL)
		if err != nil {
			return nil, nil, err
		}

		return store, store.Close, nil
	case config.BackendMemory:
		return objectstore.NewMemory(cfg.Cache.PublicBaseURL), noop, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Cache.Backend)
	}
}
