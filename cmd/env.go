package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/clubmetrics/districtsync/internal/blob"
	"github.com/clubmetrics/districtsync/internal/fetcher"
	"github.com/clubmetrics/districtsync/internal/jobstore"
	"github.com/clubmetrics/districtsync/internal/reconcile"
	"github.com/clubmetrics/districtsync/internal/resilience"
	"github.com/clubmetrics/districtsync/internal/snapshot"
)

// env holds the wired runtime components shared by the subcommands.
type env struct {
	Blobs     blob.Store
	Snapshots *snapshot.Store
	Jobs      jobstore.Store
	Reconcile *reconcile.ConfigStore
}

// initEnv wires storage, the snapshot store, the job store, and the
// reconciliation config store from the loaded configuration.
func initEnv(ctx context.Context) (*env, error) {
	blobs, err := initBlobs(ctx)
	if err != nil {
		return nil, err
	}

	jobs, err := initJobstore(ctx)
	if err != nil {
		return nil, err
	}

	return &env{
		Blobs: blobs,
		Snapshots: snapshot.New(blobs, snapshot.Options{
			WriteConcurrency: cfg.Snapshot.WriteConcurrency,
		}),
		Jobs:      jobs,
		Reconcile: reconcile.NewConfigStore(blobs),
	}, nil
}

func (e *env) Close() {
	if e.Jobs != nil {
		_ = e.Jobs.Close()
	}
}

func initBlobs(ctx context.Context) (blob.Store, error) {
	switch cfg.Storage.Provider {
	case "", "local":
		return blob.NewLocal(cfg.Storage.Path)
	case "gcs":
		return blob.NewGCS(ctx, blob.GCSOptions{
			Bucket:          cfg.Storage.GCS.Bucket,
			Prefix:          cfg.Storage.GCS.Prefix,
			CredentialsFile: cfg.Storage.GCS.CredentialsFile,
		})
	default:
		return nil, eris.Errorf("unknown storage provider %q", cfg.Storage.Provider)
	}
}

func initJobstore(ctx context.Context) (jobstore.Store, error) {
	var (
		store jobstore.Store
		err   error
	)
	switch cfg.Jobstore.Driver {
	case "", "sqlite":
		store, err = jobstore.NewSQLite(cfg.Jobstore.Path)
	case "postgres":
		store, err = jobstore.NewPostgres(ctx, cfg.Jobstore.DatabaseURL, &jobstore.PoolConfig{
			MaxConns: cfg.Jobstore.Pool.MaxConns,
			MinConns: cfg.Jobstore.Pool.MinConns,
		})
	default:
		return nil, eris.Errorf("unknown jobstore driver %q", cfg.Jobstore.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func newFetcher() *fetcher.HTTP {
	return fetcher.NewHTTP(fetcher.Options{
		BaseURL:   cfg.Upstream.BaseURL,
		UserAgent: cfg.Upstream.UserAgent,
		Timeout:   time.Duration(cfg.Upstream.TimeoutSecs) * time.Second,
		RateLimit: cfg.Upstream.RateLimit,
		Burst:     cfg.Upstream.Burst,
		Retry: resilience.RetryConfig{
			MaxAttempts: cfg.Upstream.MaxRetries,
		},
	})
}
