package cli

import (
	"context"
	"errors"

	"sheetsync/internal/config"
	"sheetsync/internal/dbclient"
	"sheetsync/internal/etl"
	"sheetsync/internal/logging"
	"sheetsync/internal/secret"
	"sheetsync/internal/service"
	"sheetsync/internal/storage"
)

// app holds the dependencies of one command invocation.
type app struct {
	cfg     *config.Config
	store   etl.Store
	history *storage.DB
	sync    *service.SyncService
}

// openApp loads the config, opens the destination store and the run
// history, and wires the sync service. Jobs replaces the configured jobs
// when non-nil.
func openApp(ctx context.Context, opts *RootOptions, jobs []config.JobConfig, emitters ...service.EventEmitter) (*app, error) {
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		return nil, commandError("load config", err)
	}
	if jobs != nil {
		cfg.Jobs = jobs
	}
	applyLogFlags(&cfg.Log, opts)
	logging.Configure(&cfg.Log)

	if err := cfg.Validate(); err != nil {
		return nil, commandError("invalid config", err)
	}

	password, err := cfg.ResolvePassword(secretStore())
	if err != nil {
		return nil, commandError("resolve database password", err)
	}
	store, err := dbclient.OpenStore(&cfg.Database, password)
	if err != nil {
		return nil, commandError("open destination", err)
	}

	db, err := storage.New(cfg.HistoryPath())
	if err != nil {
		store.Close()
		return nil, commandError("open run history", err)
	}

	all := append(service.MultiEmitter{service.LogEmitter{}}, emitters...)
	a := &app{
		cfg:     cfg,
		store:   store,
		history: db,
		sync: service.NewSyncService(service.Options{
			Engine:     &etl.Engine{Store: store},
			Jobs:       cfg.Jobs,
			History:    storage.NewRunLogStore(db),
			Emitter:    all,
			RunTimeout: cfg.RunTimeout,
		}),
	}
	logging.FromContext(ctx).Debug().
		Str("config", cfg.File).
		Str("driver", string(cfg.Database.Driver)).
		Int("jobs", len(cfg.Jobs)).
		Msg("configuration loaded")
	return a, nil
}

func (a *app) Close() error {
	a.sync.Stop()
	return errors.Join(a.store.Close(), a.history.Close())
}

// secretStore resolves secrets from the environment first, then the
// macOS keychain where available.
func secretStore() secret.SecretStore {
	chain := secret.ChainStore{secret.NewEnvStore()}
	if kc := secret.NewKeychainStore(); kc.Available() {
		chain = append(chain, kc)
	}
	return chain
}
