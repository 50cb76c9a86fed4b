package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"browserstealth/internal/adblock"
	"browserstealth/internal/browser"
	"browserstealth/internal/config"
	"browserstealth/internal/storage"
	"browserstealth/pkg/logger"
)

// App holds the long-lived components of an `open` run.
type App struct {
	config  *config.Config
	browser *browser.Manager
	storage *storage.DB
	lists   *adblock.RedisSource
	builder *browser.Builder

	logger logger.Logger
}

func NewApp(cfg *config.Config, log logger.Logger, withStorage bool) (*App, error) {
	app := &App{config: cfg, logger: log}

	var opts []browser.BuilderOption
	opts = append(opts, browser.WithLogger(log))

	if withStorage {
		db, err := openStorage(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to init storage: %w", err)
		}
		app.storage = db
		opts = append(opts,
			browser.WithRecorder(db),
			browser.WithBlockObserver(db.BlockObserver(log)),
			browser.WithWorkerObserver(db.WorkerObserver(log)),
		)
	}

	var source adblock.FilterSource = adblock.NewHTTPSource(&http.Client{
		Timeout: time.Duration(cfg.AdBlock.FetchTimeoutSeconds) * time.Second,
	})
	if cfg.Cache.Redis.URL != "" {
		ttl := time.Duration(cfg.Cache.Redis.TTLMinutes) * time.Minute
		redisSource, err := adblock.NewRedisSource(cfg.Cache.Redis.URL, ttl, source, log)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to init filter list cache: %w", err)
		}
		app.lists = redisSource
		source = redisSource
	}
	opts = append(opts, browser.WithBlockerCache(adblock.NewCache(adblock.SourceBuilder(source, filterLists(cfg.AdBlock)))))

	mgr, err := browser.NewManager(&cfg.Browser, log)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to init browser: %w", err)
	}
	app.browser = mgr
	app.builder = browser.NewBuilder(mgr, opts...)

	return app, nil
}

func openStorage(cfg *config.Config) (*storage.DB, error) {
	return storage.New(&storage.Config{
		URI:      cfg.Storage.MongoDB.URI,
		Database: cfg.Storage.MongoDB.Database,
		Timeout:  time.Duration(cfg.Storage.MongoDB.TimeoutSeconds) * time.Second,
	})
}

// prepareSpec fills the session spec's profile and cookies from storage.
func (a *App) prepareSpec(ctx context.Context, spec *browser.SessionSpec, profileName, stateKey string) error {
	if profileName != "" {
		if a.storage == nil {
			return errors.New("--profile needs storage")
		}
		rec, err := a.storage.GetProfile(ctx, profileName)
		if err != nil {
			return err
		}
		spec.Profile = &rec.Profile
	}

	if stateKey == "" {
		return nil
	}
	if a.storage == nil {
		return errors.New("--state needs storage")
	}
	key, err := a.cookieKey()
	if err != nil {
		return err
	}

	sealed, err := a.storage.GetState(ctx, stateKey)
	if errors.Is(err, storage.ErrNotFound) {
		a.logger.Info("no stored session state", "key", stateKey)
		return nil
	}
	if err != nil {
		return err
	}

	cookies, err := browser.DecryptCookies(key, sealed)
	if err != nil {
		return err
	}
	spec.StorageState = &browser.StorageState{Cookies: cookies}
	a.logger.Info("restored session state", "key", stateKey, "cookies", len(cookies))
	return nil
}

// saveState encrypts the session's cookies and stores them under stateKey.
func (a *App) saveState(ctx context.Context, session *browser.Session, stateKey string) error {
	key, err := a.cookieKey()
	if err != nil {
		return err
	}

	state, err := session.StorageState(ctx)
	if err != nil {
		return err
	}

	sealed, err := browser.EncryptCookies(key, state.Cookies)
	if err != nil {
		return err
	}
	return a.storage.SaveState(ctx, stateKey, sealed)
}

func (a *App) cookieKey() ([]byte, error) {
	if a.config.Security.CookieKey == "" {
		return nil, errors.New("security.cookie_key is not set")
	}
	return []byte(a.config.Security.CookieKey), nil
}

func (a *App) Close() {
	if a.browser != nil {
		if err := a.browser.Close(); err != nil {
			a.logger.Warn("failed to close browser", "error", err)
		}
	}
	if a.lists != nil {
		_ = a.lists.Close()
	}
	if a.storage != nil {
		_ = a.storage.Close()
	}
}

// filterLists converts the configured lists to per-mode URLs, skipping
// unknown modes.
func filterLists(cfg config.AdBlockConfig) map[adblock.Mode][]string {
	lists := make(map[adblock.Mode][]string, len(cfg.Lists))
	for name, urls := range cfg.Lists {
		mode, err := adblock.ParseMode(name)
		if err != nil || mode == adblock.ModeNone {
			continue
		}
		lists[mode] = urls
	}
	return lists
}
