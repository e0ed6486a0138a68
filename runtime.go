package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/bookvoice/internal/book"
	"github.com/dgnsrekt/bookvoice/internal/cache"
	"github.com/dgnsrekt/bookvoice/internal/observe"
	"github.com/dgnsrekt/bookvoice/internal/progress"
	"github.com/dgnsrekt/bookvoice/pkg/tts"
	"github.com/dgnsrekt/bookvoice/pkg/tts/engines"
	"github.com/dgnsrekt/bookvoice/ui"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"
)

// runtime wires the narration pipeline for one book.
type runtime struct {
	config    *tts.Config
	book      *book.Book
	lifecycle *tts.LifecycleManager
	cache     *cache.Manager
	progress  *progress.Store
	session   *tts.Session

	mu        sync.Mutex
	completed map[int]bool
}

// newRuntime builds the metrics provider, cache, engine, progress store
// and session, registering each with the lifecycle manager as it goes.
func newRuntime(ctx context.Context, b *book.Book, env ui.Config) (_ *runtime, err error) {
	cfg, err := loadConfig(env)
	if err != nil {
		return nil, err
	}

	rt := &runtime{
		config:    cfg,
		book:      b,
		lifecycle: tts.NewLifecycleManager(),
		completed: make(map[int]bool),
	}
	defer func() {
		if err != nil {
			_ = rt.lifecycle.Shutdown()
		}
	}()

	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: Version})
	if err != nil {
		return nil, fmt.Errorf("unable to set up metrics: %w", err)
	}
	rt.lifecycle.Register(tts.NewComponent("metrics", shutdownMetrics))
	if cfg.Metrics.Listen != "" {
		go func() {
			if err := observe.Serve(ctx, cfg.Metrics.Listen); err != nil {
				log.Error("Metrics endpoint stopped", "addr", cfg.Metrics.Listen, "error", err)
			}
		}()
	}

	if cfg.Cache.Enabled {
		if rt.cache, err = openCache(cfg); err != nil {
			return nil, err
		}
		rt.lifecycle.Register(tts.NewComponent("cache", func(context.Context) error {
			return rt.cache.Close()
		}))
	}

	if cfg.Progress.Enabled {
		if rt.progress, err = openProgress(ctx, cfg); err != nil {
			return nil, err
		}
		rt.lifecycle.Register(tts.NewComponent("progress", func(context.Context) error {
			return rt.progress.Close()
		}))
	}

	engine, err := engines.NewGeminiEngine(ctx, engines.GeminiConfig{
		APIKey:            env.APIKey(),
		Model:             cfg.Gemini.Model,
		Voice:             cfg.Gemini.Voice,
		BaseURL:           cfg.Gemini.BaseURL,
		Timeout:           cfg.Gemini.Timeout,
		RequestsPerMinute: cfg.Gemini.RequestsPerMinute,
		Cache:             rt.cache,
	})
	if err != nil {
		return nil, err
	}

	backend, err := tts.ParseAudioContextType(cfg.Audio.Backend)
	if err != nil {
		return nil, err
	}
	scheduler := tts.NewScheduler(tts.NewAudioFactory(backend, cfg.Audio.BufferSize), cfg.SchedulerConfig())

	rt.session = tts.NewSession(engine, scheduler, tts.SessionConfig{
		Segmenter:  cfg.SegmenterConfig(),
		Lookahead:  cfg.Playback.Lookahead,
		OnComplete: rt.pageCompleted,
	})
	rt.lifecycle.Register(tts.NewSessionLifecycle(rt.session))

	log.Info("Narration ready", "book", b.ID, "backend", cfg.Audio.Backend, "cache", cfg.Cache.Enabled, "progress", cfg.Progress.Enabled)
	return rt, nil
}

// loadConfig reads the narration config from viper and applies env
// overrides.
func loadConfig(env ui.Config) (*tts.Config, error) {
	cfg, err := tts.LoadConfig(viper.GetViper())
	if err != nil {
		return nil, err
	}
	if env.AudioBackend != "" {
		cfg.Audio.Backend = env.AudioBackend
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func openCache(cfg *tts.Config) (*cache.Manager, error) {
	dir := cfg.Cache.Dir
	if dir == "" {
		base, err := gap.NewScope(gap.User, "bookvoice").CacheDir()
		if err != nil {
			return nil, fmt.Errorf("unable to find cache directory: %w", err)
		}
		dir = filepath.Join(base, "audio")
	}

	return cache.NewManager(cache.Config{
		MemoryCapacity:   int64(cfg.Cache.MemoryMB) << 20,
		DiskCapacity:     int64(cfg.Cache.DiskMB) << 20,
		Dir:              dir,
		CompressionLevel: cfg.Cache.CompressionLevel,
		TTL:              time.Duration(cfg.Cache.TTLDays) * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	})
}

func openProgress(ctx context.Context, cfg *tts.Config) (*progress.Store, error) {
	path := cfg.Progress.Path
	if path == "" {
		dirs, err := gap.NewScope(gap.User, "bookvoice").DataDirs()
		if err != nil || len(dirs) == 0 {
			return nil, errors.New("unable to find data directory")
		}
		path = filepath.Join(dirs[0], "progress.db")
	}
	return progress.Open(ctx, path)
}

// pageCompleted records a page that finished playing naturally.
func (rt *runtime) pageCompleted(page int) {
	rt.mu.Lock()
	rt.completed[page] = true
	rt.mu.Unlock()

	log.Info("Page narrated", "book", rt.book.ID, "page", page)
	if rt.progress == nil {
		return
	}
	if err := rt.progress.RecordNarration(context.Background(), rt.book.ID, page); err != nil {
		log.Warn("Could not record narration", "page", page, "error", err)
	}
}

func (rt *runtime) wasCompleted(page int) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.completed[page]
}

// progressStore returns the store as the reader's interface, keeping a
// disabled store a true nil.
func (rt *runtime) progressStore() ui.ProgressStore {
	if rt.progress == nil {
		return nil
	}
	return rt.progress
}

func (rt *runtime) shutdown() error {
	return rt.lifecycle.Shutdown()
}
