package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Provider watches a config file and republishes it on change. A one-shot
// caller can ignore it entirely; long-running embedders subscribe so a base
// URL rotation in the file reaches in-flight construction of new resolvers
// without a process restart.
type Provider struct {
	path    string
	logger  *slog.Logger
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc

	mu          sync.RWMutex
	current     Config
	subscribers []chan Config
}

// NewProvider loads the file once and starts watching its directory.
// Watching the directory instead of the file survives the rename-replace
// pattern editors and config management tools use.
func NewProvider(path string, logger *slog.Logger) (*Provider, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := Load(absPath)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch config directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Provider{
		path:    absPath,
		logger:  logger,
		watcher: watcher,
		cancel:  cancel,
		current: cfg,
	}

	go p.watchLoop(ctx)

	return p, nil
}

// Current returns the most recently loaded configuration.
func (p *Provider) Current() Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Subscribe returns a channel that receives the current configuration
// immediately and every successfully reloaded configuration after that.
func (p *Provider) Subscribe() <-chan Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan Config, 1)
	p.subscribers = append(p.subscribers, ch)
	ch <- p.current
	return ch
}

// Close stops the watch loop and releases the watcher.
func (p *Provider) Close() error {
	p.cancel()
	return p.watcher.Close()
}

func (p *Provider) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != p.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			p.reload()
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Warn("config watcher error", "error", err)
		}
	}
}

func (p *Provider) reload() {
	cfg, err := Load(p.path)
	if err != nil {
		// Keep serving the last good configuration.
		p.logger.Warn("config reload failed", "path", p.path, "error", err)
		return
	}

	p.mu.Lock()
	p.current = cfg
	subscribers := append([]chan Config(nil), p.subscribers...)
	p.mu.Unlock()

	p.logger.Info("config reloaded", "path", p.path, "base_url", cfg.BaseURL)

	for _, ch := range subscribers {
		select {
		case ch <- cfg:
		default:
			// Subscriber has not drained the previous update; skip rather
			// than block the watch loop.
		}
	}
}
