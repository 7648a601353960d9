package transport

import (
	"path/filepath"
	"sort"
	"sync"

	"github.com/danmuck/typechan/internal/config"
	"github.com/danmuck/typechan/internal/protocol"
	"github.com/fsnotify/fsnotify"
	"github.com/nuclio/errors"
	"github.com/rs/zerolog/log"
)

// FileRegistry serves endpoints from a TOML registry file and can follow
// edits to it. A failed reload keeps the previous table.
type FileRegistry struct {
	mu        sync.RWMutex
	path      string
	endpoints map[string]Endpoint
	dial      DialConfig
	onChange  []func(names []string)

	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	stopOnce sync.Once
}

func OpenFileRegistry(path string) (*FileRegistry, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "Can't resolve %s", path)
	}
	r := &FileRegistry{path: abs, stopCh: make(chan struct{})}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *FileRegistry) load() error {
	cfg, err := config.LoadRegistryConfig(r.path)
	if err != nil {
		return err
	}
	endpoints := make(map[string]Endpoint, len(cfg.Channels))
	names := make([]string, 0, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		endpoints[ch.Name] = Endpoint{Name: ch.Name, Kind: ch.Kind, Address: ch.Address, MaxMsgSize: ch.MaxMsgSize}
		names = append(names, ch.Name)
	}

	r.mu.Lock()
	r.endpoints = endpoints
	r.dial = DialConfigFrom(cfg.Dial)
	callbacks := append([]func([]string){}, r.onChange...)
	r.mu.Unlock()

	for _, fn := range callbacks {
		fn(names)
	}
	return nil
}

// DialConfigFrom converts the file form of dial settings.
func DialConfigFrom(c config.DialConfig) DialConfig {
	return DialConfig{
		ConnectTimeout: c.ConnectTimeout,
		Backoff: BackoffConfig{
			InitialDelay: c.BackoffInitial,
			Multiplier:   c.BackoffMultiplier,
			MaxDelay:     c.BackoffMax,
			Jitter:       c.BackoffJitter,
		},
	}
}

func (r *FileRegistry) Lookup(name string) (Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ep, ok := r.endpoints[name]
	if !ok {
		return Endpoint{}, &protocol.ChannelNotFoundError{Name: name}
	}
	return ep, nil
}

// Names lists the channel names from the last good load.
func (r *FileRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.endpoints))
	for name := range r.endpoints {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// DialConfig returns the dial settings from the last good load.
func (r *FileRegistry) DialConfig() DialConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dial
}

// Reload re-reads the file.
func (r *FileRegistry) Reload() error {
	if err := r.load(); err != nil {
		log.Error().Err(err).Str("path", r.path).Msg("registry reload failed, keeping old table")
		return err
	}
	log.Info().Str("path", r.path).Msg("registry reloaded")
	return nil
}

// OnChange registers fn to run with the channel names after each
// successful reload.
func (r *FileRegistry) OnChange(fn func(names []string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = append(r.onChange, fn)
}

// Watch reloads the registry when its file is written or replaced.
func (r *FileRegistry) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "Can't create watcher")
	}
	// editors replace files atomically, so watch the directory
	if err := watcher.Add(filepath.Dir(r.path)); err != nil {
		watcher.Close()
		return errors.Wrapf(err, "Can't watch %s", filepath.Dir(r.path))
	}
	r.watcher = watcher
	go r.watchLoop(watcher)
	log.Debug().Str("path", r.path).Msg("watching registry file")
	return nil
}

func (r *FileRegistry) watchLoop(watcher *fsnotify.Watcher) {
	filename := filepath.Base(r.path)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				_ = r.Reload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("registry watcher error")
		case <-r.stopCh:
			return
		}
	}
}

// Close stops watching. Lookups keep working on the last table.
func (r *FileRegistry) Close() error {
	var err error
	r.stopOnce.Do(func() {
		close(r.stopCh)
		if r.watcher != nil {
			err = r.watcher.Close()
		}
	})
	return err
}
