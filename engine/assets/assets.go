// Package assets indexes the shader directory, loads shader files and
// reports the ones that are missing.
package assets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/luminax/engine/core"
)

// Notifier tells the user about a shader file that could not be found. It
// may block until the user acknowledged it.
type Notifier interface {
	MissingAsset(path string, err error)
}

type NotifierFunc func(path string, err error)

func (f NotifierFunc) MissingAsset(path string, err error) {
	f(path, err)
}

// LogNotifier reports missing assets through the engine logger.
var LogNotifier Notifier = NotifierFunc(func(path string, err error) {
	core.LogError("Shader file %s could not be opened: %s", path, err)
})

type Info struct {
	Path       string
	Kind       Kind
	ModTime    time.Time
	LastLoaded time.Time
}

type Registry struct {
	root     string
	notifier Notifier
	loaders  map[Kind]Loader

	mutex  sync.RWMutex
	assets map[string]Info

	watcher  *fsnotify.Watcher
	done     chan struct{}
	wg       sync.WaitGroup
	isClosed bool
	events   chan fsnotify.Event
}

// NewRegistry indexes every shader file below root. A nil notifier falls
// back to LogNotifier.
func NewRegistry(root string, notifier Notifier) (*Registry, error) {
	if notifier == nil {
		notifier = LogNotifier
	}
	r := &Registry{
		root:     root,
		notifier: notifier,
		loaders: map[Kind]Loader{
			KindShaderSource: fileLoader{},
			KindShaderBinary: fileLoader{},
		},
		assets: make(map[string]Info),
		done:   make(chan struct{}),
		events: make(chan fsnotify.Event, 16),
	}
	if err := r.walk(root, nil); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return r, nil
}

func (r *Registry) Root() string {
	return r.root
}

// Load reads the shader stored under name, relative to the root. A missing
// file is reported to the notifier and yields core.ErrAssetMissing.
func (r *Registry) Load(name string) (*Shader, error) {
	path := filepath.Join(r.root, name)
	st, err := os.Stat(path)
	if err != nil || st.IsDir() {
		if err == nil {
			err = fmt.Errorf("%s is a directory", path)
		}
		r.notifier.MissingAsset(path, err)
		return nil, fmt.Errorf("shader %s: %w", path, core.ErrAssetMissing)
	}

	kind := determineKind(path)
	loader, ok := r.loaders[kind]
	if !ok {
		return nil, fmt.Errorf("no loader registered for %s (%s)", path, kind)
	}
	shader, err := loader.Load(path, kind)
	if err != nil {
		r.notifier.MissingAsset(path, err)
		return nil, fmt.Errorf("shader %s: %w", path, core.ErrAssetMissing)
	}

	r.mutex.Lock()
	r.assets[path] = Info{
		Path:       path,
		Kind:       kind,
		ModTime:    st.ModTime(),
		LastLoaded: time.Now(),
	}
	r.mutex.Unlock()
	return shader, nil
}

// LoadAll loads every name and stops at the first missing one.
func (r *Registry) LoadAll(names ...string) ([]*Shader, error) {
	out := make([]*Shader, 0, len(names))
	for _, n := range names {
		s, err := r.Load(n)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Lookup returns what the registry knows about name.
func (r *Registry) Lookup(name string) (Info, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	info, ok := r.assets[filepath.Join(r.root, name)]
	return info, ok
}

// Len is the number of indexed shader files.
func (r *Registry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.assets)
}

// Watch keeps the index in sync with the shader directory. Changes are
// forwarded on Events.
func (r *Registry) Watch() error {
	if r.isClosed {
		return errors.New("asset registry already closed")
	}
	if r.watcher != nil {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	r.watcher = w
	if err := r.walk(r.root, w); err != nil {
		w.Close()
		r.watcher = nil
		return err
	}
	r.wg.Add(1)
	go r.start()
	return nil
}

// Events delivers file system changes on shader files. Events are dropped
// when nobody keeps up with them.
func (r *Registry) Events() <-chan fsnotify.Event {
	return r.events
}

func (r *Registry) Close() error {
	if r.isClosed {
		return nil
	}
	r.isClosed = true
	close(r.done)
	r.wg.Wait()
	if r.watcher != nil {
		return r.watcher.Close()
	}
	return nil
}

func (r *Registry) start() {
	defer r.wg.Done()
	for {
		select {
		case e, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			r.handleEvent(e)

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			core.LogError("asset watcher: %s", err)

		case <-r.done:
			return
		}
	}
}

func (r *Registry) handleEvent(e fsnotify.Event) {
	if s, err := os.Stat(e.Name); err == nil && s.IsDir() {
		if e.Op&fsnotify.Create != 0 {
			if err := r.walk(e.Name, r.watcher); err != nil {
				core.LogWarn("cannot watch %s: %s", e.Name, err)
			}
		}
		return
	}
	if determineKind(e.Name) == KindNone {
		return
	}
	switch {
	case e.Op&(fsnotify.Create|fsnotify.Write) != 0:
		r.index(e.Name)
	case e.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		r.mutex.Lock()
		delete(r.assets, e.Name)
		r.mutex.Unlock()
	default:
		return
	}
	select {
	case r.events <- e:
	default:
	}
}

// walk indexes every shader file below path and, with a watcher, watches
// every directory.
func (r *Registry) walk(path string, w *fsnotify.Watcher) error {
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if w != nil {
				return w.Add(p)
			}
			return nil
		}
		r.index(p)
		return nil
	})
}

func (r *Registry) index(path string) {
	kind := determineKind(path)
	if kind == KindNone {
		return
	}
	var mod time.Time
	if st, err := os.Stat(path); err == nil {
		mod = st.ModTime()
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	info := r.assets[path]
	info.Path = path
	info.Kind = kind
	info.ModTime = mod
	r.assets[path] = info
}
