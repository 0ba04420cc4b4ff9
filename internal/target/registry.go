package target

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/majorcontext/portico/internal/id"
	"github.com/majorcontext/portico/internal/log"
)

// ErrNotFound is returned when no target has the requested id.
var ErrNotFound = errors.New("target not found")

// document is the on-disk registry format shared with the desktop shell.
type document struct {
	Environments []Config `json:"environments"`
}

// Registry is an ordered, mutex-guarded collection of targets, optionally
// persisted to a JSON file after every change. Ids are not required to be
// unique; lookups return the first match.
type Registry struct {
	path string

	mu      sync.Mutex
	targets []Config
}

// NewRegistry loads the registry document at path. A missing file yields an
// empty registry. An unreadable document is moved aside and an empty
// registry is returned, so the next save does not destroy it.
func NewRegistry(path string) (*Registry, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating registry dir: %w", err)
	}

	r := &Registry{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("reading registry: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		aside := path + ".corrupt-" + strconv.FormatInt(time.Now().Unix(), 10)
		log.Warn("registry document unreadable, starting empty",
			"path", path, "moved_to", aside, "error", err)
		if renameErr := os.Rename(path, aside); renameErr != nil {
			return nil, fmt.Errorf("moving unreadable registry aside: %w", renameErr)
		}
		return r, nil
	}
	r.targets = doc.Environments
	return r, nil
}

// NewMemoryRegistry returns a registry that is never persisted.
func NewMemoryRegistry(targets ...Config) *Registry {
	r := &Registry{}
	for _, t := range targets {
		r.targets = append(r.targets, t.Clone())
	}
	return r
}

// Path returns the backing file, or "" for a memory registry.
func (r *Registry) Path() string {
	return r.path
}

// Resolve returns a copy of the first target with the given id.
func (r *Registry) Resolve(targetID string) (Config, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i := r.indexLocked(targetID); i >= 0 {
		return r.targets[i].Clone(), true
	}
	return Config{}, false
}

// List returns copies of all targets in registration order.
func (r *Registry) List() []Config {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Config, len(r.targets))
	for i, t := range r.targets {
		out[i] = t.Clone()
	}
	return out
}

// Len returns the number of registered targets.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.targets)
}

// Add appends a target, assigning an id when it has none.
func (r *Registry) Add(cfg Config) (Config, error) {
	cfg = cfg.Clone()
	if cfg.ID == "" {
		cfg.ID = id.Target()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := append(r.cloneLocked(), cfg)
	if err := r.commitLocked(next); err != nil {
		return Config{}, err
	}
	return cfg.Clone(), nil
}

// Update replaces the first target sharing cfg's id.
func (r *Registry) Update(cfg Config) (Config, error) {
	if cfg.ID == "" {
		return Config{}, ErrNotFound
	}
	cfg = cfg.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexLocked(cfg.ID)
	if i < 0 {
		return Config{}, fmt.Errorf("%w: %s", ErrNotFound, cfg.ID)
	}
	next := r.cloneLocked()
	next[i] = cfg
	if err := r.commitLocked(next); err != nil {
		return Config{}, err
	}
	return cfg.Clone(), nil
}

// Delete removes the first target with the given id.
func (r *Registry) Delete(targetID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexLocked(targetID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, targetID)
	}
	next := r.cloneLocked()
	next = append(next[:i], next[i+1:]...)
	return r.commitLocked(next)
}

func (r *Registry) indexLocked(targetID string) int {
	if targetID == "" {
		return -1
	}
	for i := range r.targets {
		if r.targets[i].ID == targetID {
			return i
		}
	}
	return -1
}

func (r *Registry) cloneLocked() []Config {
	out := make([]Config, len(r.targets), len(r.targets)+1)
	copy(out, r.targets)
	return out
}

// commitLocked persists next and, on success, makes it current.
func (r *Registry) commitLocked(next []Config) error {
	if r.path != "" {
		if err := writeDocument(r.path, next); err != nil {
			return err
		}
	}
	r.targets = next
	return nil
}

func writeDocument(path string, targets []Config) error {
	if targets == nil {
		targets = []Config{}
	}
	data, err := json.MarshalIndent(document{Environments: targets}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding registry: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating registry temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing registry: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("setting registry permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing registry temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing registry: %w", err)
	}
	return nil
}
