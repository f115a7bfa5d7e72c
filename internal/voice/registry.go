// Package voice keeps the catalog of voices the speech engine currently
// offers. The engine's list is authoritative: every refresh replaces the
// catalog wholesale.
package voice

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/schollz/closestmatch"

	"github.com/tahcohcat/voicepanel/internal/logger"
)

// Descriptor identifies one engine voice. Name is unique within a catalog.
type Descriptor struct {
	Name     string `json:"name"`
	Language string `json:"lang"`
}

// Label is the dropdown text for the voice.
func (d Descriptor) Label() string {
	return fmt.Sprintf("%s (%s)", d.Name, d.Language)
}

// Source returns the engine's current voice list.
type Source interface {
	Voices(ctx context.Context) ([]Descriptor, error)
}

type Registry struct {
	source Source
	logger *logger.Log

	mu        sync.RWMutex
	byName    map[string]Descriptor
	sorted    []Descriptor
	matcher   *closestmatch.ClosestMatch
	listeners []func([]Descriptor)
}

func NewRegistry(source Source) *Registry {
	return &Registry{
		source: source,
		logger: logger.New().Named("voice"),
		byName: make(map[string]Descriptor),
	}
}

// Subscribe registers fn to receive the new catalog whenever a refresh
// changes it.
func (r *Registry) Subscribe(fn func([]Descriptor)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Refresh queries the source and replaces the catalog. On failure the
// previous catalog stays in place.
func (r *Registry) Refresh(ctx context.Context) error {
	voices, err := r.source.Voices(ctx)
	if err != nil {
		return fmt.Errorf("failed to list voices: %w", err)
	}

	byName := make(map[string]Descriptor, len(voices))
	for _, v := range voices {
		if v.Name == "" {
			continue
		}
		byName[v.Name] = v
	}

	sorted := make([]Descriptor, 0, len(byName))
	for _, v := range byName {
		sorted = append(sorted, v)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})

	r.mu.Lock()
	if sameCatalog(r.sorted, sorted) {
		r.mu.Unlock()
		return nil
	}
	r.byName = byName
	r.sorted = sorted
	r.matcher = nil
	listeners := slices.Clone(r.listeners)
	r.mu.Unlock()

	r.logger.Info(fmt.Sprintf("voice catalog updated: %d voices", len(sorted)))

	for _, fn := range listeners {
		fn(cloneDescriptors(sorted))
	}
	return nil
}

// Resolve looks a voice up by exact name. An empty or unknown name yields
// false, meaning the engine default voice applies.
func (r *Registry) Resolve(name string) (Descriptor, bool) {
	if name == "" {
		return Descriptor{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byName[name]
	return d, ok
}

// Voices returns the catalog sorted by name.
func (r *Registry) Voices() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneDescriptors(r.sorted)
}

// Suggest returns the catalog name closest to name, or "" for an empty
// catalog.
func (r *Registry) Suggest(name string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sorted) == 0 || name == "" {
		return ""
	}
	if r.matcher == nil {
		names := make([]string, 0, len(r.sorted))
		for _, v := range r.sorted {
			names = append(names, v.Name)
		}
		r.matcher = closestmatch.New(names, []int{2, 3})
	}
	return r.matcher.Closest(name)
}

// Watch refreshes the catalog once per notification until ctx is done or
// notify is closed.
func (r *Registry) Watch(ctx context.Context, notify <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-notify:
			if !ok {
				return
			}
			if err := r.Refresh(ctx); err != nil {
				r.logger.WithError(err).Warn("voice refresh failed, keeping previous catalog")
			}
		}
	}
}

// Poll emits a "voices changed" notification immediately and then every
// interval. Synthesizers behind a remote API have no push channel, so
// polling stands in for one.
func Poll(ctx context.Context, interval time.Duration) <-chan struct{} {
	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		ch <- struct{}{}
		if interval <= 0 {
			<-ctx.Done()
			return
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case ch <- struct{}{}:
				default:
				}
			}
		}
	}()
	return ch
}

func sameCatalog(a, b []Descriptor) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func cloneDescriptors(in []Descriptor) []Descriptor {
	out := make([]Descriptor, len(in))
	copy(out, in)
	return out
}
