// internal/viewstate/store.go
//
// Store of mounted form views.
//
// Context
// -------
// A form lives as long as the page showing it.  Over HTTP that lifetime is
// approximated by an opaque view ID echoed by every request of the page.
// The Store keeps each View in a sync.Map and drops it when the visitor goes
// away: after IdleTTL without a request, or when the map grows past
// MaxEntries (least recently seen first).  Dropping a View closes its
// workflow, so a submission still in flight resolves into nothing.
//
// Workflow
// --------
//   - Mount builds a fresh View through the Factory.
//   - Obtain returns the View for an ID, or mounts a replacement when the ID
//     is unknown.  Replacements for the same stale ID are coalesced with
//     singleflight, so a burst of field updates mounts one View, not many.
//   - Remove unmounts a View explicitly (navigation away).
//   - The evictor goroutine runs every EvictInterval until Close.
package viewstate

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/yanizio/ponyracer/internal/form"
	"github.com/yanizio/ponyracer/internal/metrics"
	"github.com/yanizio/ponyracer/internal/workflow"
)

// Defaults used when Options leave a value unset.
const (
	DefaultIdleTTL       = 30 * time.Minute
	DefaultMaxEntries    = 10000
	DefaultEvictInterval = time.Minute
)

// ErrUnknownKind is returned by factories for form kinds they cannot build.
var ErrUnknownKind = errors.New("unknown view kind")

// Factory builds the definition and workflow of a new view of kind.  nav and
// alerts are the View itself.
type Factory func(kind string, nav workflow.Navigator, alerts workflow.Alerter) (*form.Definition, *workflow.Workflow, error)

// Options tunes a Store.
type Options struct {
	IdleTTL       time.Duration
	MaxEntries    int
	EvictInterval time.Duration
}

// Store is safe for concurrent use.
type Store struct {
	factory    Factory
	sfg        singleflight.Group
	m          sync.Map // id → *View
	idleTTL    time.Duration
	maxEntries int
	now        func() time.Time

	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

// New constructs a Store and starts the background evictor.
func New(factory Factory, opts Options) *Store {
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = DefaultIdleTTL
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.EvictInterval <= 0 {
		opts.EvictInterval = DefaultEvictInterval
	}
	s := &Store{
		factory:    factory,
		idleTTL:    opts.IdleTTL,
		maxEntries: opts.MaxEntries,
		now:        time.Now,
		ticker:     time.NewTicker(opts.EvictInterval),
		done:       make(chan struct{}),
	}
	go s.evictLoop()
	return s
}

// Mount builds and stores a new View of kind.
func (s *Store) Mount(kind string) (*View, error) {
	id, err := newID()
	if err != nil {
		return nil, fmt.Errorf("view id: %w", err)
	}
	v := &View{ID: id, Kind: kind}
	def, wf, err := s.factory(kind, v, v)
	if err != nil {
		return nil, err
	}
	v.Def, v.Workflow = def, wf
	v.touch(s.now())

	s.m.Store(id, v)
	metrics.ViewMountTotal.Inc()
	metrics.ActiveViews.Inc()
	zap.S().Debugw("view mounted", "kind", kind, "view", id)
	return v, nil
}

// Get returns the View for id and marks it as seen.
func (s *Store) Get(id string) (*View, bool) {
	val, ok := s.m.Load(id)
	if !ok {
		return nil, false
	}
	v := val.(*View)
	v.touch(s.now())
	return v, true
}

// Obtain returns the View for id when it exists and has kind; otherwise it
// mounts a replacement.  An empty id always mounts a fresh View.
func (s *Store) Obtain(kind, id string) (*View, error) {
	if id == "" {
		return s.Mount(kind)
	}
	if v, ok := s.Get(id); ok && v.Kind == kind {
		return v, nil
	}
	val, err, _ := s.sfg.Do(kind+"\x00"+id, func() (any, error) {
		return s.Mount(kind)
	})
	if err != nil {
		return nil, err
	}
	return val.(*View), nil
}

// Remove unmounts the View for id.
func (s *Store) Remove(id string) {
	if val, ok := s.m.LoadAndDelete(id); ok {
		val.(*View).Workflow.Close()
		metrics.ActiveViews.Dec()
	}
}

// Len reports the number of mounted views.
func (s *Store) Len() int {
	n := 0
	s.m.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Close stops the evictor and unmounts every View.
func (s *Store) Close() {
	s.once.Do(func() {
		s.ticker.Stop()
		close(s.done)
		s.m.Range(func(key, _ any) bool {
			s.Remove(key.(string))
			return true
		})
	})
}

// -----------------------------------------------------------------------------
// Eviction
// -----------------------------------------------------------------------------

func (s *Store) evictLoop() {
	for {
		select {
		case <-s.done:
			return
		case <-s.ticker.C:
			s.sweep(s.now())
		}
	}
}

// sweep removes idle views, then the least recently seen views beyond
// maxEntries.
func (s *Store) sweep(now time.Time) {
	type seen struct {
		id string
		at int64
	}
	var live []seen

	s.m.Range(func(key, val any) bool {
		v := val.(*View)
		at := v.lastSeen.Load()
		if idle := now.Sub(time.Unix(0, at)); idle > s.idleTTL {
			s.evict(key.(string), "idle")
			return true
		}
		live = append(live, seen{id: key.(string), at: at})
		return true
	})

	if len(live) <= s.maxEntries {
		return
	}
	sort.Slice(live, func(i, j int) bool { return live[i].at < live[j].at })
	for _, e := range live[:len(live)-s.maxEntries] {
		s.evict(e.id, "lru")
	}
}

func (s *Store) evict(id, reason string) {
	if val, ok := s.m.LoadAndDelete(id); ok {
		val.(*View).Workflow.Close()
		metrics.ActiveViews.Dec()
		metrics.ViewEvictTotal.Inc()
		zap.S().Debugw("view evicted", "view", id, "reason", reason)
	}
}

func newID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
