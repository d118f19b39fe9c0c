// README: Tracker fans device fixes out to watchers and serves best-effort current positions.
package location

import (
	"context"
	"sync"
	"time"

	"bridgetalk/internal/types"
)

type watcher struct {
	onFix func(Fix)
	onErr func(*LocationError)
}

// Tracker is the geolocation source for one session. Watchers keep receiving
// fixes after a transient error; only the cancel func returned by Watch
// removes them.
type Tracker struct {
	id    types.ID
	store *Store

	mu       sync.Mutex
	last     *Fix
	nextID   int
	watchers map[int]watcher
}

func newTracker(id types.ID, store *Store) *Tracker {
	return &Tracker{id: id, store: store, watchers: map[int]watcher{}}
}

// Watch subscribes to fixes and errors. Callbacks run on the reporting
// goroutine and must not block.
func (t *Tracker) Watch(onFix func(Fix), onErr func(*LocationError)) (cancel func()) {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.watchers[id] = watcher{onFix: onFix, onErr: onErr}
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.watchers, id)
			t.mu.Unlock()
		})
	}
}

// Report records a fix and delivers it to every watcher.
func (t *Tracker) Report(fix Fix) {
	t.mu.Lock()
	f := fix
	t.last = &f
	ws := t.snapshotWatchers()
	t.mu.Unlock()

	for _, w := range ws {
		if w.onFix != nil {
			w.onFix(fix)
		}
	}
}

// ReportError delivers a geolocation failure to every watcher.
func (t *Tracker) ReportError(err *LocationError) {
	t.mu.Lock()
	ws := t.snapshotWatchers()
	t.mu.Unlock()

	for _, w := range ws {
		if w.onErr != nil {
			w.onErr(err)
		}
	}
}

// Last returns the most recent fix seen by this tracker.
func (t *Tracker) Last() (Fix, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		return Fix{}, false
	}
	return *t.last, true
}

// CurrentPosition returns a fix no older than maxAge, waiting for the next
// report when the cached one is stale. When ctx expires it falls back to the
// last-known fix in the store, then to a stale in-memory fix.
func (t *Tracker) CurrentPosition(ctx context.Context, maxAge time.Duration) (Fix, error) {
	if f, ok := t.Last(); ok && time.Since(f.RecordedAt) <= maxAge {
		return f, nil
	}

	fixes := make(chan Fix, 1)
	errs := make(chan *LocationError, 1)
	cancel := t.Watch(
		func(f Fix) {
			select {
			case fixes <- f:
			default:
			}
		},
		func(e *LocationError) {
			select {
			case errs <- e:
			default:
			}
		},
	)
	defer cancel()

	select {
	case f := <-fixes:
		return f, nil
	case e := <-errs:
		return Fix{}, e
	case <-ctx.Done():
	}

	if t.store != nil {
		// ctx is already done; give the store its own short budget.
		sctx, scancel := context.WithTimeout(context.Background(), time.Second)
		defer scancel()
		if f, ok, err := t.store.LastGeo(sctx, t.id); err == nil && ok {
			return f, nil
		}
	}
	if f, ok := t.Last(); ok {
		return f, nil
	}
	return Fix{}, ErrNoFix
}

func (t *Tracker) snapshotWatchers() []watcher {
	ws := make([]watcher, 0, len(t.watchers))
	for _, w := range t.watchers {
		ws = append(ws, w)
	}
	return ws
}
