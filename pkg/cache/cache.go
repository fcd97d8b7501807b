package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/covoit/carpool-sdk/internal/dispatcher"
	"github.com/covoit/carpool-sdk/internal/log"
	"github.com/covoit/carpool-sdk/pkg/protocol"
)

// Fetcher retrieves the current value of a cache entry.
type Fetcher func(ctx context.Context) (interface{}, error)

// Mutation changes server state. Its result is returned to the caller of [Cache.Mutate] but never
// cached.
type Mutation func(ctx context.Context) (interface{}, error)

// EventKind identifies what happened to the cache.
type EventKind int

const (
	// EventUpdated is published when an entry starts loading and when its fetch completes.
	EventUpdated EventKind = iota
	// EventInvalidated is published when a fresh entry is marked stale.
	EventInvalidated
	// EventRemoved is published when an entry is removed.
	EventRemoved
	// EventCleared is published when every entry is dropped at once.
	EventCleared
)

func (k EventKind) String() string {
	switch k {
	case EventUpdated:
		return "updated"
	case EventInvalidated:
		return "invalidated"
	case EventRemoved:
		return "removed"
	case EventCleared:
		return "cleared"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event notifies subscribers of a change. Key is nil for EventCleared.
type Event struct {
	Kind   EventKind
	Key    Key
	Status Status
}

// ErrDiscarded is returned to callers whose fetch completed after its entry was removed or the
// cache was cleared. The result is dropped rather than returned, since it was requested on behalf
// of a context the owner has abandoned, such as a previous session.
var ErrDiscarded = errors.New("cache: entry removed while fetch was in flight")

// Subscription delivers cache events. Events are dropped if the subscriber falls behind.
type Subscription interface {
	Recv() <-chan Event
	Close()
}

// Cache stores query results. It is safe for concurrent use.
type Cache struct {
	// MaxEntries bounds the number of entries. When a fetch would exceed the bound, the entry
	// fetched longest ago is evicted. Zero means unbounded.
	MaxEntries int

	lock           sync.Mutex
	entries        map[string]*record
	records        uint64
	group          singleflight.Group
	events         *dispatcher.Dispatcher[Event]
	onUnauthorized func(error)
}

// New returns a Cache that holds up to maxEntries entries. Set maxEntries to zero for an unbounded
// cache.
func New(maxEntries int) *Cache {
	return &Cache{
		MaxEntries: maxEntries,
		entries:    make(map[string]*record),
		events:     dispatcher.New[Event]("cache"),
	}
}

// OnUnauthorized registers handler to be called whenever a fetch or mutation fails because the
// server rejected the session's token. The handler runs on the goroutine that observed the error
// and may be called concurrently.
func (c *Cache) OnUnauthorized(handler func(err error)) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.onUnauthorized = handler
}

func (c *Cache) checkUnauthorized(err error) {
	if !protocol.IsUnauthorized(err) {
		return
	}
	c.lock.Lock()
	handler := c.onUnauthorized
	c.lock.Unlock()
	if handler != nil {
		handler(err)
	}
}

// Subscribe returns a Subscription to cache events.
func (c *Cache) Subscribe() Subscription {
	return c.events.Subscribe()
}

// Query returns the entry for key, running fetch if the entry is missing, stale, or failed.
//
// Concurrent calls for the same key share a single invocation of fetch. The fetch runs on a
// context that keeps ctx's values but not its cancellation: if ctx ends first, Query returns
// ctx.Err() and the fetch still completes and updates the cache.
//
// If fetch fails, Query returns the error along with the entry, which retains any data from an
// earlier successful fetch.
func (c *Cache) Query(ctx context.Context, key Key, fetch Fetcher) (Entry, error) {
	if len(key) == 0 {
		return Entry{}, errors.New("cache: empty key")
	}
	id := key.id()

	c.lock.Lock()
	r, ok := c.entries[id]
	if ok && r.Fresh() {
		e := r.snapshot()
		c.lock.Unlock()
		return e, nil
	}
	if !ok {
		r = c.newRecord(key)
		c.entries[id] = r
	}
	flight := r.flight
	c.lock.Unlock()

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(flight, func() (interface{}, error) {
		return c.fetch(detached, key, r, fetch)
	})
	select {
	case result := <-ch:
		e, _ := result.Val.(Entry)
		return e, result.Err
	case <-ctx.Done():
		return Entry{}, ctx.Err()
	}
}

// newRecord creates an idle record for key. Caller must hold lock.
func (c *Cache) newRecord(key Key) *record {
	c.records++
	return &record{
		Entry:  Entry{Key: key.With()},
		flight: fmt.Sprintf("%d\x00%s", c.records, key.id()),
	}
}

func (c *Cache) fetch(ctx context.Context, key Key, r *record, fetch Fetcher) (Entry, error) {
	id := key.id()

	c.lock.Lock()
	if c.entries[id] != r {
		c.lock.Unlock()
		log.Debug("Not fetching removed entry %s", key)
		return Entry{Key: key, Status: StatusError, Err: ErrDiscarded}, ErrDiscarded
	}
	generation := r.generation
	r.Status = StatusLoading
	c.lock.Unlock()
	c.events.Publish(Event{Kind: EventUpdated, Key: key, Status: StatusLoading})

	log.Debug("Fetching %s", key)
	data, err := fetch(ctx)

	c.lock.Lock()
	if c.entries[id] != r {
		// Removed while the fetch was in flight. Neither the data nor an authorization failure
		// applies to whoever owns the cache now.
		c.lock.Unlock()
		log.Debug("Discarding result for removed entry %s", key)
		return Entry{Key: key, Status: StatusError, Err: ErrDiscarded}, ErrDiscarded
	}
	if err != nil {
		r.Status = StatusError
		r.Err = err
	} else {
		r.Data = data
		r.FetchedAt = time.Now()
		r.Status = StatusSuccess
		r.Err = nil
		r.Stale = r.generation != generation
		if r.Stale {
			log.Debug("%s was invalidated during fetch", key)
		}
	}
	e := r.snapshot()
	evicted := c.evict(id)
	c.lock.Unlock()

	c.events.Publish(Event{Kind: EventUpdated, Key: key, Status: e.Status})
	for _, k := range evicted {
		c.events.Publish(Event{Kind: EventRemoved, Key: k})
	}
	if err != nil {
		log.Debug("Fetching %s failed: %s", key, err)
		c.checkUnauthorized(err)
	}
	return e, err
}

// evict drops the entries fetched longest ago until the cache is within MaxEntries. The entry
// identified by keep, and entries with a fetch pending or in flight, are never evicted. Caller must
// hold lock.
func (c *Cache) evict(keep string) []Key {
	var evicted []Key
	for c.MaxEntries > 0 && len(c.entries) > c.MaxEntries {
		oldestID := ""
		oldest := time.Now()
		for id, r := range c.entries {
			if id == keep || r.Status == StatusIdle || r.Status == StatusLoading {
				continue
			}
			if oldestID == "" || r.FetchedAt.Before(oldest) {
				oldestID = id
				oldest = r.FetchedAt
			}
		}
		if oldestID == "" {
			break
		}
		evicted = append(evicted, c.entries[oldestID].Key)
		delete(c.entries, oldestID)
	}
	return evicted
}

// Mutate runs mutation and, if it succeeds, invalidates every entry whose key starts with one of
// prefixes. If mutation fails, the cache is left untouched and the error is returned.
//
// Unlike fetches, mutations run on the caller's ctx and are never shared between callers.
func (c *Cache) Mutate(ctx context.Context, mutation Mutation, prefixes ...Key) (interface{}, error) {
	result, err := mutation(ctx)
	if err != nil {
		c.checkUnauthorized(err)
		return nil, err
	}
	c.Invalidate(prefixes...)
	return result, nil
}

// Invalidate marks every entry whose key starts with one of prefixes as stale, and returns the
// number of entries that were fresh before the call. Invalidating a stale entry is a no-op, apart
// from also invalidating any fetch of that entry that is in flight.
func (c *Cache) Invalidate(prefixes ...Key) int {
	var invalidated []Key
	c.lock.Lock()
	for _, r := range c.entries {
		if !matchesAny(r.Key, prefixes) {
			continue
		}
		r.generation++
		if !r.Stale {
			r.Stale = true
			invalidated = append(invalidated, r.Key.With())
		}
	}
	c.lock.Unlock()

	for _, k := range invalidated {
		log.Debug("Invalidated %s", k)
		c.events.Publish(Event{Kind: EventInvalidated, Key: k})
	}
	return len(invalidated)
}

func matchesAny(k Key, prefixes []Key) bool {
	for _, p := range prefixes {
		if k.HasPrefix(p) {
			return true
		}
	}
	return false
}

// Peek returns the entry for key without fetching.
func (c *Cache) Peek(key Key) (Entry, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()
	r, ok := c.entries[key.id()]
	if !ok {
		return Entry{}, false
	}
	return r.snapshot(), true
}

// Remove deletes every entry whose key starts with prefix and returns the number removed. Callers
// waiting on a fetch in flight for a removed entry receive ErrDiscarded; later queries start a new
// fetch.
func (c *Cache) Remove(prefix Key) int {
	var removed []Key
	c.lock.Lock()
	for id, r := range c.entries {
		if r.Key.HasPrefix(prefix) {
			removed = append(removed, r.Key)
			delete(c.entries, id)
		}
	}
	c.lock.Unlock()

	for _, k := range removed {
		c.events.Publish(Event{Kind: EventRemoved, Key: k})
	}
	return len(removed)
}

// Clear deletes every entry. Callers waiting on fetches in flight receive ErrDiscarded; later
// queries start new fetches.
func (c *Cache) Clear() {
	c.lock.Lock()
	c.entries = make(map[string]*record)
	c.lock.Unlock()
	c.events.Publish(Event{Kind: EventCleared})
}

// Len returns the number of entries, regardless of status.
func (c *Cache) Len() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return len(c.entries)
}

// Close ends all subscriptions. The Cache remains usable.
func (c *Cache) Close() {
	c.events.Close()
}

// Get is a typed wrapper around [Cache.Query]. If the cached data is not a T, as is the case for
// entries restored with [Cache.Import], it is converted by round-tripping through JSON.
func Get[T any](ctx context.Context, c *Cache, key Key, fetch func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	e, err := c.Query(ctx, key, func(ctx context.Context) (interface{}, error) {
		return fetch(ctx)
	})
	if err != nil {
		return zero, err
	}
	return convert[T](e.Data)
}

// Apply is a typed wrapper around [Cache.Mutate].
func Apply[T any](ctx context.Context, c *Cache, mutation func(ctx context.Context) (T, error), prefixes ...Key) (T, error) {
	var zero T
	result, err := c.Mutate(ctx, func(ctx context.Context) (interface{}, error) {
		return mutation(ctx)
	}, prefixes...)
	if err != nil {
		return zero, err
	}
	if out, ok := result.(T); ok {
		return out, nil
	}
	return zero, nil
}

func convert[T any](data interface{}) (T, error) {
	var out T
	if typed, ok := data.(T); ok {
		return typed, nil
	}
	if data == nil {
		return out, nil
	}
	encoded, ok := data.(json.RawMessage)
	if !ok {
		var err error
		if encoded, err = json.Marshal(data); err != nil {
			return out, fmt.Errorf("cache: cannot convert %T: %w", data, err)
		}
	}
	if err := json.Unmarshal(encoded, &out); err != nil {
		return out, fmt.Errorf("cache: cannot convert %T: %w", data, err)
	}
	return out, nil
}
