package cache

import (
	"fmt"
	"time"
)

// Status describes the outcome of the most recent fetch of an entry.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Entry is a snapshot of a cached query. Data holds the value returned by the last successful
// fetch, or a json.RawMessage if the entry was restored with Import. Data is retained when a
// later fetch fails, in which case Err describes the failure.
type Entry struct {
	Key       Key
	Data      interface{}
	FetchedAt time.Time
	Status    Status
	Err       error
	Stale     bool
}

// Fresh returns true if the entry holds data that may be served without refetching.
func (e *Entry) Fresh() bool {
	return e.Status == StatusSuccess && !e.Stale
}

// record is the cache's mutable view of an entry. The generation is bumped by every invalidation
// so that a fetch which started before the invalidation leaves the entry stale. The flight key is
// unique to the record: once a record is removed, later queries for its key never join a fetch
// that was started for it.
type record struct {
	Entry
	generation uint64
	flight     string
}

func (r *record) snapshot() Entry {
	e := r.Entry
	e.Key = r.Key.With()
	return e
}
