package cache

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

type snapshotEntry struct {
	Key       Key             `json:"key"`
	Data      json.RawMessage `json:"data"`
	FetchedAt time.Time       `json:"fetched_at"`
	Stale     bool            `json:"stale,omitempty"`
}

type snapshot struct {
	Entries []snapshotEntry `json:"entries"`
}

// Export writes every successfully fetched entry to w as JSON.
func (c *Cache) Export(w io.Writer) error {
	var snap snapshot
	c.lock.Lock()
	for _, r := range c.entries {
		if r.Status != StatusSuccess {
			continue
		}
		data, err := json.Marshal(r.Data)
		if err != nil {
			c.lock.Unlock()
			return fmt.Errorf("cache: cannot export %s: %w", r.Key, err)
		}
		snap.Entries = append(snap.Entries, snapshotEntry{
			Key:       r.Key.With(),
			Data:      data,
			FetchedAt: r.FetchedAt,
			Stale:     r.Stale,
		})
	}
	c.lock.Unlock()

	return json.NewEncoder(w).Encode(&snap)
}

// ExportToFile writes a snapshot to disk. The file is only readable by the current user.
func (c *Cache) ExportToFile(filename string) error {
	file, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer file.Close()

	return c.Export(file)
}

// Import loads entries previously written by [Cache.Export]. Entries already present in c are kept.
// Restored entries are marked stale if they were fetched more than maxAge ago; a zero maxAge
// marks every restored entry stale, so that it is shown only until the next fetch completes.
func (c *Cache) Import(r io.Reader, maxAge time.Duration) (int, error) {
	var snap snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return 0, err
	}

	count := 0
	now := time.Now()
	c.lock.Lock()
	for _, saved := range snap.Entries {
		if len(saved.Key) == 0 {
			continue
		}
		id := saved.Key.id()
		if _, ok := c.entries[id]; ok {
			continue
		}
		r := c.newRecord(saved.Key)
		r.Data = saved.Data
		r.FetchedAt = saved.FetchedAt
		r.Status = StatusSuccess
		r.Stale = saved.Stale || now.Sub(saved.FetchedAt) > maxAge
		c.entries[id] = r
		count++
	}
	c.evict("")
	c.lock.Unlock()
	return count, nil
}

// ImportFromFile reads a snapshot from disk. See [Cache.Import].
func (c *Cache) ImportFromFile(filename string, maxAge time.Duration) (int, error) {
	file, err := os.Open(filename)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	return c.Import(file, maxAge)
}
