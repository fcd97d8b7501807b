package cache

import (
	"net/url"
	"strings"
)

// Key identifies a cache entry. The first element names the resource; remaining elements narrow
// it, for example Key{"trip", "12"} or Key{"trips", "community=4"}.
type Key []string

// NewKey returns a Key for resource with params encoded canonically, so that equal parameter sets
// produce equal keys regardless of insertion order. Empty params add no element.
func NewKey(resource string, params url.Values) Key {
	k := Key{resource}
	if encoded := params.Encode(); encoded != "" {
		k = append(k, encoded)
	}
	return k
}

// With returns a copy of k extended by elems.
func (k Key) With(elems ...string) Key {
	out := make(Key, 0, len(k)+len(elems))
	out = append(out, k...)
	return append(out, elems...)
}

// HasPrefix returns true if the first len(prefix) elements of k equal prefix. Matching is
// element-wise: Key{"trips"} is a prefix of Key{"trips", "page=2"} but not of Key{"trips-archive"}.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Equal returns true if k and other contain the same elements.
func (k Key) Equal(other Key) bool {
	return len(k) == len(other) && k.HasPrefix(other)
}

func (k Key) String() string {
	return strings.Join(k, "/")
}

// id is used as the map key and singleflight key. Elements may contain '/', so String would be
// ambiguous.
func (k Key) id() string {
	return strings.Join(k, "\x00")
}
