package querycache

import "strings"

// keySep separates key parts in a fingerprint. It is a control character so
// that realistic part values (search queries, user IDs) cannot collide with
// the joined form of a different tuple.
const keySep = "\x1f"

// Key identifies a cacheable request: an ordered tuple of primitive values,
// by convention starting with the resource name. Equality is structural —
// two keys built from the same parts in the same order address the same
// cache entry.
type Key struct {
	parts []string
}

// NewKey builds a key from ordered parts.
func NewKey(parts ...string) Key {
	copied := make([]string, len(parts))
	copy(copied, parts)
	return Key{parts: copied}
}

// Fingerprint returns the canonical string identity of the key.
func (k Key) Fingerprint() string {
	return strings.Join(k.parts, keySep)
}

// Parts returns a copy of the key's ordered parts.
func (k Key) Parts() []string {
	copied := make([]string, len(k.parts))
	copy(copied, k.parts)
	return copied
}

// HasPrefix reports whether the key starts with the given parts, compared
// element-wise.
func (k Key) HasPrefix(prefix ...string) bool {
	if len(prefix) > len(k.parts) {
		return false
	}
	for i, p := range prefix {
		if k.parts[i] != p {
			return false
		}
	}
	return true
}

// String renders the key for logs.
func (k Key) String() string {
	return strings.Join(k.parts, ":")
}

// Predicate selects keys, typically for invalidation.
type Predicate func(Key) bool

// PrefixPredicate matches every key starting with the given parts. The usual
// shape is (resource, userID) so one user's mutation never touches another
// user's entries.
func PrefixPredicate(prefix ...string) Predicate {
	return func(k Key) bool { return k.HasPrefix(prefix...) }
}
