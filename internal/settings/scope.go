package settings

import (
	"fmt"
	"sort"
	"sync"
)

// scopeMu serializes snapshot/apply and restore across goroutines. It
// is released while the body runs, so scopes may nest on one goroutine
// without deadlocking; concurrent scopes on the same Settings still
// interleave their override windows.
var scopeMu sync.Mutex

// Temporary applies the overrides, runs body, and restores the exact
// prior values afterwards. Restoration covers every field, including
// ones the body mutated outside the override set, and runs whether the
// body returns, errors, or panics. Overrides apply in sorted key order
// so failures are deterministic; a failed override restores the fields
// already applied before reporting.
func (s *Settings) Temporary(overrides map[string]any, body func() error) error {
	scopeMu.Lock()
	snap := s.Snapshot()

	keys := make([]string, 0, len(overrides))
	for key := range overrides {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := s.Set(key, overrides[key]); err != nil {
			s.Restore(snap)
			scopeMu.Unlock()
			return fmt.Errorf("apply override %s: %w", key, err)
		}
	}
	scopeMu.Unlock()

	defer func() {
		scopeMu.Lock()
		s.Restore(snap)
		scopeMu.Unlock()
	}()
	return body()
}
