package presets

import (
	"encoding/json"
	"fmt"

	"pivot/internal/kv"
	"pivot/internal/layout"
)

// LastUsed remembers the most recent layout per report in the local cache.
// It is unrelated to named presets and lives in its own key namespace.
type LastUsed struct {
	Cache kv.Cache
}

func lastUsedKey(reportID string) string { return "pivot/last/" + reportID }

// Get returns nil when nothing was stored or the stored value is
// unreadable. A LastUsed without a cache remembers nothing.
func (u LastUsed) Get(reportID string) (*layout.Layout, error) {
	if u.Cache == nil {
		return nil, nil
	}
	b, ok, err := u.Cache.Get(lastUsedKey(reportID))
	if err != nil || !ok {
		return nil, err
	}
	var l layout.Layout
	if err := json.Unmarshal(b, &l); err != nil {
		return nil, nil
	}
	return &l, nil
}

func (u LastUsed) Put(reportID string, l layout.Layout) error {
	if u.Cache == nil {
		return nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("presets: encode last-used layout: %w", err)
	}
	return u.Cache.Put(lastUsedKey(reportID), b)
}
