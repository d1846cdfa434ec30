package cache

import "context"

// IConfigStore persists configuration snapshots.
type IConfigStore interface {
	Load(ctx context.Context) (ConfigSet, error)
	Save(ctx context.Context, set ConfigSet) error
	// Backup writes the set to a new timestamped location and returns it.
	Backup(ctx context.Context, set ConfigSet) (string, error)
	// ClearCache drops any read cache so the next Load hits storage.
	ClearCache()
}

// IOverrideSource supplies environment overrides applied after every load.
type IOverrideSource interface {
	Overrides() ([]Override, error)
}
