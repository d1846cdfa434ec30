package domain

import (
	"context"
	"time"
)

// ChangeRecord is one changed configuration field of one applied change.
type ChangeRecord struct {
	ID        string    `json:"id"`
	EventID   string    `json:"event_id"`
	Type      string    `json:"type"`
	Source    string    `json:"source"`
	Version   string    `json:"version"`
	Pool      string    `json:"pool"`
	Path      string    `json:"path"`
	OldValue  string    `json:"old_value"`
	NewValue  string    `json:"new_value"`
	CreatedAt time.Time `json:"created_at"`
}

// ListFilter narrows a history listing. Zero values mean no filter.
type ListFilter struct {
	Pool  string
	Limit int
}

// IHistoryRepository defines the contract for persisting configuration history.
type IHistoryRepository interface {
	// InitSchema creates the necessary tables
	InitSchema(ctx context.Context) error

	Append(ctx context.Context, records []ChangeRecord) error
	// List returns the newest records first.
	List(ctx context.Context, filter ListFilter) ([]ChangeRecord, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}
