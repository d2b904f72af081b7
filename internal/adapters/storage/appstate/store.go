package appstate

import (
	"context"
	"time"
)

// Selection is the persisted program-context state for one account: the
// selected program id and when it was last changed. Nothing else is ever
// persisted client-side.
type Selection struct {
	AccountID        string
	CurrentProgramID string
	UpdatedAt        time.Time
}

// Store persists program-context selections.
type Store interface {
	Get(ctx context.Context, accountID string) (Selection, bool, error)
	Save(ctx context.Context, value Selection) error
	Delete(ctx context.Context, accountID string) error
}
