package appstate

import (
	"context"
	"database/sql"
	"log/slog"
	"time"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new program-context selection store.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Get retrieves the persisted selection for an account.
// PRE: accountID is non-empty
// POST: Returns the selection and true, or false if none is persisted
func (s *SQLiteStore) Get(ctx context.Context, accountID string) (Selection, bool, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT account_id, current_program_id, updated_at FROM program_context_state WHERE account_id = ?",
		accountID,
	)
	var entity Selection
	var updatedAt string
	err := row.Scan(&entity.AccountID, &entity.CurrentProgramID, &updatedAt)
	if err == sql.ErrNoRows {
		return Selection{}, false, nil
	}
	if err != nil {
		return Selection{}, false, err
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		entity.UpdatedAt = t
	} else {
		// The program id is the payload; a corrupt timestamp is not worth
		// failing the read over, but it must not pass silently.
		slog.Warn("appstate_event", "event", "updated_at_unparseable",
			"account_id", accountID, "value", updatedAt, "error", err.Error())
	}
	return entity, true, nil
}

// Save persists a selection for an account.
// PRE: entity has a non-empty account id and program id
// POST: Selection is persisted (insert or update)
func (s *SQLiteStore) Save(ctx context.Context, entity Selection) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO program_context_state (account_id, current_program_id, updated_at) VALUES (?, ?, ?) ON CONFLICT(account_id) DO UPDATE SET current_program_id=excluded.current_program_id, updated_at=excluded.updated_at",
		entity.AccountID, entity.CurrentProgramID, entity.UpdatedAt.Format(time.RFC3339),
	)
	return err
}

// Delete removes the persisted selection for an account.
// PRE: accountID is non-empty
// POST: No selection remains for the account
func (s *SQLiteStore) Delete(ctx context.Context, accountID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM program_context_state WHERE account_id = ?", accountID)
	return err
}
