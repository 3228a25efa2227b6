package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sunilpie-kumar/kustom-backend/internal/domain"
	"github.com/sunilpie-kumar/kustom-backend/internal/errs"
)

// ProfileStore keeps the display details used to title conversations.
type ProfileStore struct {
	db *DB
}

// NewProfileStore creates a profile store using the given database.
func NewProfileStore(db *DB) *ProfileStore {
	return &ProfileStore{db: db}
}

// Get returns the profile for p.
func (s *ProfileStore) Get(ctx context.Context, p domain.Participant) (*domain.Profile, error) {
	prof := domain.Profile{Participant: p}
	var updatedAt string
	err := s.db.sql.QueryRowContext(ctx,
		`SELECT full_name, email, company_name, updated_at FROM profiles
		 WHERE participant_type = ? AND participant_id = ?`,
		p.Type, p.ID,
	).Scan(&prof.FullName, &prof.Email, &prof.CompanyName, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NewNotFoundError(string(p.Type) + " not found")
	}
	if err != nil {
		return nil, fmt.Errorf("sql select profile: %w", err)
	}
	prof.UpdatedAt = parseTime(updatedAt)
	return &prof, nil
}

// Put inserts or replaces a profile.
func (s *ProfileStore) Put(ctx context.Context, prof *domain.Profile) error {
	if prof.UpdatedAt.IsZero() {
		prof.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO profiles (participant_type, participant_id, full_name, email, company_name, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(participant_type, participant_id) DO UPDATE SET
		   full_name = excluded.full_name,
		   email = excluded.email,
		   company_name = excluded.company_name,
		   updated_at = excluded.updated_at`,
		prof.Type, prof.ID, prof.FullName, prof.Email, prof.CompanyName, formatTime(prof.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("sql upsert profile: %w", err)
	}
	return nil
}

// DisplayName resolves the conversation title for p. Malformed ids and
// missing profiles resolve to the generic label for p's type without error.
func (s *ProfileStore) DisplayName(ctx context.Context, p domain.Participant) (string, error) {
	if !domain.WellFormedID(p.ID) {
		return domain.FallbackTitle(p.Type), nil
	}
	prof, err := s.Get(ctx, p)
	if errs.IsNotFound(err) {
		return domain.FallbackTitle(p.Type), nil
	}
	if err != nil {
		return domain.FallbackTitle(p.Type), err
	}
	return prof.Title(), nil
}
