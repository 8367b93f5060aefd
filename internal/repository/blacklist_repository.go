package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// BlacklistRepo stores revoked token identifiers in the `blacklist_tokens`
// table. The table carries a UNIQUE index on (jti, kind); re-inserting the
// same pair is rejected silently so revocation stays idempotent. Rows whose
// expires_at has passed count as gone even before the cleanup job physically
// deletes them, which emulates a TTL-style auto-delete index.
type BlacklistRepo struct{ DB *sql.DB }

func NewBlacklistRepo(db *sql.DB) *BlacklistRepo { return &BlacklistRepo{DB: db} }

// Insert records a revoked (jti, kind) pair. Duplicate inserts return nil.
func (r *BlacklistRepo) Insert(ctx context.Context, jti, kind string, userID uint64, expiresAt time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO blacklist_tokens (jti, kind, user_id, expires_at) VALUES (?,?,?,?)",
		jti, kind, userID, expiresAt)
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "1062") {
		return nil // already revoked
	}
	return err
}

// Exists reports whether a live blacklist row exists for (jti, kind).
// Expired rows are ignored: the token has died naturally by then.
func (r *BlacklistRepo) Exists(ctx context.Context, jti, kind string) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx,
		"SELECT 1 FROM blacklist_tokens WHERE jti=? AND kind=? AND expires_at>? LIMIT 1",
		jti, kind, time.Now().UTC()).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DeleteExpired removes up to batch rows whose expiry has passed and
// returns how many were deleted. The cleanup job calls this periodically.
func (r *BlacklistRepo) DeleteExpired(ctx context.Context, now time.Time, batch int) (int, error) {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM blacklist_tokens WHERE expires_at<=? LIMIT ?", now, batch)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
