package repo

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"strings"

	"boardroom/internal/domain"
)

// HashAPIKey returns a stable SHA-256 hex digest for the provided key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

// InsertAPIKey stores a hashed API key. KeyHash must already contain the hashed value.
func (r Repo) InsertAPIKey(ctx context.Context, key domain.APIKey) error {
	if key.ID == "" {
		return errors.New("id required")
	}
	if key.ActorID == "" {
		return errors.New("actor_id required")
	}
	if key.KeyHash == "" {
		return errors.New("key_hash required")
	}
	if key.CreatedAt == "" {
		key.CreatedAt = r.now()
	}
	_, err := r.exec(ctx, nil, `INSERT INTO api_keys(id, actor_id, name, key_hash, created_at) VALUES (?,?,?,?,?)`,
		key.ID, key.ActorID, nullable(key.Name), key.KeyHash, key.CreatedAt)
	return err
}

// GetAPIKeyByHash returns an API key by its hashed value.
func (r Repo) GetAPIKeyByHash(ctx context.Context, hash string) (domain.APIKey, error) {
	var key domain.APIKey
	err := r.queryRow(ctx, nil, `SELECT id, actor_id, COALESCE(name,''), key_hash, created_at FROM api_keys WHERE key_hash=? LIMIT 1`, hash).
		Scan(&key.ID, &key.ActorID, &key.Name, &key.KeyHash, &key.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.APIKey{}, ErrNotFound
	}
	if err != nil {
		return domain.APIKey{}, err
	}
	return key, nil
}

// GrantPermission records that actorID holds perm.
func (r Repo) GrantPermission(ctx context.Context, actorID, perm string) error {
	_, err := r.exec(ctx, nil, `INSERT INTO actor_permissions(actor_id, permission, created_at) VALUES (?,?,?) ON CONFLICT(actor_id, permission) DO NOTHING`,
		actorID, perm, r.now())
	return err
}

func (r Repo) RevokePermission(ctx context.Context, actorID, perm string) error {
	_, err := r.exec(ctx, nil, `DELETE FROM actor_permissions WHERE actor_id=? AND permission=?`, actorID, perm)
	return err
}

func (r Repo) ActorPermissions(ctx context.Context, actorID string) ([]string, error) {
	rows, err := r.query(ctx, nil, `SELECT permission FROM actor_permissions WHERE actor_id=? ORDER BY permission ASC`, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	perms := []string{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}
