package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"boardroom/internal/domain"
	"boardroom/internal/repo"
)

const apiKeyPrefix = "br_"

// CreateAPIKey mints a key for actorID. The plaintext secret is returned once; only its hash
// is stored.
func (e Engine) CreateAPIKey(ctx context.Context, actorID, name string) (domain.APIKey, string, error) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return domain.APIKey{}, "", ValidationError{Field: "actor_id", Message: "actor_id is required"}
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return domain.APIKey{}, "", fmt.Errorf("generate key: %w", err)
	}
	secret := apiKeyPrefix + hex.EncodeToString(buf)
	key := domain.APIKey{ID: uuid.NewString(), ActorID: actorID, Name: strings.TrimSpace(name), KeyHash: repo.HashAPIKey(secret), CreatedAt: e.nowString()}
	if err := e.Store.InsertAPIKey(ctx, key); err != nil {
		return domain.APIKey{}, "", err
	}
	e.Events.Append(ctx, "apikey.created", "api_key", key.ID, actorID, nil)
	return key, secret, nil
}

// AuthenticateAPIKey resolves a plaintext key to its record.
func (e Engine) AuthenticateAPIKey(ctx context.Context, secret string) (domain.APIKey, error) {
	if strings.TrimSpace(secret) == "" {
		return domain.APIKey{}, errors.New("api key required")
	}
	key, err := e.Store.GetAPIKeyByHash(ctx, repo.HashAPIKey(secret))
	if err != nil {
		return domain.APIKey{}, err
	}
	if key.ActorID == "" {
		return domain.APIKey{}, errors.New("api key missing actor")
	}
	return key, nil
}
