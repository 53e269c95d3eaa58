package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"boardroom/internal/domain"
)

// SeedExecutives writes the configured persona of every role. Existing personas are kept unless
// overwrite is set. It returns the roles that were written.
func (e Engine) SeedExecutives(ctx context.Context, overwrite bool) ([]domain.Role, error) {
	cfg := e.cfg()
	var written []domain.Role
	for _, role := range domain.Roles {
		p := cfg.Persona(role)
		ex := domain.Executive{Role: role, Name: p.Name, Title: p.Title, SystemPrompt: p.SystemPrompt}
		if overwrite {
			if _, err := e.Store.UpsertExecutive(ctx, ex); err != nil {
				return written, fmt.Errorf("seed %s: %w", role, err)
			}
			written = append(written, role)
			continue
		}
		created, err := e.Store.EnsureExecutive(ctx, ex)
		if err != nil {
			return written, fmt.Errorf("seed %s: %w", role, err)
		}
		if created {
			written = append(written, role)
		}
	}
	if len(written) > 0 {
		e.log().Info("executives seeded", zap.Int("count", len(written)), zap.Bool("overwrite", overwrite))
	}
	return written, nil
}
