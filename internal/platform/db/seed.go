package db

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"pms/internal/domain/auth"
	"pms/internal/platform/config"
)

// Seed ensures the initial administrator account exists. The seeded admin
// holds both approver capabilities so a fresh install can exercise the full
// approval chain.
func Seed(ctx context.Context, pool *pgxpool.Pool, cfg config.Config) error {
	return ensureAdminUser(ctx, pool, cfg.SeedAdminEmail, cfg.SeedAdminPassword, cfg.SeedAdminName)
}

func ensureAdminUser(ctx context.Context, pool *pgxpool.Pool, email, password, fullName string) error {
	if strings.TrimSpace(email) == "" || strings.TrimSpace(password) == "" {
		return nil
	}

	var id string
	err := pool.QueryRow(ctx, "SELECT id FROM users WHERE email = $1", email).Scan(&id)
	if err == nil {
		return nil
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	return pool.QueryRow(ctx, `
    INSERT INTO users (email, password_hash, full_name, role, is_recommending_approver, is_final_approver)
    VALUES ($1, $2, $3, $4, true, true)
    RETURNING id
  `, email, hash, fullName, auth.RoleAdmin).Scan(&id)
}
