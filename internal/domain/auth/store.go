package auth

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	FullName     string     `json:"fullName"`
	Role         string     `json:"role"`
	Recommending bool       `json:"isRecommendingApprover"`
	Final        bool       `json:"isFinalApprover"`
	IsActive     bool       `json:"isActive"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

const userColumns = `
  id, email, password_hash, full_name, role,
  is_recommending_approver, is_final_approver, is_active, last_login_at, created_at
`

func (s *Store) FindActiveUserByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := s.DB.QueryRow(ctx, `
    SELECT `+userColumns+`
    FROM users
    WHERE email = $1 AND is_active = true
  `, email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.Role, &u.Recommending, &u.Final, &u.IsActive, &u.LastLoginAt, &u.CreatedAt)
	return u, err
}

func (s *Store) UserByID(ctx context.Context, userID string) (User, error) {
	var u User
	err := s.DB.QueryRow(ctx, `
    SELECT `+userColumns+`
    FROM users
    WHERE id = $1
  `, userID).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.Role, &u.Recommending, &u.Final, &u.IsActive, &u.LastLoginAt, &u.CreatedAt)
	return u, err
}

func (s *Store) UpdateLastLogin(ctx context.Context, userID string) error {
	_, err := s.DB.Exec(ctx, "UPDATE users SET last_login_at = now() WHERE id = $1", userID)
	return err
}

func (s *Store) CreateUser(ctx context.Context, email, passwordHash, fullName, role string, recommending, final bool) (string, error) {
	var id string
	err := s.DB.QueryRow(ctx, `
    INSERT INTO users (email, password_hash, full_name, role, is_recommending_approver, is_final_approver)
    VALUES ($1, $2, $3, $4, $5, $6)
    RETURNING id
  `, email, passwordHash, fullName, role, recommending, final).Scan(&id)
	return id, err
}

func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+userColumns+`
    FROM users
    ORDER BY created_at
  `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.Role, &u.Recommending, &u.Final, &u.IsActive, &u.LastLoginAt, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) SetApproverFlags(ctx context.Context, userID string, recommending, final bool) error {
	_, err := s.DB.Exec(ctx, `
    UPDATE users
    SET is_recommending_approver = $2, is_final_approver = $3
    WHERE id = $1
  `, userID, recommending, final)
	return err
}

func (s *Store) SetActive(ctx context.Context, userID string, active bool) error {
	_, err := s.DB.Exec(ctx, "UPDATE users SET is_active = $2 WHERE id = $1", userID, active)
	return err
}
