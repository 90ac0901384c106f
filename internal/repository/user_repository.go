package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fjod/storefront/internal/domain"
)

const userColumns = `id, email, full_name, hashed_password, is_active, role, created_at`

func scanUser(row rowScanner) (*domain.User, error) {
	var user domain.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.FullName,
		&user.HashedPassword,
		&user.IsActive,
		&user.Role,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	query := `INSERT INTO users (email, full_name, hashed_password, is_active, role)
	          VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`

	err := r.q.QueryRowContext(ctx, query,
		user.Email,
		user.FullName,
		user.HashedPassword,
		user.IsActive,
		user.Role).Scan(&user.ID, &user.CreatedAt)
	if isUniqueViolation(err) {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	user, err := scanUser(r.q.QueryRowContext(ctx, query, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user by email: %w", err)
	}
	return user, nil
}

func (r *Repository) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user by id: %w", err)
	}
	return user, nil
}
