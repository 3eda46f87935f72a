package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/insider-one/notification-service/internal/domain"
)

// UserRepository is a read-only lookup over the external users entity.
type UserRepository struct {
	db *DB
}

func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	u := &domain.User{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, email, phone, name FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.Email, &u.Phone, &u.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	return u, nil
}

// TemplateRepository is a read-only lookup over the external templates
// entity. The core never renders these; template_id and template_params
// pass through to the provider untouched.
type TemplateRepository struct {
	db *DB
}

func NewTemplateRepository(db *DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*domain.Template, error) {
	t := &domain.Template{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, name, subject, body FROM templates WHERE id = $1
	`, id).Scan(&t.ID, &t.Name, &t.Subject, &t.Body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up template: %w", err)
	}
	return t, nil
}
