package domain

import "context"

// User is an external entity, read-only from the core's perspective.
type User struct {
	ID    string
	Email string
	Phone string
	Name  string
}

// Template is an external entity, read-only from the core's perspective.
// The core never renders it; template_id and template_params are passed
// through to the provider as-is.
type Template struct {
	ID      string
	Name    string
	Subject string
	Body    string
}

// UserLookup is the minimal existence/content lookup the acceptance
// service needs, sitting behind the read-through cache.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*User, error)
}

// TemplateLookup is the minimal existence/content lookup the acceptance
// service needs, sitting behind the read-through cache.
type TemplateLookup interface {
	GetByID(ctx context.Context, id string) (*Template, error)
}
