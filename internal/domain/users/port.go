package users

import "context"

// Repository port
type Repository interface {
	Save(ctx context.Context, u *User) error
	Get(ctx context.Context, key string) (*User, error)
}
