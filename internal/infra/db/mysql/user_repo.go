package mysql

import (
	"context"
	"database/sql"

	"github.com/bryanwahyu/scanfleet/internal/domain/users"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Save(ctx context.Context, u *users.User) error {
	const q = `
INSERT INTO users
(user_key, display_name, namespace, quota)
VALUES (?,?,?,?)
ON DUPLICATE KEY UPDATE
 display_name=VALUES(display_name),
 namespace=VALUES(namespace),
 quota=VALUES(quota);
`
	_, err := r.db.ExecContext(ctx, q, u.Key, u.DisplayName, u.Namespace, u.Quota)
	return err
}

func (r *UserRepository) Get(ctx context.Context, key string) (*users.User, error) {
	const q = `
SELECT user_key, display_name, namespace, quota
FROM users
WHERE user_key=? LIMIT 1;
`
	var u users.User
	if err := r.db.QueryRowContext(ctx, q, key).Scan(
		&u.Key, &u.DisplayName, &u.Namespace, &u.Quota,
	); err != nil {
		return nil, err
	}
	return &u, nil
}
