package db

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"go.uber.org/zap"
)

func createUserStatement(nu *NewUser) sq.InsertBuilder {
	return psql().Insert("users").
		Columns("fullname", "username", "password", "email", "phone", "usertype",
			"bloodtype", "location", "latitude", "longitude", "availability").
		Values(nu.Fullname, nu.Username, nu.PasswordHash, nu.Email, nu.Phone, nu.Usertype,
			nu.Bloodtype, nu.Location, nu.Latitude, nu.Longitude, true).
		Suffix("RETURNING " + strings.Join(userColumns, ", "))
}

// CreateUser inserts an available user. A taken username, email or phone
// returns ErrDuplicate.
func (r *Repository) CreateUser(ctx context.Context, nu *NewUser) (*User, error) {
	var u User
	if err := r.get(ctx, &u, createUserStatement(nu)); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	r.logger.Info("user created",
		zap.Int64("user_id", u.ID),
		zap.String("usertype", u.Usertype),
		zap.String("location", u.Location),
	)
	return &u, nil
}

// FindCredentials looks a user up by email for login.
func (r *Repository) FindCredentials(ctx context.Context, email string) (*Credentials, error) {
	var c Credentials
	b := psql().Select(userColumns...).Column("password").From("users").Where(sq.Eq{"email": email})
	if err := r.get(ctx, &c, b); err != nil {
		return nil, fmt.Errorf("find credentials: %w", err)
	}
	return &c, nil
}
