package db

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"go.uber.org/zap"
)

func psql() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

var userColumns = []string{
	"id", "fullname", "email", "phone", "usertype", "bloodtype",
	"location", "latitude", "longitude", "availability", "created_at",
}

// Repository handles database operations for the user directory, request
// store, offer ledger and their supporting tables.
type Repository struct {
	db     *DB
	logger *zap.Logger
}

// NewRepository creates a new repository
func NewRepository(db *DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) get(ctx context.Context, dst any, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return translate(pgxscan.Get(ctx, r.db.Pool(), dst, query, args...))
}

func (r *Repository) selectAll(ctx context.Context, dst any, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return pgxscan.Select(ctx, r.db.Pool(), dst, query, args...)
}

// exec runs b and returns the number of affected rows.
func (r *Repository) exec(ctx context.Context, b sq.Sqlizer) (int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build statement: %w", err)
	}
	tag, err := r.db.Pool().Exec(ctx, query, args...)
	if err != nil {
		return 0, translate(err)
	}
	return tag.RowsAffected(), nil
}

// FindUserByID returns ErrNotFound for unknown ids.
func (r *Repository) FindUserByID(ctx context.Context, id int64) (*User, error) {
	var u User
	err := r.get(ctx, &u, psql().Select(userColumns...).From("users").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, fmt.Errorf("find user %d: %w", id, err)
	}
	return &u, nil
}

// donorsQuery narrows the directory to geocoded donors of one blood type in one constituency.
func donorsQuery(bloodType, location string) sq.SelectBuilder {
	return psql().Select(userColumns...).From("users").
		Where(sq.Eq{"usertype": UserTypeDonor, "bloodtype": bloodType, "location": location}).
		Where(sq.NotEq{"latitude": nil, "longitude": nil}).
		OrderBy("id")
}

// FindDonors finds donors by type, blood type and constituency.
func (r *Repository) FindDonors(ctx context.Context, bloodType, location string) ([]*User, error) {
	donors := make([]*User, 0)
	if err := r.selectAll(ctx, &donors, donorsQuery(bloodType, location)); err != nil {
		return nil, fmt.Errorf("find donors: %w", err)
	}
	return donors, nil
}

func userUpdateStatement(id int64, upd UserUpdate) sq.UpdateBuilder {
	b := psql().Update("users").Where(sq.Eq{"id": id})
	if upd.Fullname != nil {
		b = b.Set("fullname", *upd.Fullname)
	}
	if upd.Phone != nil {
		b = b.Set("phone", *upd.Phone)
	}
	if upd.Availability != nil {
		b = b.Set("availability", *upd.Availability)
	}
	if upd.Location != nil {
		b = b.Set("location", *upd.Location).
			Set("latitude", upd.Latitude).
			Set("longitude", upd.Longitude)
	}
	return b
}

// UpdateUserFields applies the non-nil fields of upd.
func (r *Repository) UpdateUserFields(ctx context.Context, id int64, upd UserUpdate) error {
	if upd.Empty() {
		return nil
	}
	n, err := r.exec(ctx, userUpdateStatement(id, upd))
	if err != nil {
		r.logger.Error("failed to update user", zap.Error(err), zap.Int64("user_id", id))
		return fmt.Errorf("update user %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("update user %d: %w", id, ErrNotFound)
	}
	return nil
}

// FindConstituency looks a constituency up by exact name.
func (r *Repository) FindConstituency(ctx context.Context, name string) (*Constituency, error) {
	var c Constituency
	err := r.get(ctx, &c, psql().Select("id", "name", "latitude", "longitude").
		From("constituencies").Where(sq.Eq{"name": name}))
	if err != nil {
		return nil, fmt.Errorf("find constituency %q: %w", name, err)
	}
	return &c, nil
}

func (r *Repository) ListConstituencies(ctx context.Context) ([]*Constituency, error) {
	out := make([]*Constituency, 0)
	err := r.selectAll(ctx, &out, psql().Select("id", "name", "latitude", "longitude").
		From("constituencies").OrderBy("name"))
	if err != nil {
		return nil, fmt.Errorf("list constituencies: %w", err)
	}
	return out, nil
}

var hospitalColumns = []string{"id", "name", "constituency", "latitude", "longitude"}

func (r *Repository) ListHospitals(ctx context.Context, constituency string) ([]*Hospital, error) {
	out := make([]*Hospital, 0)
	err := r.selectAll(ctx, &out, psql().Select(hospitalColumns...).
		From("hospitals").Where(sq.Eq{"constituency": constituency}).OrderBy("name"))
	if err != nil {
		return nil, fmt.Errorf("list hospitals: %w", err)
	}
	return out, nil
}

// FindHospital looks a hospital up by name within a constituency.
func (r *Repository) FindHospital(ctx context.Context, constituency, name string) (*Hospital, error) {
	var h Hospital
	err := r.get(ctx, &h, psql().Select(hospitalColumns...).
		From("hospitals").Where(sq.Eq{"constituency": constituency, "name": name}).Limit(1))
	if err != nil {
		return nil, fmt.Errorf("find hospital %q: %w", name, err)
	}
	return &h, nil
}
