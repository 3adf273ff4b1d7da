package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/haneul/gyoryu/core/user"
)

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

// dbUser mirrors the "user" table; roles need pq's array type.
type dbUser struct {
	ID           int            `db:"id"`
	Name         string         `db:"name"`
	Username     string         `db:"username"`
	Email        string         `db:"email"`
	IsActive     bool           `db:"is_active"`
	Roles        pq.StringArray `db:"roles"`
	PasswordHash []byte         `db:"password_hash"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	LastLogin    time.Time      `db:"last_login"`
}

func (u dbUser) unpack() user.User {
	return user.User{
		ID:           u.ID,
		Name:         u.Name,
		Username:     u.Username,
		Email:        u.Email,
		IsActive:     u.IsActive,
		Roles:        []string(u.Roles),
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
		LastLogin:    u.LastLogin,
	}
}

func unpackUsers(rows []dbUser) []user.User {
	users := make([]user.User, 0, len(rows))
	for _, u := range rows {
		users = append(users, u.unpack())
	}
	return users
}

// trapNoRowsErr maps psql "no rows" err to user.ErrNotFound
func trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return user.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

const userColumns = `id, name, username, email, is_active, roles, password_hash, created_at, updated_at, last_login`

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	args := []interface{}{username, email}
	q := `SELECT username, email FROM "user" WHERE (username = $1 AND username <> '') OR (email = $2 AND email <> '')`
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			args = append(args, u.ID)
			ids = append(ids, fmt.Sprintf("$%d", len(args)))
		}
		q += fmt.Sprintf(" AND id NOT IN (%s)", strings.Join(ids, ","))
	}

	rows, err := repo.db.QueryContext(ctx, q, args...)
	if err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var uname, mail string
		if err = rows.Scan(&uname, &mail); err != nil {
			return errors.Wrap(err, "checking user uniqueness")
		}
		if username != "" && uname == username {
			return user.ErrUsernameExists
		}
		if email != "" && mail == email {
			return user.ErrEmailExists
		}
	}
	return errors.Wrap(rows.Err(), "checking user uniqueness")
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	q := `
		INSERT INTO "user" (name, username, email, is_active, roles, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
	err := repo.db.QueryRowContext(ctx, q,
		usr.Name, usr.Username, usr.Email, usr.IsActive, pq.StringArray(usr.Roles),
		usr.PasswordHash, usr.CreatedAt, usr.UpdatedAt,
	).Scan(&usr.ID)
	if err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) QueryAllUsers(ctx context.Context) ([]user.User, error) {
	var rows []dbUser
	q := fmt.Sprintf(`SELECT %s FROM "user" ORDER BY id`, userColumns)
	if err := repo.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return unpackUsers(rows), nil
}

func (repo *userRepository) getUser(ctx context.Context, where string, args ...interface{}) (user.User, error) {
	var row dbUser
	q := fmt.Sprintf(`SELECT %s FROM "user" WHERE %s`, userColumns, where)
	if err := repo.db.GetContext(ctx, &row, q, args...); err != nil {
		return user.User{}, trapNoRowsErr(err, "getting user")
	}
	return row.unpack(), nil
}

func (repo *userRepository) GetUserByID(ctx context.Context, id int) (user.User, error) {
	return repo.getUser(ctx, "id = $1", id)
}

func (repo *userRepository) GetUserByUsername(ctx context.Context, username string) (user.User, error) {
	return repo.getUser(ctx, "username = $1 AND username <> ''", username)
}

func (repo *userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return repo.getUser(ctx, "email = $1 AND email <> ''", email)
}

func (repo *userRepository) GetUserByUsernameOrEmail(ctx context.Context, username string) (user.User, error) {
	return repo.getUser(ctx, "(username = $1 OR email = $1) AND $1 <> ''", username)
}

func (repo *userRepository) FilterUsers(ctx context.Context, filter user.QueryFilter) ([]user.User, error) {
	where := make([]string, 0, 3)
	args := make([]interface{}, 0, 3)

	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := len(args)
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR username ILIKE $%d OR email ILIKE $%d)", n, n, n))
	}
	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		where = append(where, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if len(filter.Roles) > 0 {
		// prefix match: "admin:" matches "admin:owner" etc.
		prefixes := make([]string, 0, len(filter.Roles))
		for _, role := range filter.Roles {
			args = append(args, role+"%")
			prefixes = append(prefixes, fmt.Sprintf("r LIKE $%d", len(args)))
		}
		where = append(where, fmt.Sprintf("EXISTS (SELECT 1 FROM unnest(roles) AS r WHERE %s)", strings.Join(prefixes, " OR ")))
	}

	q := fmt.Sprintf(`SELECT %s FROM "user"`, userColumns)
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id"

	var rows []dbUser
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "filtering users")
	}
	return unpackUsers(rows), nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User, isActive *bool) (user.User, error) {
	set := make([]string, 0, 8)
	args := make([]interface{}, 0, 8)
	add := func(col string, val interface{}) {
		args = append(args, val)
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if usr.Name != "" {
		add("name", usr.Name)
	}
	if usr.Username != "" {
		add("username", usr.Username)
	}
	if usr.Email != "" {
		add("email", usr.Email)
	}
	if usr.Roles != nil {
		add("roles", pq.StringArray(usr.Roles))
	}
	if usr.PasswordHash != nil {
		add("password_hash", usr.PasswordHash)
	}
	if isActive != nil {
		add("is_active", *isActive)
	}
	if !usr.LastLogin.IsZero() {
		add("last_login", usr.LastLogin)
	}
	if !usr.UpdatedAt.IsZero() {
		add("updated_at", usr.UpdatedAt)
	}
	if len(set) == 0 {
		return repo.GetUserByID(ctx, usr.ID)
	}

	args = append(args, usr.ID)
	q := fmt.Sprintf(`UPDATE "user" SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(set, ", "), len(args), userColumns)

	var row dbUser
	if err := repo.db.GetContext(ctx, &row, q, args...); err != nil {
		return user.User{}, trapNoRowsErr(err, "updating user")
	}
	return row.unpack(), nil
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids ...int) error {
	if len(ids) == 0 {
		return nil
	}
	q, args, err := sqlx.In(`DELETE FROM "user" WHERE id IN (?)`, ids)
	if err != nil {
		return errors.Wrap(err, "deleting users")
	}
	if _, err = repo.db.ExecContext(ctx, repo.db.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return nil
}
