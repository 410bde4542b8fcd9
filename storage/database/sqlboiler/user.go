package boiledrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/boil"
	"github.com/volatiletech/sqlboiler/v4/queries"
	"github.com/volatiletech/sqlboiler/v4/types"
	"github.com/volatiletech/strmangle"

	"github.com/trezcool/miescuela/core"
	"github.com/trezcool/miescuela/core/user"
	"github.com/trezcool/miescuela/storage/database"
)

var userColumns = []string{
	"id", "name", "username", "email", "is_active", "roles", "password_hash", "created_at", "updated_at", "last_login",
}

// userRow is the "user" table row as bound by sqlboiler.
type userRow struct {
	ID           string            `boil:"id"`
	Name         null.String       `boil:"name"`
	Username     null.String       `boil:"username"`
	Email        null.String       `boil:"email"`
	IsActive     null.Bool         `boil:"is_active"`
	Roles        types.StringArray `boil:"roles"`
	PasswordHash null.Bytes        `boil:"password_hash"`
	CreatedAt    null.Time         `boil:"created_at"`
	UpdatedAt    null.Time         `boil:"updated_at"`
	LastLogin    null.Time         `boil:"last_login"`
}

func (r *userRow) values() []interface{} {
	return []interface{}{
		r.ID, r.Name, r.Username, r.Email, r.IsActive, r.Roles, r.PasswordHash, r.CreatedAt, r.UpdatedAt, r.LastLogin,
	}
}

type userRepository struct {
	exec core.DBExecutor
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) *userRepository {
	return &userRepository{exec: exec}
}

func (repo userRepository) getExec(svcExec []core.DBExecutor) boil.ContextExecutor {
	exec := repo.exec
	if len(svcExec) > 0 {
		exec = svcExec[0]
	}
	// *sql.DB and *sql.Tx implement both
	return exec.(boil.ContextExecutor)
}

func (repo userRepository) boil(usr user.User) *userRow {
	return &userRow{
		ID:           usr.ID,
		Name:         null.NewString(usr.Name, usr.Name != ""),
		Username:     null.NewString(usr.Username, usr.Username != ""),
		Email:        null.NewString(usr.Email, usr.Email != ""),
		IsActive:     null.BoolFromPtr(usr.IsActive),
		Roles:        types.StringArray(usr.Roles),
		PasswordHash: null.NewBytes(usr.PasswordHash, usr.PasswordHash != nil),
		CreatedAt:    null.NewTime(usr.CreatedAt.UTC(), !usr.CreatedAt.IsZero()),
		UpdatedAt:    null.NewTime(usr.UpdatedAt.UTC(), !usr.UpdatedAt.IsZero()),
		LastLogin:    null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

func (repo userRepository) unboil(usr *userRow) user.User {
	if usr == nil {
		return user.User{}
	}
	return user.User{
		ID:           usr.ID,
		Name:         usr.Name.String,
		Username:     usr.Username.String,
		Email:        usr.Email.String,
		IsActive:     usr.IsActive.Ptr(),
		Roles:        []string(usr.Roles),
		PasswordHash: usr.PasswordHash.Bytes,
		CreatedAt:    usr.CreatedAt.Time,
		UpdatedAt:    usr.UpdatedAt.Time,
		LastLogin:    usr.LastLogin.Time,
	}
}

// trapNoRowsErr maps psql "no rows" err to user.ErrNotFound
func (repo userRepository) trapNoRowsErr(err error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return user.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	if username == "" && email == "" {
		return nil
	}
	q := `SELECT EXISTS (SELECT 1 FROM "user" WHERE (("username" = $1 AND $1 <> '') OR ("email" = $2 AND $2 <> ''))`
	args := []interface{}{username, email}
	if len(excludedUsers) > 0 {
		q += ` AND "id" NOT IN (` + strmangle.Placeholders(true, len(excludedUsers), 3, 1) + `)`
		for _, u := range excludedUsers {
			args = append(args, u.ID)
		}
	}
	q += `)`

	var res struct {
		Exists bool `boil:"exists"`
	}
	if err := queries.Raw(q, args...).Bind(ctx, repo.getExec(exec), &res); err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	if res.Exists {
		return user.ErrUserExists
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	if usr.ID == "" {
		usr.ID = uuid.NewString()
	}
	if usr.IsActive == nil {
		usr.SetActive(true)
	}
	u := repo.boil(usr)

	q := fmt.Sprintf(`INSERT INTO "user" (%s) VALUES (%s)`,
		strings.Join(strmangle.IdentQuoteSlice('"', '"', userColumns), ", "),
		strmangle.Placeholders(true, len(userColumns), 1, 1),
	)
	if _, err := queries.Raw(q, u.values()...).ExecContext(ctx, repo.getExec(exec)); err != nil {
		if database.IsUniqueViolation(err) {
			return user.User{}, user.ErrUserExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return repo.unboil(u), nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	var (
		where string
		args  []interface{}
	)
	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return user.User{}, user.ErrNotFound
		}
		where, args = `"id" = $1`, []interface{}{filter.ID}
	case filter.Username != "":
		where, args = `"username" = $1`, []interface{}{filter.Username}
	case filter.Email != "":
		where, args = `"email" = $1`, []interface{}{filter.Email}
	case len(filter.UsernameOrEmail) > 0:
		var email string
		uname := filter.UsernameOrEmail[0]
		if len(filter.UsernameOrEmail) == 2 {
			email = filter.UsernameOrEmail[1]
		}
		if email == "" {
			email = uname
		} else if uname == "" {
			uname = email
		}
		if uname == "" {
			return user.User{}, user.ErrNotFound
		}
		where, args = `"username" = $1 OR "email" = $2`, []interface{}{uname, email}
	default:
		return user.User{}, user.ErrNotFound
	}

	q := fmt.Sprintf(`SELECT %s FROM "user" WHERE %s LIMIT 1`,
		strings.Join(strmangle.IdentQuoteSlice('"', '"', userColumns), ", "), where)
	var usr userRow
	if err := queries.Raw(q, args...).Bind(ctx, repo.getExec(exec), &usr); err != nil {
		return user.User{}, repo.trapNoRowsErr(err, "finding user")
	}
	return repo.unboil(&usr), nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	if usr.UpdatedAt.IsZero() {
		usr.UpdatedAt = time.Now().UTC()
	}
	u := repo.boil(usr)

	sets := make([]string, 0, len(userColumns)-1)
	for i, col := range userColumns[1:] {
		sets = append(sets, fmt.Sprintf(`"%s" = $%d`, col, i+2))
	}
	q := fmt.Sprintf(`UPDATE "user" SET %s WHERE "id" = $1`, strings.Join(sets, ", "))

	res, err := queries.Raw(q, u.values()...).ExecContext(ctx, repo.getExec(exec))
	if err != nil {
		if database.IsUniqueViolation(err) {
			return user.User{}, user.ErrUserExists
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.unboil(u), nil
}

func (repo userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	if usr.ID == "" {
		return repo.CreateUser(ctx, usr, exec...)
	}
	return repo.UpdateUser(ctx, usr, exec...)
}
