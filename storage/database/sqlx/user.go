package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/telatku/telatku/core"
	"github.com/telatku/telatku/core/user"
)

type (
	userRepository struct {
		db *sqlx.DB
	}

	userRow struct {
		ID           string      `db:"id"`
		FullName     string      `db:"full_name"`
		Email        string      `db:"email"`
		Phone        null.String `db:"phone"`
		ClassID      null.String `db:"class_id"`
		PasswordHash []byte      `db:"password_hash"`
		IsActive     bool        `db:"is_active"`
		LastLogin    null.Time   `db:"last_login"`
		CreatedAt    time.Time   `db:"created_at"`
		UpdatedAt    time.Time   `db:"updated_at"`
		Role         null.String `db:"role"`
	}
)

var _ user.Repository = (*userRepository)(nil) // interface compliance check

var (
	userOrderColumns = map[string]string{
		"full_name":  "p.full_name",
		"email":      "p.email",
		"is_active":  "p.is_active",
		"created_at": "p.created_at",
		"last_login": "p.last_login",
	}
	userDefaultOrdering = []core.DBOrdering{{Field: "full_name", Ascending: true}}
)

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

func (row userRow) unboil() user.User {
	return user.User{
		ID:           row.ID,
		FullName:     row.FullName,
		Email:        row.Email,
		Phone:        row.Phone.String,
		ClassID:      row.ClassID.String,
		IsActive:     row.IsActive,
		Role:         user.Role(row.Role.String),
		PasswordHash: row.PasswordHash,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
		LastLogin:    row.LastLogin.Time.UTC(),
	}
}

func (repo *userRepository) selectUsers() sq.SelectBuilder {
	return psql.Select(
		"p.id", "p.full_name", "p.email", "p.phone", "p.class_id", "p.password_hash",
		"p.is_active", "p.last_login", "p.created_at", "p.updated_at", "r.role",
	).
		From("profiles p").
		LeftJoin("user_roles r ON r.user_id = p.id")
}

func (repo *userRepository) getUser(ctx context.Context, where sq.Sqlizer, msg string) (user.User, error) {
	var row userRow
	if err := get(ctx, getExec(ctx, repo.db), &row, repo.selectUsers().Where(where)); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, msg)
	}
	return row.unboil(), nil
}

func (repo *userRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedIDs ...string) error {
	query := psql.Select("1").From("profiles").Where(sq.Eq{"email": email})
	if len(excludedIDs) > 0 {
		query = query.Where(sq.NotEq{"id": excludedIDs})
	}
	found, err := exists(ctx, getExec(ctx, repo.db), query)
	if err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if found {
		return user.ErrEmailExists
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = uuid.New().String()
	exec := getExec(ctx, repo.db)

	query := psql.Insert("profiles").
		Columns("id", "full_name", "email", "phone", "class_id", "password_hash", "is_active", "created_at", "updated_at").
		Values(
			usr.ID, usr.FullName, usr.Email,
			null.NewString(usr.Phone, usr.Phone != ""),
			null.NewString(usr.ClassID, usr.ClassID != ""),
			usr.PasswordHash, usr.IsActive, usr.CreatedAt.UTC(), usr.UpdatedAt.UTC(),
		)
	if err := execAffected(ctx, exec, query, nil); err != nil {
		if pqCode(err) == pqUniqueViolation {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}

	if usr.Role != "" {
		if err := repo.SetRole(ctx, usr.ID, usr.Role); err != nil {
			return user.User{}, err
		}
	}
	return usr, nil
}

func (repo *userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	if !validID(id) {
		return user.User{}, user.ErrNotFound
	}
	return repo.getUser(ctx, sq.Eq{"p.id": id}, "finding user by ID")
}

func (repo *userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return repo.getUser(ctx, sq.Eq{"p.email": email}, "finding user by email")
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	query := repo.selectUsers()

	if filter != nil {
		if filter.Search != "" {
			val := likePattern(filter.Search)
			query = query.Where(sq.Or{sq.ILike{"p.full_name": val}, sq.ILike{"p.email": val}})
		}
		if len(filter.Roles) > 0 {
			query = query.Where(sq.Eq{"r.role": filter.Roles})
		}
		if filter.IsActive != nil {
			query = query.Where(sq.Eq{"p.is_active": *filter.IsActive})
		}
		if filter.ClassID != "" {
			if !validID(filter.ClassID) {
				return []user.User{}, nil
			}
			query = query.Where(sq.Eq{"p.class_id": filter.ClassID})
		}
	}
	query = query.OrderBy(orderBy(ordering, userOrderColumns, userDefaultOrdering)...)

	var rows []userRow
	if err := selectAll(ctx, getExec(ctx, repo.db), &rows, query); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}

	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.unboil())
	}
	return users, nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	if !validID(usr.ID) {
		return user.User{}, user.ErrNotFound
	}
	query := psql.Update("profiles").
		Set("full_name", usr.FullName).
		Set("email", usr.Email).
		Set("phone", null.NewString(usr.Phone, usr.Phone != "")).
		Set("class_id", null.NewString(usr.ClassID, usr.ClassID != "")).
		Set("password_hash", usr.PasswordHash).
		Set("is_active", usr.IsActive).
		Set("last_login", null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero())).
		Set("updated_at", usr.UpdatedAt.UTC()).
		Where(sq.Eq{"id": usr.ID})

	if err := execAffected(ctx, getExec(ctx, repo.db), query, user.ErrNotFound); err != nil {
		switch {
		case err == user.ErrNotFound:
			return user.User{}, err
		case pqCode(err) == pqUniqueViolation:
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	return repo.GetUserByID(ctx, usr.ID)
}

func (repo *userRepository) GetRole(ctx context.Context, userID string) (user.Role, error) {
	if !validID(userID) {
		return "", nil
	}
	var role string
	query := psql.Select("role").From("user_roles").Where(sq.Eq{"user_id": userID})
	if err := get(ctx, getExec(ctx, repo.db), &role, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", errors.Wrap(err, "finding user role")
	}
	return user.Role(role), nil
}

func (repo *userRepository) SetRole(ctx context.Context, userID string, role user.Role) error {
	if !validID(userID) {
		return user.ErrNotFound
	}
	query := psql.Insert("user_roles").
		Columns("id", "user_id", "role").
		Values(uuid.New().String(), userID, string(role)).
		Suffix("ON CONFLICT (user_id) DO UPDATE SET role = EXCLUDED.role")
	if err := execAffected(ctx, getExec(ctx, repo.db), query, nil); err != nil {
		if pqCode(err) == pqForeignKeyViolation {
			return user.ErrNotFound
		}
		return errors.Wrap(err, "setting user role")
	}
	return nil
}

func (repo *userRepository) ClearRole(ctx context.Context, userID string) error {
	if !validID(userID) {
		return nil
	}
	query := psql.Delete("user_roles").Where(sq.Eq{"user_id": userID})
	return errors.Wrap(execAffected(ctx, getExec(ctx, repo.db), query, nil), "clearing user role")
}
