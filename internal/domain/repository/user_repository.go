package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"preecode/internal/common"
	"preecode/internal/domain/model"
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	FindByProviderID(ctx context.Context, provider, providerID string) (*model.User, error)
	FindFirst(ctx context.Context) (*model.User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	UpdateProfile(ctx context.Context, user *model.User) error
	UpdatePassword(ctx context.Context, id, hashedPassword string) error
	UpdateNotificationPrefs(ctx context.Context, id string, prefs model.NotificationPrefs) error
	LinkProvider(ctx context.Context, id, provider, providerID, avatar string) error
	// ExtendEarlyAccess records the one-time share reward. It returns
	// common.ErrConflict if the user already shared.
	ExtendEarlyAccess(ctx context.Context, id string, until time.Time, badge string, sharedAt time.Time) error
	Delete(ctx context.Context, id string) error
	GetAggregate(ctx context.Context, id string) (model.UserAggregate, error)
}

const userColumns = `id, name, username, email, hashed_password, provider, provider_id, avatar,
	total_solved, easy_solved, medium_solved, hard_solved, notification_prefs,
	early_access_until, founding_badge_level, shared_at, created_at, updated_at`

type pgUserRepository struct {
	db *sql.DB
}

func NewPgUserRepository(db *sql.DB) UserRepository {
	return &pgUserRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	user := &model.User{}
	var hashed sql.NullString
	var prefs []byte
	err := row.Scan(
		&user.ID, &user.Name, &user.Username, &user.Email, &hashed, &user.Provider, &user.ProviderID, &user.Avatar,
		&user.TotalSolved, &user.EasySolved, &user.MediumSolved, &user.HardSolved, &prefs,
		&user.EarlyAccessUntil, &user.FoundingBadgeLevel, &user.SharedAt, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.HashedPassword = hashed.String
	user.NotificationPrefs = model.DefaultNotificationPrefs()
	if len(prefs) > 0 {
		// Missing keys keep their defaults.
		_ = json.Unmarshal(prefs, &user.NotificationPrefs)
	}
	return user, nil
}

func (r *pgUserRepository) findOne(ctx context.Context, op, where string, args ...any) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ` + where
	user, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgUserRepository.%s: %w", op, err)
	}
	return user, nil
}

func (r *pgUserRepository) Create(ctx context.Context, user *model.User) error {
	prefs, err := json.Marshal(user.NotificationPrefs)
	if err != nil {
		return fmt.Errorf("pgUserRepository.Create: %w", err)
	}
	var hashed *string
	if user.HashedPassword != "" {
		hashed = &user.HashedPassword
	}
	if user.Provider == "" {
		user.Provider = model.ProviderLocal
	}

	query := `INSERT INTO users (id, name, username, email, hashed_password, provider, provider_id, avatar,
	              notification_prefs, early_access_until)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10)
	          RETURNING created_at, updated_at`
	err = r.db.QueryRowContext(ctx, query,
		user.ID, user.Name, user.Username, user.Email, hashed, user.Provider, user.ProviderID, user.Avatar,
		string(prefs), user.EarlyAccessUntil,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // Unique constraint violation
			return fmt.Errorf("user with given username or email already exists: %w", common.ErrConflict)
		}
		return fmt.Errorf("pgUserRepository.Create: %w", err)
	}
	return nil
}

func (r *pgUserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.findOne(ctx, "FindByID", `WHERE id = $1`, id)
}

func (r *pgUserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, "FindByEmail", `WHERE lower(email) = lower($1)`, email)
}

func (r *pgUserRepository) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.findOne(ctx, "FindByUsername", `WHERE username = $1`, username)
}

func (r *pgUserRepository) FindByProviderID(ctx context.Context, provider, providerID string) (*model.User, error) {
	return r.findOne(ctx, "FindByProviderID", `WHERE provider = $1 AND provider_id = $2`, provider, providerID)
}

func (r *pgUserRepository) FindFirst(ctx context.Context) (*model.User, error) {
	return r.findOne(ctx, "FindFirst", `ORDER BY created_at ASC LIMIT 1`)
}

func (r *pgUserRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("pgUserRepository.UsernameExists: %w", err)
	}
	return exists, nil
}

func (r *pgUserRepository) UpdateProfile(ctx context.Context, user *model.User) error {
	query := `UPDATE users SET name = $2, username = $3, avatar = $4, updated_at = now()
	          WHERE id = $1 RETURNING updated_at`
	err := r.db.QueryRowContext(ctx, query, user.ID, user.Name, user.Username, user.Avatar).Scan(&user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("username already taken: %w", common.ErrConflict)
		}
		return fmt.Errorf("pgUserRepository.UpdateProfile: %w", err)
	}
	return nil
}

func (r *pgUserRepository) UpdatePassword(ctx context.Context, id, hashedPassword string) error {
	return r.execOne(ctx, "UpdatePassword",
		`UPDATE users SET hashed_password = $2, updated_at = now() WHERE id = $1`, id, hashedPassword)
}

func (r *pgUserRepository) UpdateNotificationPrefs(ctx context.Context, id string, prefs model.NotificationPrefs) error {
	raw, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("pgUserRepository.UpdateNotificationPrefs: %w", err)
	}
	return r.execOne(ctx, "UpdateNotificationPrefs",
		`UPDATE users SET notification_prefs = $2::jsonb, updated_at = now() WHERE id = $1`, id, string(raw))
}

func (r *pgUserRepository) LinkProvider(ctx context.Context, id, provider, providerID, avatar string) error {
	return r.execOne(ctx, "LinkProvider",
		`UPDATE users SET provider = $2, provider_id = $3,
		     avatar = CASE WHEN avatar = '' THEN $4 ELSE avatar END, updated_at = now()
		 WHERE id = $1`, id, provider, providerID, avatar)
}

func (r *pgUserRepository) ExtendEarlyAccess(ctx context.Context, id string, until time.Time, badge string, sharedAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET early_access_until = $2, founding_badge_level = $3, shared_at = $4, updated_at = now()
		 WHERE id = $1 AND shared_at IS NULL`, id, until, badge, sharedAt)
	if err != nil {
		return fmt.Errorf("pgUserRepository.ExtendEarlyAccess: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("pgUserRepository.ExtendEarlyAccess: %w", err)
	}
	if n == 0 {
		if _, err := r.FindByID(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("share already recorded: %w", common.ErrConflict)
	}
	return nil
}

func (r *pgUserRepository) Delete(ctx context.Context, id string) error {
	// submissions and practice_sessions cascade.
	return r.execOne(ctx, "Delete", `DELETE FROM users WHERE id = $1`, id)
}

func (r *pgUserRepository) GetAggregate(ctx context.Context, id string) (model.UserAggregate, error) {
	var agg model.UserAggregate
	err := r.db.QueryRowContext(ctx,
		`SELECT total_solved, easy_solved, medium_solved, hard_solved FROM users WHERE id = $1`, id,
	).Scan(&agg.TotalSolved, &agg.EasySolved, &agg.MediumSolved, &agg.HardSolved)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return agg, common.ErrNotFound
		}
		return agg, fmt.Errorf("pgUserRepository.GetAggregate: %w", err)
	}
	return agg, nil
}

func (r *pgUserRepository) execOne(ctx context.Context, op, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("pgUserRepository.%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("pgUserRepository.%s: %w", op, err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}
