package repository

import (
	"context"
	"database/sql"
	"time"

	"media-tracker/internal/models"
	"media-tracker/internal/timeutil"
)

// UserRepository handles account rows
type UserRepository struct {
	db *DB
	c  conn
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db, c: db.conn()}
}

const userColumns = `pseudo, email, password_hash, created_at`

// Create inserts a user. A taken pseudo or email yields ErrDuplicateKey.
func (r *UserRepository) Create(ctx context.Context, u *models.User) error {
	now := timeutil.Now()
	if err := insertUser(ctx, r.c, u, now); err != nil {
		return err
	}
	u.CreatedAt = now
	return nil
}

// CreateWithDefaults inserts the user and its default lists in one
// transaction. Either everything is stored or nothing is.
func (r *UserRepository) CreateWithDefaults(ctx context.Context, u *models.User, listNames []string) ([]models.List, error) {
	now := timeutil.Now()
	lists := make([]models.List, 0, len(listNames))
	err := r.db.InTx(ctx, func(tx *sql.Tx) error {
		txc := r.c.withTx(tx)
		if err := insertUser(ctx, txc, u, now); err != nil {
			return err
		}
		listRepo := &ListRepository{db: r.db, c: txc}
		for _, name := range listNames {
			list := models.List{Name: name, OwnerID: u.Pseudo, IsDefault: true}
			if err := listRepo.create(ctx, txc, &list); err != nil {
				return err
			}
			lists = append(lists, list)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	u.CreatedAt = now
	return lists, nil
}

func insertUser(ctx context.Context, c conn, u *models.User, now time.Time) error {
	_, err := c.Exec(ctx, `
		INSERT INTO users (pseudo, email, password_hash, created_at) VALUES (?, ?, ?, ?)
	`, u.Pseudo, u.Email, u.PasswordHash, now)
	if err != nil {
		return insertErr(err, "user")
	}
	return nil
}

// GetByIdentifier finds a user by pseudo or email, nil when absent
func (r *UserRepository) GetByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	return scanUser(r.c.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE pseudo = ? OR email = ?
		ORDER BY CASE WHEN pseudo = ? THEN 0 ELSE 1 END
		LIMIT 1
	`, identifier, identifier, identifier))
}

// GetByPseudo finds a user by pseudo only, nil when absent
func (r *UserRepository) GetByPseudo(ctx context.Context, pseudo string) (*models.User, error) {
	return scanUser(r.c.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE pseudo = ?`, pseudo))
}

// PseudoOrEmailTaken reports whether either value is already registered.
func (r *UserRepository) PseudoOrEmailTaken(ctx context.Context, pseudo, email string) (bool, error) {
	return r.c.exists(ctx, `SELECT 1 FROM users WHERE pseudo = ? OR email = ?`, pseudo, email)
}

func scanUser(row *sql.Row) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(&u.Pseudo, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}
