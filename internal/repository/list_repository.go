package repository

import (
	"context"
	"database/sql"
	"fmt"

	"media-tracker/internal/models"
	"media-tracker/internal/timeutil"
)

// ListRepository handles List database operations
type ListRepository struct {
	db *DB
	c  conn
}

// NewListRepository creates a new ListRepository
func NewListRepository(db *DB) *ListRepository {
	return &ListRepository{db: db, c: db.conn()}
}

const listColumns = `id, name, owner_id, is_default, created_at`

// Create inserts a new list and fills in its ID and CreatedAt
func (r *ListRepository) Create(ctx context.Context, list *models.List) error {
	return r.create(ctx, r.c, list)
}

func (r *ListRepository) create(ctx context.Context, c conn, list *models.List) error {
	now := timeutil.Now()
	err := c.QueryRow(ctx, `
		INSERT INTO lists (name, owner_id, is_default, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING id
	`, list.Name, list.OwnerID, list.IsDefault, now).Scan(&list.ID)
	if err != nil {
		return fmt.Errorf("failed to create list: %w", err)
	}
	list.CreatedAt = now
	return nil
}

// CreateDefaults creates every default list for owner in one transaction.
func (r *ListRepository) CreateDefaults(ctx context.Context, ownerID string, names []string) ([]models.List, error) {
	lists := make([]models.List, 0, len(names))
	err := r.db.InTx(ctx, func(tx *sql.Tx) error {
		txc := r.c.withTx(tx)
		for _, name := range names {
			list := models.List{Name: name, OwnerID: ownerID, IsDefault: true}
			if err := r.create(ctx, txc, &list); err != nil {
				return err
			}
			lists = append(lists, list)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lists, nil
}

// GetByID retrieves a list by its ID, nil when absent
func (r *ListRepository) GetByID(ctx context.Context, id int64) (*models.List, error) {
	return scanList(r.c.QueryRow(ctx, `SELECT `+listColumns+` FROM lists WHERE id = ?`, id))
}

// GetByIDAndOwner retrieves a list only if owner owns it, nil otherwise
func (r *ListRepository) GetByIDAndOwner(ctx context.Context, id int64, ownerID string) (*models.List, error) {
	return scanList(r.c.QueryRow(ctx, `
		SELECT `+listColumns+` FROM lists WHERE id = ? AND owner_id = ?
	`, id, ownerID))
}

// GetByOwner retrieves every list of owner, oldest first
func (r *ListRepository) GetByOwner(ctx context.Context, ownerID string) ([]models.List, error) {
	rows, err := r.c.Query(ctx, `
		SELECT `+listColumns+` FROM lists WHERE owner_id = ? ORDER BY id
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lists := []models.List{}
	for rows.Next() {
		var l models.List
		if err := rows.Scan(&l.ID, &l.Name, &l.OwnerID, &l.IsDefault, &l.CreatedAt); err != nil {
			return nil, err
		}
		lists = append(lists, l)
	}
	return lists, rows.Err()
}

// Rename updates the list name. Returns ErrNotFound if no list has that id.
func (r *ListRepository) Rename(ctx context.Context, id int64, name string) error {
	res, err := r.c.Exec(ctx, `UPDATE lists SET name = ? WHERE id = ?`, name, id)
	changed, err := affected(res, err)
	if err != nil {
		return fmt.Errorf("failed to rename list: %w", err)
	}
	if !changed {
		return ErrNotFound
	}
	return nil
}

// DeleteCascade removes every film, series and episode membership of the list
// and then the list itself, all in one transaction.
func (r *ListRepository) DeleteCascade(ctx context.Context, id int64) error {
	return r.db.InTx(ctx, func(tx *sql.Tx) error {
		txc := r.c.withTx(tx)
		members := &MembershipRepository{c: txc}
		if err := members.ClearEpisodes(ctx, id); err != nil {
			return err
		}
		if err := members.ClearFilms(ctx, id); err != nil {
			return err
		}
		if err := members.ClearSeries(ctx, id); err != nil {
			return err
		}

		res, err := txc.Exec(ctx, `DELETE FROM lists WHERE id = ?`, id)
		deleted, err := affected(res, err)
		if err != nil {
			return fmt.Errorf("failed to delete list: %w", err)
		}
		if !deleted {
			return ErrNotFound
		}
		return nil
	})
}

func scanList(row *sql.Row) (*models.List, error) {
	l := &models.List{}
	err := row.Scan(&l.ID, &l.Name, &l.OwnerID, &l.IsDefault, &l.CreatedAt)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}
