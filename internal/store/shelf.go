package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/readshelf/apiserver/types"
)

const shelfSelect = `
		SELECT s.id, s.user_id, s.book_id, s.status, s.rating, s.review, s.created_at, s.updated_at,
		       b.id, b.title, b.author, b.isbn, b.description, b.cover_url, b.created_at, b.updated_at
		FROM shelf_items s
		JOIN books b ON b.id = s.book_id`

// ShelfRepository handles persistence for shelf items.
type ShelfRepository struct {
	db *sql.DB
}

func NewShelfRepository(db *sql.DB) *ShelfRepository {
	return &ShelfRepository{db: db}
}

func scanShelfItem(row interface{ Scan(...any) error }) (types.ShelfItem, error) {
	var item types.ShelfItem
	var book types.Book
	err := row.Scan(
		&item.ID,
		&item.UserID,
		&item.BookID,
		&item.Status,
		&item.Rating,
		&item.Review,
		&item.CreatedAt,
		&item.UpdatedAt,
		&book.ID,
		&book.Title,
		&book.Author,
		&book.ISBN,
		&book.Description,
		&book.CoverURL,
		&book.CreatedAt,
		&book.UpdatedAt,
	)
	if err != nil {
		return types.ShelfItem{}, err
	}
	item.Book = &book
	return item, nil
}

// ListByUser returns the user's shelf with each book loaded.
func (r *ShelfRepository) ListByUser(ctx context.Context, userID int) ([]types.ShelfItem, error) {
	query := shelfSelect + ` WHERE s.user_id = $1 ORDER BY s.id`
	rows, err := conn(ctx, r.db).QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]types.ShelfItem, 0)
	for rows.Next() {
		item, err := scanShelfItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *ShelfRepository) Get(ctx context.Context, id int) (types.ShelfItem, error) {
	query := shelfSelect + ` WHERE s.id = $1`
	item, err := scanShelfItem(conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		return types.ShelfItem{}, translate(err)
	}
	return item, nil
}

// Exists reports whether userID already shelved bookID.
func (r *ShelfRepository) Exists(ctx context.Context, userID, bookID int) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM shelf_items WHERE user_id = $1 AND book_id = $2)`
	var exists bool
	err := conn(ctx, r.db).QueryRowContext(ctx, query, userID, bookID).Scan(&exists)
	return exists, err
}

func (r *ShelfRepository) Create(ctx context.Context, item types.ShelfItem) (types.ShelfItem, error) {
	now := time.Now()
	item.CreatedAt = now
	item.UpdatedAt = now
	if item.Status == "" {
		item.Status = types.StatusPlanToRead
	}

	const query = `
		INSERT INTO shelf_items (user_id, book_id, status, rating, review, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	if err := conn(ctx, r.db).QueryRowContext(
		ctx,
		query,
		item.UserID,
		item.BookID,
		item.Status,
		item.Rating,
		item.Review,
		item.CreatedAt,
		item.UpdatedAt,
	).Scan(&item.ID); err != nil {
		return types.ShelfItem{}, translate(err)
	}
	return item, nil
}

func (r *ShelfRepository) Update(ctx context.Context, item types.ShelfItem) (types.ShelfItem, error) {
	item.UpdatedAt = time.Now()

	const query = `
		UPDATE shelf_items
		SET status = $1,
			rating = $2,
			review = $3,
			updated_at = $4
		WHERE id = $5`
	result, err := conn(ctx, r.db).ExecContext(
		ctx,
		query,
		item.Status,
		item.Rating,
		item.Review,
		item.UpdatedAt,
		item.ID,
	)
	if err != nil {
		return types.ShelfItem{}, translate(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.ShelfItem{}, err
	}
	if affected == 0 {
		return types.ShelfItem{}, ErrNotFound
	}
	return item, nil
}

func (r *ShelfRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM shelf_items WHERE id = $1`
	result, err := conn(ctx, r.db).ExecContext(ctx, query, id)
	if err != nil {
		return translate(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
