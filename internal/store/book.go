package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/readshelf/apiserver/types"
)

const bookColumns = `id, title, author, isbn, description, cover_url, created_at, updated_at`

// BookRepository handles persistence for the catalog. The isbn unique
// constraint doubles as the key of the ISBN lookup cache.
type BookRepository struct {
	db *sql.DB
}

func NewBookRepository(db *sql.DB) *BookRepository {
	return &BookRepository{db: db}
}

func scanBook(row interface{ Scan(...any) error }) (types.Book, error) {
	var book types.Book
	err := row.Scan(
		&book.ID,
		&book.Title,
		&book.Author,
		&book.ISBN,
		&book.Description,
		&book.CoverURL,
		&book.CreatedAt,
		&book.UpdatedAt,
	)
	return book, err
}

func (r *BookRepository) List(ctx context.Context, offset, limit int) ([]types.Book, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 100
	}

	query := `SELECT ` + bookColumns + ` FROM books ORDER BY id OFFSET $1 LIMIT $2`
	rows, err := conn(ctx, r.db).QueryContext(ctx, query, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	books := make([]types.Book, 0)
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return books, nil
}

func (r *BookRepository) Get(ctx context.Context, id int) (types.Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE id = $1`
	book, err := scanBook(conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		return types.Book{}, translate(err)
	}
	return book, nil
}

func (r *BookRepository) GetByISBN(ctx context.Context, isbn string) (types.Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE isbn = $1`
	book, err := scanBook(conn(ctx, r.db).QueryRowContext(ctx, query, isbn))
	if err != nil {
		return types.Book{}, translate(err)
	}
	return book, nil
}

func (r *BookRepository) Create(ctx context.Context, book types.Book) (types.Book, error) {
	now := time.Now()
	book.CreatedAt = now
	book.UpdatedAt = now

	const query = `
		INSERT INTO books (title, author, isbn, description, cover_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	if err := conn(ctx, r.db).QueryRowContext(
		ctx,
		query,
		book.Title,
		book.Author,
		book.ISBN,
		book.Description,
		book.CoverURL,
		book.CreatedAt,
		book.UpdatedAt,
	).Scan(&book.ID); err != nil {
		return types.Book{}, translate(err)
	}
	return book, nil
}

func (r *BookRepository) Update(ctx context.Context, book types.Book) (types.Book, error) {
	book.UpdatedAt = time.Now()

	const query = `
		UPDATE books
		SET title = $1,
			author = $2,
			isbn = $3,
			description = $4,
			cover_url = $5,
			updated_at = $6
		WHERE id = $7
		RETURNING created_at`
	err := conn(ctx, r.db).QueryRowContext(
		ctx,
		query,
		book.Title,
		book.Author,
		book.ISBN,
		book.Description,
		book.CoverURL,
		book.UpdatedAt,
		book.ID,
	).Scan(&book.CreatedAt)
	if err != nil {
		return types.Book{}, translate(err)
	}
	return book, nil
}

// Delete removes the book and, through ON DELETE CASCADE, the shelf items
// that reference it.
func (r *BookRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM books WHERE id = $1`
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
