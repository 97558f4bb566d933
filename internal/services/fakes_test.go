package services

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/readshelf/apiserver/internal/apperr"
	"github.com/readshelf/apiserver/internal/storage"
	"github.com/readshelf/apiserver/types"
)

type passthroughTx struct {
	calls int
}

func (t *passthroughTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	return fn(ctx)
}

type memUsers struct {
	mu     sync.Mutex
	nextID int
	rows   map[int]types.User
	shelf  map[int]int
}

func newMemUsers(seed ...types.User) *memUsers {
	m := &memUsers{rows: make(map[int]types.User), shelf: make(map[int]int)}
	for _, u := range seed {
		if u.ID > m.nextID {
			m.nextID = u.ID
		}
		m.rows[u.ID] = u
	}
	return m
}

func (m *memUsers) List(_ context.Context, offset, limit int) ([]types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int, 0, len(m.rows))
	for id := range m.rows {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]types.User, 0)
	for i, id := range ids {
		if i < offset || len(out) >= limit {
			continue
		}
		out = append(out, m.rows[id])
	}
	return out, nil
}

func (m *memUsers) GetByID(_ context.Context, id int) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.rows[id]
	if !ok {
		return types.User{}, apperr.ErrNotFound
	}
	return u, nil
}

func (m *memUsers) GetByUsername(_ context.Context, username string) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.rows {
		if u.Username == username {
			return u, nil
		}
	}
	return types.User{}, apperr.ErrNotFound
}

func (m *memUsers) UsernameTaken(_ context.Context, username string, excludeID int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.rows {
		if u.Username == username && u.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memUsers) EmailTaken(_ context.Context, email string, excludeID int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.rows {
		if u.Email == email && u.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memUsers) Create(_ context.Context, user types.User) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.rows {
		if u.Username == user.Username {
			return types.User{}, apperr.New(apperr.ErrConflict, "Username already registered")
		}
	}
	m.nextID++
	user.ID = m.nextID
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	m.rows[user.ID] = user
	return user, nil
}

func (m *memUsers) Update(_ context.Context, user types.User) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[user.ID]; !ok {
		return types.User{}, apperr.ErrNotFound
	}
	m.rows[user.ID] = user
	return user, nil
}

func (m *memUsers) Delete(_ context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return apperr.ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

func (m *memUsers) DeleteShelfItems(_ context.Context, userID int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.shelf[userID]
	delete(m.shelf, userID)
	return int64(n), nil
}

type memBooks struct {
	mu     sync.Mutex
	nextID int
	rows   map[int]types.Book
}

func newMemBooks(seed ...types.Book) *memBooks {
	m := &memBooks{rows: make(map[int]types.Book)}
	for _, b := range seed {
		if b.ID > m.nextID {
			m.nextID = b.ID
		}
		m.rows[b.ID] = b
	}
	return m
}

func (m *memBooks) List(_ context.Context, offset, limit int) ([]types.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int, 0, len(m.rows))
	for id := range m.rows {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]types.Book, 0)
	for i, id := range ids {
		if i < offset || len(out) >= limit {
			continue
		}
		out = append(out, m.rows[id])
	}
	return out, nil
}

func (m *memBooks) Get(_ context.Context, id int) (types.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.rows[id]
	if !ok {
		return types.Book{}, apperr.ErrNotFound
	}
	return b, nil
}

func (m *memBooks) GetByISBN(_ context.Context, isbn string) (types.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.rows {
		if b.ISBN != nil && *b.ISBN == isbn {
			return b, nil
		}
	}
	return types.Book{}, apperr.ErrNotFound
}

func (m *memBooks) Create(_ context.Context, book types.Book) (types.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if book.ISBN != nil {
		for _, b := range m.rows {
			if b.ISBN != nil && *b.ISBN == *book.ISBN {
				return types.Book{}, apperr.New(apperr.ErrConflict, "A book with this ISBN already exists")
			}
		}
	}
	m.nextID++
	book.ID = m.nextID
	m.rows[book.ID] = book
	return book, nil
}

func (m *memBooks) Update(_ context.Context, book types.Book) (types.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[book.ID]; !ok {
		return types.Book{}, apperr.ErrNotFound
	}
	m.rows[book.ID] = book
	return book, nil
}

func (m *memBooks) Delete(_ context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return apperr.ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

type memShelf struct {
	mu     sync.Mutex
	nextID int
	rows   map[int]types.ShelfItem
	books  *memBooks
}

func newMemShelf(books *memBooks) *memShelf {
	return &memShelf{rows: make(map[int]types.ShelfItem), books: books}
}

func (m *memShelf) withBook(item types.ShelfItem) types.ShelfItem {
	if b, err := m.books.Get(context.Background(), item.BookID); err == nil {
		item.Book = &b
	}
	return item
}

func (m *memShelf) ListByUser(_ context.Context, userID int) ([]types.ShelfItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.ShelfItem, 0)
	for _, item := range m.rows {
		if item.UserID == userID {
			out = append(out, m.withBook(item))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memShelf) Get(_ context.Context, id int) (types.ShelfItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.rows[id]
	if !ok {
		return types.ShelfItem{}, apperr.ErrNotFound
	}
	return m.withBook(item), nil
}

func (m *memShelf) Exists(_ context.Context, userID, bookID int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range m.rows {
		if item.UserID == userID && item.BookID == bookID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memShelf) Create(_ context.Context, item types.ShelfItem) (types.ShelfItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.rows {
		if existing.UserID == item.UserID && existing.BookID == item.BookID {
			return types.ShelfItem{}, apperr.New(apperr.ErrConflict, "Book already on your shelf")
		}
	}
	m.nextID++
	item.ID = m.nextID
	item.Book = nil
	m.rows[item.ID] = item
	return item, nil
}

func (m *memShelf) Update(_ context.Context, item types.ShelfItem) (types.ShelfItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[item.ID]; !ok {
		return types.ShelfItem{}, apperr.ErrNotFound
	}
	item.Book = nil
	m.rows[item.ID] = item
	return item, nil
}

func (m *memShelf) Delete(_ context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return apperr.ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

type stubLookup struct {
	mu    sync.Mutex
	calls int
	isbns []string
	book  types.Book
	err   error
}

func (s *stubLookup) LookupISBN(_ context.Context, isbn string) (types.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.isbns = append(s.isbns, isbn)
	if s.err != nil {
		return types.Book{}, s.err
	}
	return s.book, nil
}

type stubCovers struct {
	objects map[string][]byte
	deleted []string
	putErr  error
}

func newStubCovers() *stubCovers {
	return &stubCovers{objects: make(map[string][]byte)}
}

func (c *stubCovers) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	if c.putErr != nil {
		return c.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	c.objects[key] = data
	return nil
}

func (c *stubCovers) Get(_ context.Context, key string) (storage.Object, error) {
	data, ok := c.objects[key]
	if !ok {
		return storage.Object{}, storage.ErrObjectNotFound
	}
	return storage.Object{Body: io.NopCloser(bytes.NewReader(data)), ContentType: "image/jpeg", Size: int64(len(data))}, nil
}

func (c *stubCovers) Delete(_ context.Context, key string) error {
	c.deleted = append(c.deleted, key)
	delete(c.objects, key)
	return nil
}

type stubFetcher struct {
	calls int
	err   error
}

func (f *stubFetcher) FetchCover(_ context.Context, _ string) (io.ReadCloser, string, int64, error) {
	f.calls++
	if f.err != nil {
		return nil, "", 0, f.err
	}
	return io.NopCloser(bytes.NewReader([]byte("jpeg"))), "image/jpeg", 4, nil
}

type recordedEvents struct {
	cached  []types.Book
	deleted []types.Book
}

func (e *recordedEvents) BookCached(_ context.Context, book types.Book)  { e.cached = append(e.cached, book) }
func (e *recordedEvents) BookDeleted(_ context.Context, book types.Book) { e.deleted = append(e.deleted, book) }

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }
