package openlibrary

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/readshelf/apiserver/config"
	"github.com/readshelf/apiserver/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOpenLibrary struct {
	editionCalls atomic.Int32
	authorCalls  atomic.Int32
	edition      func(w http.ResponseWriter, r *http.Request)
	author       func(w http.ResponseWriter, r *http.Request)
}

func (f *fakeOpenLibrary) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case len(r.URL.Path) > 6 && r.URL.Path[:6] == "/isbn/":
		f.editionCalls.Add(1)
		f.edition(w, r)
	case len(r.URL.Path) > 9 && r.URL.Path[:9] == "/authors/":
		f.authorCalls.Add(1)
		if f.author == nil {
			http.NotFound(w, r)
			return
		}
		f.author(w, r)
	default:
		http.NotFound(w, r)
	}
}

func jsonBody(body string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}
}

func newTestClient(t *testing.T, fake *fakeOpenLibrary, timeout, authorTimeout time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return NewClient(config.OpenLibraryConfig{
		BaseURL:       srv.URL,
		CoversURL:     "https://covers.example",
		Timeout:       timeout,
		AuthorTimeout: authorTimeout,
	})
}

const foxEdition = `{
	"title": "Fantastic Mr Fox",
	"authors": [{"key": "/authors/OL34184A"}],
	"description": {"type": "/type/text", "value": "A clever fox."},
	"covers": [8739161]
}`

func TestLookupISBNResolvesAuthor(t *testing.T) {
	fake := &fakeOpenLibrary{
		edition: jsonBody(foxEdition),
		author: func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/authors/OL34184A.json", r.URL.Path)
			jsonBody(`{"name": "Roald Dahl"}`)(w, r)
		},
	}
	client := newTestClient(t, fake, time.Second, time.Second)

	book, err := client.LookupISBN(context.Background(), "9780140328721")
	require.NoError(t, err)

	assert.Equal(t, "Fantastic Mr Fox", book.Title)
	assert.Equal(t, "Roald Dahl", book.Author)
	require.NotNil(t, book.ISBN)
	assert.Equal(t, "9780140328721", *book.ISBN)
	require.NotNil(t, book.Description)
	assert.Equal(t, "A clever fox.", *book.Description)
	require.NotNil(t, book.CoverURL)
	assert.Equal(t, "https://covers.example/b/id/8739161-L.jpg", *book.CoverURL)
	assert.EqualValues(t, 1, fake.editionCalls.Load())
	assert.EqualValues(t, 1, fake.authorCalls.Load())
}

func TestLookupISBNAuthorFailureIsSwallowed(t *testing.T) {
	tests := []struct {
		name   string
		author func(w http.ResponseWriter, r *http.Request)
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"not found", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}},
		{"bad json", jsonBody(`{"name":`)},
		{"timeout", func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeOpenLibrary{edition: jsonBody(foxEdition), author: tt.author}
			client := newTestClient(t, fake, 3*time.Second, 50*time.Millisecond)

			book, err := client.LookupISBN(context.Background(), "9780140328721")
			require.NoError(t, err)
			assert.Equal(t, UnknownAuthor, book.Author)
			assert.Equal(t, "Fantastic Mr Fox", book.Title)
		})
	}
}

func TestLookupISBNPlainAuthor(t *testing.T) {
	fake := &fakeOpenLibrary{edition: jsonBody(`{"title": "Dune", "authors": ["Frank Herbert"]}`)}
	client := newTestClient(t, fake, time.Second, time.Second)

	book, err := client.LookupISBN(context.Background(), "0441013597")
	require.NoError(t, err)
	assert.Equal(t, "Frank Herbert", book.Author)
	assert.Nil(t, book.CoverURL)
	assert.EqualValues(t, 0, fake.authorCalls.Load())
}

func TestLookupISBNUpstreamFailures(t *testing.T) {
	tests := []struct {
		name    string
		edition func(w http.ResponseWriter, r *http.Request)
		want    error
	}{
		{"not found", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}, apperr.ErrNotFound},
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}, apperr.ErrUpstream},
		{"bad json", jsonBody(`not json`), apperr.ErrUpstream},
		{"timeout", func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}, apperr.ErrUpstreamTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeOpenLibrary{edition: tt.edition, author: jsonBody(`{"name": "X"}`)}
			client := newTestClient(t, fake, 50*time.Millisecond, time.Second)

			_, err := client.LookupISBN(context.Background(), "123")
			assert.ErrorIs(t, err, tt.want)
			assert.EqualValues(t, 0, fake.authorCalls.Load())
		})
	}
}

func TestLookupISBNUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	client := NewClient(config.OpenLibraryConfig{BaseURL: base, Timeout: time.Second})
	_, err := client.LookupISBN(context.Background(), "123")
	assert.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)
}

func TestFetchCover(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("jpegdata"))
	}))
	t.Cleanup(srv.Close)

	client := NewClient(config.OpenLibraryConfig{})
	body, contentType, _, err := client.FetchCover(context.Background(), srv.URL+"/b/id/1-L.jpg")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "jpegdata", string(data))
	assert.Equal(t, "image/jpeg", contentType)
}

func TestNewClientDefaults(t *testing.T) {
	client := NewClient(config.OpenLibraryConfig{})
	assert.Equal(t, DefaultBaseURL, client.baseURL)
	assert.Equal(t, DefaultCoversURL, client.coversURL)
	assert.Equal(t, DefaultTimeout, client.timeout)
	assert.Equal(t, DefaultAuthorTimeout, client.authorTimeout)
}
