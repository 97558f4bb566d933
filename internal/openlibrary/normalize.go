package openlibrary

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/readshelf/apiserver/types"
)

const (
	UnknownTitle  = "Unknown title"
	UnknownAuthor = "Unknown author"
)

// edition mirrors the fields we read from /isbn/{isbn}.json. Every field is
// kept raw because Open Library returns several shapes for each of them.
type edition struct {
	Title       json.RawMessage `json:"title"`
	Authors     json.RawMessage `json:"authors"`
	Description json.RawMessage `json:"description"`
	Covers      json.RawMessage `json:"covers"`
}

type author struct {
	Name json.RawMessage `json:"name"`
}

// authorRef is the first author entry: either a lookup key or a plain name.
type authorRef struct {
	Key  string
	Name string
}

// normalize applies every field rule except the remote author lookup.
func normalize(e edition, isbn, coversURL string) types.Book {
	description := normalizeDescription(e.Description)
	book := types.Book{
		Title:       normalizeTitle(e.Title),
		Author:      UnknownAuthor,
		ISBN:        &isbn,
		Description: &description,
		CoverURL:    coverURL(e.Covers, coversURL),
	}
	return book
}

// normalizeTitle returns the title when it is a non-empty string.
func normalizeTitle(raw json.RawMessage) string {
	var title string
	if err := json.Unmarshal(raw, &title); err != nil || strings.TrimSpace(title) == "" {
		return UnknownTitle
	}
	return title
}

// firstAuthor inspects only the first authors entry.
func firstAuthor(raw json.RawMessage) authorRef {
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil || len(entries) == 0 {
		return authorRef{}
	}
	first := bytes.TrimSpace(entries[0])

	var name string
	if err := json.Unmarshal(first, &name); err == nil {
		return authorRef{Name: strings.TrimSpace(name)}
	}

	var ref struct {
		Key    json.RawMessage `json:"key"`
		Author *struct {
			Key json.RawMessage `json:"key"`
		} `json:"author"`
	}
	if err := json.Unmarshal(first, &ref); err != nil {
		return authorRef{}
	}
	key := rawString(ref.Key)
	if key == "" && ref.Author != nil {
		key = rawString(ref.Author.Key)
	}
	return authorRef{Key: strings.TrimSpace(key)}
}

// authorName returns the resolved author display name or UnknownAuthor.
func authorName(raw json.RawMessage) string {
	name := strings.TrimSpace(rawString(raw))
	if name == "" {
		return UnknownAuthor
	}
	return name
}

// normalizeDescription unwraps {"value": "..."} objects, stringifies scalars
// and truncates to types.MaxDescriptionLength characters.
func normalizeDescription(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}

	var description string
	switch raw[0] {
	case '"':
		_ = json.Unmarshal(raw, &description)
	case '{':
		var wrapped struct {
			Value json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal(raw, &wrapped); err == nil {
			description = rawString(wrapped.Value)
		}
	default:
		if !falsy(raw) {
			description = string(raw)
		}
	}
	return truncate(description, types.MaxDescriptionLength)
}

// coverURL builds the large cover image URL from the first cover id.
// Later entries are never inspected.
func coverURL(raw json.RawMessage, coversURL string) *string {
	var covers []json.RawMessage
	if err := json.Unmarshal(raw, &covers); err != nil || len(covers) == 0 {
		return nil
	}
	id := coverID(covers[0])
	if id == "" {
		return nil
	}
	u := fmt.Sprintf("%s/b/id/%s-L.jpg", coversURL, id)
	return &u
}

// coverID accepts a numeric id or a string one.
func coverID(raw json.RawMessage) string {
	var number json.Number
	if err := json.Unmarshal(raw, &number); err == nil {
		return number.String()
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return strings.TrimSpace(text)
	}
	return ""
}

// falsy reports whether a non-string JSON value is empty-ish (false, 0, []).
func falsy(raw json.RawMessage) bool {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return true
	}
	switch t := v.(type) {
	case bool:
		return !t
	case float64:
		return t == 0
	case []any:
		return len(t) == 0
	case nil:
		return true
	}
	return false
}

func rawString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
