package types

import "time"

// MaxDescriptionLength caps the stored book description, in characters.
const MaxDescriptionLength = 10000

// Book is an entry of the shared catalog.
//
// Books are created by an administrator or by the ISBN lookup flow, in which
// case the ISBN doubles as the cache key for the external bibliographic
// service.
type Book struct {
	// ID is the unique identifier of the book.
	ID int `json:"id" db:"id"`

	// Title is the human-readable title. Never empty.
	Title string `json:"title" db:"title"`

	// Author is the display name of the (first) author. Never empty.
	Author string `json:"author" db:"author"`

	// ISBN is optional but unique across the catalog when present.
	ISBN *string `json:"isbn" db:"isbn"`

	// Description is an optional synopsis, at most MaxDescriptionLength characters.
	Description *string `json:"description" db:"description"`

	// CoverURL references a cover image, usually on the Open Library covers host.
	CoverURL *string `json:"cover_url" db:"cover_url"`

	// CreatedAt is the timestamp at which the book was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the book.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
