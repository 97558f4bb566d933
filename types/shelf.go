package types

import "time"

// ReadingStatus tracks a user's progress through a shelved book.
type ReadingStatus string

const (
	StatusPlanToRead ReadingStatus = "plan_to_read"
	StatusReading    ReadingStatus = "reading"
	StatusCompleted  ReadingStatus = "completed"
	StatusDropped    ReadingStatus = "dropped"
)

// ReadingStatuses lists every valid status in display order.
var ReadingStatuses = []ReadingStatus{
	StatusPlanToRead,
	StatusReading,
	StatusCompleted,
	StatusDropped,
}

// Valid reports whether s is one of the known statuses.
func (s ReadingStatus) Valid() bool {
	for _, status := range ReadingStatuses {
		if s == status {
			return true
		}
	}
	return false
}

const (
	MinRating = 1
	MaxRating = 5
)

// ShelfItem is one book on a user's personal shelf.
// A user has at most one item per book.
type ShelfItem struct {
	ID     int           `json:"id" db:"id"`
	UserID int           `json:"user_id" db:"user_id"`
	BookID int           `json:"book_id" db:"book_id"`
	Status ReadingStatus `json:"status" db:"status"`

	// Rating is optional and always within [MinRating, MaxRating].
	Rating *int    `json:"rating" db:"rating"`
	Review *string `json:"review" db:"review"`

	// Book is the referenced catalog entry, populated on reads.
	Book *Book `json:"book,omitempty" db:"-"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ShelfItemPatch carries a partial shelf update. Nil fields are left unchanged.
type ShelfItemPatch struct {
	Status *ReadingStatus
	Rating *int
	Review *string
}

// Apply copies every non-nil field of p onto item.
func (p ShelfItemPatch) Apply(item *ShelfItem) {
	if p.Status != nil {
		item.Status = *p.Status
	}
	if p.Rating != nil {
		rating := *p.Rating
		item.Rating = &rating
	}
	if p.Review != nil {
		review := *p.Review
		item.Review = &review
	}
}
