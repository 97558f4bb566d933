package mq

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/readshelf/apiserver/internal/logger"
	"github.com/readshelf/apiserver/types"
)

const (
	AttrContentType = "content-type"
	AttrEventType   = "event-type"

	EventBookCached  = "catalog.book_cached"
	EventBookDeleted = "catalog.book_deleted"
)

// CatalogEvent is the payload published when the catalog changes.
type CatalogEvent struct {
	Type       string      `json:"type"`
	BookID     int         `json:"book_id"`
	ISBN       *string     `json:"isbn,omitempty"`
	Book       *types.Book `json:"book,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// EventPublisher sends catalog events to one channel. A nil publisher or one
// without a broker drops events silently. Publish failures are logged and
// never returned.
type EventPublisher struct {
	mq      *MQ
	channel string
	log     *logger.Logger
	now     func() time.Time
}

// NewEventPublisher returns a publisher on channel. mq may be nil.
func NewEventPublisher(mq *MQ, channel string, log *logger.Logger) *EventPublisher {
	if log == nil {
		log = logger.Nop()
	}
	return &EventPublisher{mq: mq, channel: channel, log: log, now: time.Now}
}

func (p *EventPublisher) BookCached(ctx context.Context, book types.Book) {
	p.publish(ctx, CatalogEvent{Type: EventBookCached, BookID: book.ID, ISBN: book.ISBN, Book: &book})
}

func (p *EventPublisher) BookDeleted(ctx context.Context, book types.Book) {
	p.publish(ctx, CatalogEvent{Type: EventBookDeleted, BookID: book.ID, ISBN: book.ISBN})
}

func (p *EventPublisher) publish(ctx context.Context, event CatalogEvent) {
	if p == nil || p.mq == nil {
		return
	}
	event.OccurredAt = p.now().UTC()

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warnw("encode catalog event", "type", event.Type, "book_id", event.BookID, "error", err)
		return
	}

	attrs := map[string]string{
		AttrContentType: "application/json",
		AttrEventType:   event.Type,
	}
	id, err := p.mq.Publish(ctx, p.channel, data, attrs)
	if err != nil {
		p.log.Warnw("publish catalog event", "type", event.Type, "book_id", event.BookID, "error", err)
		return
	}
	p.log.Debugw("published catalog event", "type", event.Type, "book_id", event.BookID, "message_id", id)
}

// LogCatalogEvents returns a Handler that logs each catalog event. A message
// that does not decode is logged and acknowledged so it is not redelivered.
func LogCatalogEvents(log *logger.Logger) Handler {
	return func(_ context.Context, msg Message) error {
		var event CatalogEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			log.Warnw("skip malformed catalog event", "message_id", msg.ID, "error", err)
			return nil
		}

		isbn := ""
		if event.ISBN != nil {
			isbn = *event.ISBN
		}
		log.Infow("catalog event",
			"type", event.Type,
			"book_id", event.BookID,
			"isbn", isbn,
			"occurred_at", event.OccurredAt,
			"message_id", msg.ID,
		)
		return nil
	}
}

// ConsumeCatalogEvents logs events from channel until ctx ends. A cancelled
// context is a clean stop.
func ConsumeCatalogEvents(ctx context.Context, q *MQ, channel string, log *logger.Logger) error {
	if q == nil {
		return errors.New("no message queue backend configured")
	}
	err := q.Subscribe(ctx, channel, LogCatalogEvents(log))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
