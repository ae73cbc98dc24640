// Package events publishes list activity to NATS JetStream.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"media-tracker/internal/models"
	"media-tracker/internal/timeutil"
)

const (
	streamName = "LISTS"

	SubjectListDeleted = "lists.list.deleted"
)

// Event types carried in ListEvent.EventType.
const (
	TypeAdded   = "added"
	TypeRemoved = "removed"
	TypeRanked  = "ranked"
	TypeDeleted = "deleted"
)

// ListEvent is the payload published for every list mutation.
type ListEvent struct {
	EventID    string      `json:"event_id"`
	EventType  string      `json:"event_type"`
	Kind       string      `json:"kind"`
	ListID     int64       `json:"list_id"`
	OwnerID    string      `json:"owner_id,omitempty"`
	MediaID    int         `json:"media_id,omitempty"`
	Season     int         `json:"season,omitempty"`
	Episode    int         `json:"episode,omitempty"`
	Rank       models.Rank `json:"rank,omitempty"`
	Place      int         `json:"place,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// Subject is the JetStream subject the event is published on,
// e.g. lists.film.added or lists.episode.removed.
func (e ListEvent) Subject() string {
	if e.EventType == TypeDeleted {
		return SubjectListDeleted
	}
	return fmt.Sprintf("lists.%s.%s", e.Kind, e.EventType)
}

// MediaEvent builds an event for a film or series membership change.
func MediaEvent(eventType string, kind models.MediaKind, listID int64, mediaID int) ListEvent {
	return newEvent(eventType, kind.String(), listID, func(e *ListEvent) { e.MediaID = mediaID })
}

// EpisodeEvent builds an event for an episode membership change.
func EpisodeEvent(eventType string, listID int64, seriesID, season, episode int) ListEvent {
	return newEvent(eventType, "episode", listID, func(e *ListEvent) {
		e.MediaID = seriesID
		e.Season = season
		e.Episode = episode
	})
}

// RankEvent builds an event for a rank change.
func RankEvent(kind models.MediaKind, listID int64, mediaID int, rank models.Rank, place int) ListEvent {
	return newEvent(TypeRanked, kind.String(), listID, func(e *ListEvent) {
		e.MediaID = mediaID
		e.Rank = rank
		e.Place = place
	})
}

// ListDeletedEvent builds the event emitted after a list and its memberships are gone.
func ListDeletedEvent(listID int64, ownerID string) ListEvent {
	return newEvent(TypeDeleted, "list", listID, func(e *ListEvent) { e.OwnerID = ownerID })
}

func newEvent(eventType, kind string, listID int64, fill func(*ListEvent)) ListEvent {
	e := ListEvent{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		Kind:       kind,
		ListID:     listID,
		OccurredAt: timeutil.Now(),
	}
	fill(&e)
	return e
}

// Publisher publishes list events to NATS JetStream.
type Publisher struct {
	nc  *nats.Conn
	js  nats.JetStreamContext
	log *zap.Logger
}

// New connects to NATS and ensures the LISTS stream exists.
// If natsURL is empty, returns a no-op publisher (stub).
func New(natsURL string, log *zap.Logger) (*Publisher, error) {
	if natsURL == "" {
		log.Warn("NATS_URL not set, list events will not be published (stub mode)")
		return &Publisher{log: log}, nil
	}

	nc, err := nats.Connect(natsURL,
		nats.Name("media-tracker"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, err
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     streamName,
		Subjects: []string{"lists.>"},
		Storage:  nats.FileStorage,
	})
	if err != nil {
		log.Warn("failed to create NATS stream (may already exist)", zap.Error(err))
	}

	log.Info("NATS publisher initialised", zap.String("stream", streamName))
	return &Publisher{nc: nc, js: js, log: log}, nil
}

// Publish sends evt on its subject. In stub mode it only logs.
func (p *Publisher) Publish(ctx context.Context, evt ListEvent) error {
	subject := evt.Subject()
	if p.js == nil {
		p.log.Debug("NATS stub: skipping publish", zap.String("subject", subject), zap.String("event_id", evt.EventID))
		return nil
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	ack, err := p.js.Publish(subject, data, nats.Context(ctx), nats.MsgId(evt.EventID))
	if err != nil {
		return err
	}

	p.log.Debug("NATS event published",
		zap.String("subject", subject),
		zap.String("event_id", evt.EventID),
		zap.Uint64("seq", ack.Sequence),
	)
	return nil
}

// Close drains the connection. Safe on a stub publisher.
func (p *Publisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}
