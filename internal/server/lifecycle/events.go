package lifecycle

import "time"

// Event types published after state transitions.
const (
	EventMinted          = "minted"
	EventMintFailed      = "mint_failed"
	EventEvolved         = "evolved"
	EventEvolutionFailed = "evolution_failed"
	EventAbandoned       = "abandoned"
)

// Event is one item transition for subscribers of the live feed.
type Event struct {
	Type    string    `json:"type"`
	ItemID  string    `json:"item_id"`
	Version int64     `json:"version"`
	At      time.Time `json:"at"`
}

// EventPublisher receives events after the transition has been committed
// locally. Implementations must not block.
type EventPublisher interface {
	Publish(event Event)
}

// NopPublisher drops all events.
type NopPublisher struct{}

func (NopPublisher) Publish(Event) {}

func (s *Service) publish(eventType, itemID string, version int64) {
	s.events.Publish(Event{
		Type:    eventType,
		ItemID:  itemID,
		Version: version,
		At:      time.Now().UTC(),
	})
}
