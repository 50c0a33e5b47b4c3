package waitlists

import (
	"context"
	"time"
)

type Repository interface {
	// Join adds a requester to a combination's waitlist. It reports
	// whether a new row was inserted; a repeat join is not an error.
	Join(ctx context.Context, combination, requester string, joinedAt time.Time) (bool, error)
	// Count returns the number of waiting requesters.
	Count(ctx context.Context, combination string) (int64, error)
}
