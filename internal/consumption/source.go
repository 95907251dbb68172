package consumption

import (
	"context"
	"time"
)

// Source abstracts the remote metering API.
// Fetch returns readings whose interval starts within [from, to), ordered by period,
// at most pageSize items.
type Source interface {
	Fetch(ctx context.Context, from, to time.Time, pageSize int) ([]Reading, error)
}

// Store is the contract the durable record file must satisfy.
type Store interface {
	Load() (Inventory, error)
	// Replace overwrites the store with a header plus the given readings.
	Replace(readings []Reading) error
	// Append adds readings that are new relative to what is stored.
	Append(readings []Reading) error
}
