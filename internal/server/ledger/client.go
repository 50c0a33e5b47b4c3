// Package ledger talks to the remote record ledger that mirrors minted
// items. The client is stateless: status bookkeeping belongs to the
// lifecycle service.
package ledger

import (
	"context"
	"time"
)

// Record is the remote representation of one item. TraitsJSON carries the
// trait vector as an opaque JSON document so the ledger schema stays
// independent of trait composition.
type Record struct {
	ID          string    `json:"id"`
	Owner       string    `json:"owner"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	ImageRef    string    `json:"image_ref"`
	Version     int64     `json:"version"`
	TraitsJSON  string    `json:"traits_json"`
	MintedAt    time.Time `json:"minted_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Health is the ledger's liveness report.
type Health struct {
	Status  string `json:"status"`
	Records int64  `json:"records"`
	Cycles  int64  `json:"cycles"`
}

// Client is the remote ledger contract. Mint is not idempotent on the
// remote side; callers must not mint an item that already reached minted
// status.
type Client interface {
	Mint(ctx context.Context, rec *Record) (*Record, error)
	Update(ctx context.Context, id string, rec *Record) (*Record, error)
	// Get returns common.ErrorNotFound when the record is absent.
	Get(ctx context.Context, id string) (*Record, error)
	// ListAll is a full scan, used only by the reconciliation sweep.
	ListAll(ctx context.Context) ([]*Record, error)
	Health(ctx context.Context) (*Health, error)
}
