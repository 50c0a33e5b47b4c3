// Package models defines server-side data models persisted in the database.
package models

import (
	"time"

	"github.com/andrejs2008/evomint/internal/traits"
)

// LedgerStatus tracks how an item's local record relates to its remote
// ledger mirror.
type LedgerStatus string

const (
	// StatusPendingMint: saved locally, remote mint not yet attempted or
	// still in flight.
	StatusPendingMint LedgerStatus = "pending_mint"
	// StatusMinted: remote copy exists and matched local at last write.
	StatusMinted LedgerStatus = "minted"
	// StatusFailedMint: remote mint failed after retries; retry sweep
	// picks it up.
	StatusFailedMint LedgerStatus = "failed_mint"
	// StatusFailedUpdate: minted earlier but a later update failed; retry
	// sweep picks it up.
	StatusFailedUpdate LedgerStatus = "failed_update"
	// StatusDisabled: ledger integration is off for this deployment.
	// Terminal.
	StatusDisabled LedgerStatus = "disabled"
	// StatusAbandoned: retry budget exhausted; dead-lettered for manual
	// inspection. Terminal.
	StatusAbandoned LedgerStatus = "abandoned"
)

// Valid reports whether s is one of the known statuses.
func (s LedgerStatus) Valid() bool {
	switch s {
	case StatusPendingMint, StatusMinted, StatusFailedMint, StatusFailedUpdate, StatusDisabled, StatusAbandoned:
		return true
	}
	return false
}

// Terminal statuses are never transitioned out of and never swept.
func (s LedgerStatus) Terminal() bool {
	return s == StatusDisabled || s == StatusAbandoned
}

// Generation modes accepted at creation time.
const (
	ModeSelection = "selection"
	ModePrompt    = "prompt"
	ModeEvolution = "evolution"
	ModeBreeding  = "breeding"
)

// Categories an item can be minted under. The quota combination key is
// creator + "-" + category.
var Categories = []string{
	"architecture", "nature", "portrait", "abstract",
	"cosmic", "urban", "fantasy", "historical",
}

// EvolutionEvent is one entry of an item's ordered history log. The first
// entry records the mint; each successful evolution appends exactly one.
type EvolutionEvent struct {
	Version    int64     `json:"version"`
	OccurredAt time.Time `json:"occurred_at"`
	// Trigger: mint, social, drift, breeding or manual.
	Trigger string `json:"trigger"`
	Note    string `json:"note,omitempty"`
}

// ScarcitySnapshot freezes the combination's quota state at mint time, so
// an item carries proof of its own scarcity context.
type ScarcitySnapshot struct {
	Combination string `json:"combination"`
	Minted      int64  `json:"minted"`
	Limit       int64  `json:"limit"`
}

// Item is the local, authoritative record of one collectible.
//
// Invariants: Version increases strictly by 1 per successful evolution and
// never decreases; len(History) == Version with History[0] the mint event;
// Traits stays inside its bounds after any mutation.
type Item struct {
	ID          string
	Owner       string
	Creator     string
	Category    string
	Mode        string
	Prompt      string
	Name        string
	Description string

	ImageRef string
	Traits   traits.Vector
	Scarcity ScarcitySnapshot
	History  []EvolutionEvent
	Unique   traits.UniquenessInputs

	Version             int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
	LastEvolutionAt     time.Time
	EvolutionPeriodDays int64

	// LedgerID is the remote identifier, empty until the first successful
	// mint.
	LedgerID       string
	LedgerStatus   LedgerStatus
	LedgerAttempts int64
}

// CombinationKey builds the scarcity key for a creator and category pair.
func CombinationKey(creator, category string) string {
	return creator + "-" + category
}

// Combination returns the scarcity key this item was admitted under.
func (i *Item) Combination() string {
	return CombinationKey(i.Creator, i.Category)
}

// DueForEvolution reports whether the evolution interval has elapsed at now.
func (i *Item) DueForEvolution(now time.Time) bool {
	return !now.Before(i.LastEvolutionAt.AddDate(0, 0, int(i.EvolutionPeriodDays)))
}

// QuotaCounter is the per-combination scarcity state. MintedCount only moves
// through the admission controller and never decreases.
type QuotaCounter struct {
	Combination string
	MintedCount int64
	TotalLimit  int64
}

// Available reports whether another mint fits under the limit.
func (c *QuotaCounter) Available() bool {
	return c.MintedCount < c.TotalLimit
}

// WaitlistEntry records interest in a full combination. Unique on
// (Combination, Requester); joins are idempotent.
type WaitlistEntry struct {
	Combination string
	Requester   string
	JoinedAt    time.Time
}

// Credential stores a user's social platform binding. Token material lives
// only in the AES-GCM blob and is decrypted on use.
type Credential struct {
	Owner          string
	Platform       string
	ExternalUserID string
	Handle         string
	TokenBlob      []byte
	TokenNonce     []byte
	UpdatedAt      time.Time
}

// TokenPair is the transient decrypted form of a credential's secrets.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}
