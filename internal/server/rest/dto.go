package rest

import (
	"time"

	"github.com/andrejs2008/evomint/internal/server/lifecycle"
	"github.com/andrejs2008/evomint/internal/server/models"
	"github.com/andrejs2008/evomint/internal/traits"
)

type uniquenessRequest struct {
	LocationHash  string `json:"location_hash" binding:"required"`
	TimestampSeed string `json:"timestamp_seed" binding:"required"`
	WalletEntropy string `json:"wallet_entropy" binding:"required"`
	BiometricHash string `json:"biometric_hash"`
}

func (u uniquenessRequest) inputs() traits.UniquenessInputs {
	return traits.UniquenessInputs{
		LocationHash:  u.LocationHash,
		TimestampSeed: u.TimestampSeed,
		WalletEntropy: u.WalletEntropy,
		BiometricHash: u.BiometricHash,
	}
}

type createItemRequest struct {
	Owner               string            `json:"owner" binding:"required"`
	Creator             string            `json:"creator" binding:"required"`
	Category            string            `json:"category" binding:"required,category"`
	Mode                string            `json:"mode" binding:"required,genmode"`
	Prompt              string            `json:"prompt"`
	Name                string            `json:"name"`
	Description         string            `json:"description"`
	Uniqueness          uniquenessRequest `json:"uniqueness" binding:"required"`
	EvolutionPeriodDays int64             `json:"evolution_period_days" binding:"omitempty,min=1"`
}

type breedItemRequest struct {
	Owner               string            `json:"owner" binding:"required"`
	Creator             string            `json:"creator" binding:"required"`
	Category            string            `json:"category" binding:"required,category"`
	ParentIDs           []string          `json:"parent_ids" binding:"required,min=2,dive,required"`
	Name                string            `json:"name"`
	Description         string            `json:"description"`
	Uniqueness          uniquenessRequest `json:"uniqueness" binding:"required"`
	EvolutionPeriodDays int64             `json:"evolution_period_days" binding:"omitempty,min=1"`
}

type evolveRequest struct {
	Trigger string `json:"trigger" binding:"omitempty,oneof=manual auto"`
}

type waitlistRequest struct {
	Creator   string `json:"creator" binding:"required"`
	Category  string `json:"category" binding:"required,category"`
	Requester string `json:"requester" binding:"required"`
}

type credentialsRequest struct {
	Owner          string `json:"owner" binding:"required"`
	Platform       string `json:"platform" binding:"required"`
	ExternalUserID string `json:"external_user_id" binding:"required"`
	Handle         string `json:"handle"`
	AccessToken    string `json:"access_token" binding:"required"`
	RefreshToken   string `json:"refresh_token"`
}

type adminTokenRequest struct {
	Operator string `json:"operator" binding:"required"`
	Secret   string `json:"secret" binding:"required"`
}

// itemResponse is the wire form of a models.Item.
type itemResponse struct {
	ID          string `json:"id"`
	Owner       string `json:"owner"`
	Creator     string `json:"creator"`
	Category    string `json:"category"`
	Mode        string `json:"mode"`
	Prompt      string `json:"prompt,omitempty"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`

	ImageRef string                  `json:"image_ref"`
	Traits   traits.Vector           `json:"traits"`
	Scarcity models.ScarcitySnapshot `json:"scarcity"`
	History  []models.EvolutionEvent `json:"history"`

	Version             int64     `json:"version"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
	LastEvolutionAt     time.Time `json:"last_evolution_at"`
	EvolutionPeriodDays int64     `json:"evolution_period_days"`

	LedgerID       string `json:"ledger_id,omitempty"`
	LedgerStatus   string `json:"ledger_status"`
	LedgerAttempts int64  `json:"ledger_attempts,omitempty"`
}

func toItemResponse(item *models.Item) itemResponse {
	return itemResponse{
		ID:          item.ID,
		Owner:       item.Owner,
		Creator:     item.Creator,
		Category:    item.Category,
		Mode:        item.Mode,
		Prompt:      item.Prompt,
		Name:        item.Name,
		Description: item.Description,

		ImageRef: item.ImageRef,
		Traits:   item.Traits,
		Scarcity: item.Scarcity,
		History:  item.History,

		Version:             item.Version,
		CreatedAt:           item.CreatedAt,
		UpdatedAt:           item.UpdatedAt,
		LastEvolutionAt:     item.LastEvolutionAt,
		EvolutionPeriodDays: item.EvolutionPeriodDays,

		LedgerID:       item.LedgerID,
		LedgerStatus:   string(item.LedgerStatus),
		LedgerAttempts: item.LedgerAttempts,
	}
}

// mintResponse carries the item plus the remote-leg outcome, so a caller
// can tell "stored everywhere" from "saved, syncing".
type mintResponse struct {
	Item              itemResponse            `json:"item"`
	Remote            lifecycle.RemoteOutcome `json:"remote"`
	DualStorageStatus string                  `json:"dual_storage_status"`
}

func toMintResponse(item *models.Item, remote lifecycle.RemoteOutcome, status string) mintResponse {
	return mintResponse{
		Item:              toItemResponse(item),
		Remote:            remote,
		DualStorageStatus: status,
	}
}
