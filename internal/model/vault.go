package model

import (
	"math/big"
)

// Settings holds the tunable parameters of the vault. AssetID is fixed
// at initialization; DepositAmount and DurationSeconds may be retuned
// by the owner and must both stay non-zero.
type Settings struct {
	// AssetID is the identifier of the only asset the vault accepts.
	AssetID string `json:"asset_id"`

	// DepositAmount is the exact amount a party must attach to a deposit.
	DepositAmount *big.Int `json:"deposit_amount"`

	// DurationSeconds is the time-lock applied to every deposit.
	DurationSeconds uint64 `json:"duration_seconds"`
}

// Lock records a party's active deposit. Absence of a Lock for a party
// means the party has no funds in custody. At most one Lock exists per
// party at any time.
type Lock struct {
	// Party is the identity that made the deposit.
	Party string `json:"party"`

	// DepositTimestamp is the logical time the deposit was recorded.
	DepositTimestamp uint64 `json:"deposit_timestamp"`
}

// PingRequest is the payload for a deposit. Asset and Amount together
// form the attached payment; Amount is a base-10 unsigned integer
// string so arbitrarily large values survive JSON transport.
type PingRequest struct {
	Party  string `json:"party"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

// PongRequest is the payload for a withdrawal.
type PongRequest struct {
	Party string `json:"party"`
}

// ExtendRequest is the payload for extending an active lock.
type ExtendRequest struct {
	Party             string `json:"party"`
	AdditionalSeconds uint64 `json:"additional_seconds"`
}

// RetuneRequest is the owner-only payload for changing the deposit
// amount and lock duration. The accepted asset is not retunable.
type RetuneRequest struct {
	Caller          string `json:"caller"`
	DepositAmount   string `json:"deposit_amount"`
	DurationSeconds uint64 `json:"duration_seconds"`
}

// AdminRequest is the payload for pause and resume.
type AdminRequest struct {
	Caller string `json:"caller"`
}

// VaultResponse is the common envelope for mutating operations.
// Status is "ok" on success and "error" otherwise.
type VaultResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Lock    *Lock  `json:"lock,omitempty"`
}

// LockStatusResponse reports whether a party holds an active lock.
type LockStatusResponse struct {
	Party            string `json:"party"`
	Locked           bool   `json:"locked"`
	DepositTimestamp uint64 `json:"deposit_timestamp"`
	EligibleTime     uint64 `json:"eligible_time"`
}

// RemainingResponse reports the seconds left until a party may
// withdraw. Remaining is null when the party holds no lock, and 0 when
// the deadline has already passed.
type RemainingResponse struct {
	Party     string  `json:"party"`
	Locked    bool    `json:"locked"`
	Remaining *uint64 `json:"remaining,omitempty"`
}

// SettingsResponse reports the current vault settings. The deposit
// amount is rendered as a base-10 string.
type SettingsResponse struct {
	AssetID         string `json:"asset_id"`
	DepositAmount   string `json:"deposit_amount"`
	DurationSeconds uint64 `json:"duration_seconds"`
}

// StatusResponse reports the lifecycle state of the vault.
type StatusResponse struct {
	Paused bool   `json:"paused"`
	Owner  string `json:"owner"`
}
