package vault

import "errors"

// Every failure of a vault operation is one of these conditions. All
// of them abort the whole call: when an operation returns a non-nil
// error, no storage mutation, payout, or event emission has taken
// place. Callers match with errors.Is.
var (
	// ErrAlreadyPinged is returned when a party deposits while already
	// holding an active lock.
	ErrAlreadyPinged = errors.New("party already has an active deposit")

	// ErrNoPingFound is returned when a withdrawal or extension names a
	// party with no active lock.
	ErrNoPingFound = errors.New("no active deposit found for party")

	// ErrInvalidPaymentToken is returned when the attached payment uses
	// an asset other than the accepted one.
	ErrInvalidPaymentToken = errors.New("payment asset does not match accepted asset")

	// ErrIncorrectPingAmount is returned when the attached payment
	// amount differs from the required deposit amount.
	ErrIncorrectPingAmount = errors.New("payment amount does not match required deposit")

	// ErrCannotPongBeforeDeadline is returned when a withdrawal is
	// attempted before the party's eligible time.
	ErrCannotPongBeforeDeadline = errors.New("withdrawal attempted before deadline")

	// ErrDurationCannotBeZero is returned when a zero lock duration is
	// configured or retuned.
	ErrDurationCannotBeZero = errors.New("lock duration cannot be zero")

	// ErrPingAmountCannotBeZero is returned when a zero deposit amount
	// is configured or retuned.
	ErrPingAmountCannotBeZero = errors.New("deposit amount cannot be zero")

	// ErrOnlyOwner is returned when a non-owner calls an administrative
	// operation.
	ErrOnlyOwner = errors.New("only the owner can perform this action")

	// ErrVaultPaused is returned by every non-administrative mutating
	// operation while the vault is paused.
	ErrVaultPaused = errors.New("vault is paused")

	// ErrInvalidExtensionAmount is returned when an extension of zero
	// seconds is requested.
	ErrInvalidExtensionAmount = errors.New("extension must be greater than zero")
)
