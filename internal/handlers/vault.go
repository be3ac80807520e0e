package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pingpong-vault/service/internal/metrics"
	"github.com/pingpong-vault/service/internal/model"
	"github.com/pingpong-vault/service/internal/vault"
)

// validNamePattern defines the allowed pattern for party and asset
// identifiers. Allows alphanumeric characters, hyphens, underscores,
// dots, and colons.
var validNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)

const (
	maxNameLength = 256 // Maximum length for party and asset identifiers
)

// VaultHandlers provides HTTP handlers for vault operations.
type VaultHandlers struct {
	svc     vault.Service
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewVaultHandlers creates a new VaultHandlers instance.
func NewVaultHandlers(svc vault.Service, logger *zap.Logger, metrics *metrics.Metrics) *VaultHandlers {
	return &VaultHandlers{
		svc:     svc,
		logger:  logger,
		metrics: metrics,
	}
}

// validateName validates party, caller, and asset identifiers.
func validateName(name, fieldName string) error {
	if name == "" {
		return errors.New(fieldName + " is required")
	}

	if len(name) > maxNameLength {
		return errors.New(fieldName + " exceeds maximum length")
	}

	if !validNamePattern.MatchString(name) {
		return errors.New(fieldName + " contains invalid characters")
	}

	return nil
}

// parseAmount parses a base-10 unsigned integer amount string.
func parseAmount(raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("amount is required")
	}

	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok || amount.Sign() < 0 {
		return nil, errors.New("amount must be a base-10 unsigned integer")
	}

	return amount, nil
}

// statusForError maps vault conditions to HTTP status codes. Anything
// not in the taxonomy is an internal error.
func statusForError(err error) int {
	switch {
	case errors.Is(err, vault.ErrOnlyOwner):
		return http.StatusForbidden
	case errors.Is(err, vault.ErrNoPingFound):
		return http.StatusNotFound
	case errors.Is(err, vault.ErrAlreadyPinged),
		errors.Is(err, vault.ErrCannotPongBeforeDeadline):
		return http.StatusConflict
	case errors.Is(err, vault.ErrVaultPaused):
		return http.StatusLocked
	case errors.Is(err, vault.ErrInvalidPaymentToken),
		errors.Is(err, vault.ErrIncorrectPingAmount),
		errors.Is(err, vault.ErrInvalidExtensionAmount),
		errors.Is(err, vault.ErrDurationCannotBeZero),
		errors.Is(err, vault.ErrPingAmountCannotBeZero):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// HandlePing handles POST /ping requests to deposit into the vault.
// Returns:
//   - 200 OK: Deposit recorded
//   - 400 Bad Request: Invalid body, wrong asset, or wrong amount
//   - 409 Conflict: Party already holds an active deposit
//   - 423 Locked: Vault is paused
//   - 500 Internal Server Error: Storage or internal error
func (h *VaultHandlers) HandlePing(w http.ResponseWriter, r *http.Request) {
	var req model.PingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("Failed to decode ping request", zap.Error(err))
		h.recordMetric("ping", "failure")
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Party = strings.TrimSpace(req.Party)
	req.Asset = strings.TrimSpace(req.Asset)

	if err := validateName(req.Party, "Party"); err != nil {
		h.recordMetric("ping", "failure")
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateName(req.Asset, "Asset"); err != nil {
		h.recordMetric("ping", "failure")
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		h.recordMetric("ping", "failure")
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	lock, err := h.svc.Ping(r.Context(), req.Party, req.Asset, amount)
	if err != nil {
		h.respondVaultError(w, "ping", req.Party, err)
		return
	}

	h.recordMetric("ping", "success")
	h.respondJSON(w, http.StatusOK, model.VaultResponse{
		Status:  "ok",
		Message: "Deposit recorded",
		Lock:    lock,
	})
}

// HandlePong handles POST /pong requests to withdraw from the vault.
// Returns:
//   - 200 OK: Withdrawal paid out
//   - 404 Not Found: Party holds no active deposit
//   - 409 Conflict: Deadline has not passed yet
//   - 423 Locked: Vault is paused
//   - 500 Internal Server Error: Storage or internal error
func (h *VaultHandlers) HandlePong(w http.ResponseWriter, r *http.Request) {
	var req model.PongRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("Failed to decode pong request", zap.Error(err))
		h.recordMetric("pong", "failure")
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Party = strings.TrimSpace(req.Party)
	if err := validateName(req.Party, "Party"); err != nil {
		h.recordMetric("pong", "failure")
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.Pong(r.Context(), req.Party); err != nil {
		h.respondVaultError(w, "pong", req.Party, err)
		return
	}

	h.recordMetric("pong", "success")
	h.respondJSON(w, http.StatusOK, model.VaultResponse{
		Status:  "ok",
		Message: "Withdrawal paid out",
	})
}

// HandleExtend handles POST /extend requests to push a party's
// eligible time further out.
func (h *VaultHandlers) HandleExtend(w http.ResponseWriter, r *http.Request) {
	var req model.ExtendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("Failed to decode extend request", zap.Error(err))
		h.recordMetric("extend", "failure")
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Party = strings.TrimSpace(req.Party)
	if err := validateName(req.Party, "Party"); err != nil {
		h.recordMetric("extend", "failure")
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	lock, err := h.svc.ExtendLock(r.Context(), req.Party, req.AdditionalSeconds)
	if err != nil {
		h.respondVaultError(w, "extend", req.Party, err)
		return
	}

	h.recordMetric("extend", "success")
	h.respondJSON(w, http.StatusOK, model.VaultResponse{
		Status:  "ok",
		Message: "Lock extended",
		Lock:    lock,
	})
}

// HandleRetune handles POST /admin/retune requests. Owner only.
func (h *VaultHandlers) HandleRetune(w http.ResponseWriter, r *http.Request) {
	var req model.RetuneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("Failed to decode retune request", zap.Error(err))
		h.recordMetric("retune", "failure")
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Caller = strings.TrimSpace(req.Caller)
	if err := validateName(req.Caller, "Caller"); err != nil {
		h.recordMetric("retune", "failure")
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	amount, err := parseAmount(req.DepositAmount)
	if err != nil {
		h.recordMetric("retune", "failure")
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.Retune(r.Context(), req.Caller, amount, req.DurationSeconds); err != nil {
		h.respondVaultError(w, "retune", req.Caller, err)
		return
	}

	h.recordMetric("retune", "success")
	h.respondJSON(w, http.StatusOK, model.VaultResponse{
		Status:  "ok",
		Message: "Vault settings retuned",
	})
}

// HandlePause handles POST /admin/pause requests. Owner only.
func (h *VaultHandlers) HandlePause(w http.ResponseWriter, r *http.Request) {
	h.handleGate(w, r, "pause", h.svc.Pause)
}

// HandleResume handles POST /admin/resume requests. Owner only.
func (h *VaultHandlers) HandleResume(w http.ResponseWriter, r *http.Request) {
	h.handleGate(w, r, "resume", h.svc.Resume)
}

func (h *VaultHandlers) handleGate(w http.ResponseWriter, r *http.Request, operation string,
	op func(ctx context.Context, caller string) error,
) {
	var req model.AdminRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("Failed to decode admin request",
			zap.String("operation", operation),
			zap.Error(err),
		)
		h.recordMetric(operation, "failure")
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Caller = strings.TrimSpace(req.Caller)
	if err := validateName(req.Caller, "Caller"); err != nil {
		h.recordMetric(operation, "failure")
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := op(r.Context(), req.Caller); err != nil {
		h.respondVaultError(w, operation, req.Caller, err)
		return
	}

	h.recordMetric(operation, "success")
	h.respondJSON(w, http.StatusOK, model.VaultResponse{
		Status:  "ok",
		Message: "Lifecycle gate updated",
	})
}

// HandleGetLock handles GET /locks/{party} requests.
func (h *VaultHandlers) HandleGetLock(w http.ResponseWriter, r *http.Request) {
	party := strings.TrimSpace(chi.URLParam(r, "party"))
	if err := validateName(party, "Party"); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	locked, err := h.svc.HasActiveLock(r.Context(), party)
	if err != nil {
		h.logger.Error("Failed to read lock state", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "Failed to read lock state")
		return
	}

	resp := model.LockStatusResponse{
		Party:  party,
		Locked: locked,
	}

	if locked {
		if resp.DepositTimestamp, err = h.svc.DepositTimestamp(r.Context(), party); err == nil {
			resp.EligibleTime, err = h.svc.EligibleTime(r.Context(), party)
		}
		if err != nil {
			h.logger.Error("Failed to read lock timestamps", zap.Error(err))
			h.respondError(w, http.StatusInternalServerError, "Failed to read lock state")
			return
		}
	}

	h.respondJSON(w, http.StatusOK, resp)
}

// HandleEligibleTime handles GET /locks/{party}/eligible-time requests.
// The eligible time is 0 when the party holds no lock.
func (h *VaultHandlers) HandleEligibleTime(w http.ResponseWriter, r *http.Request) {
	party := strings.TrimSpace(chi.URLParam(r, "party"))
	if err := validateName(party, "Party"); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	eligible, err := h.svc.EligibleTime(r.Context(), party)
	if err != nil {
		h.logger.Error("Failed to read eligible time", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "Failed to read eligible time")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"party":         party,
		"eligible_time": eligible,
	})
}

// HandleRemaining handles GET /locks/{party}/remaining requests.
func (h *VaultHandlers) HandleRemaining(w http.ResponseWriter, r *http.Request) {
	party := strings.TrimSpace(chi.URLParam(r, "party"))
	if err := validateName(party, "Party"); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	remaining, err := h.svc.TimeRemaining(r.Context(), party)
	if err != nil {
		h.logger.Error("Failed to read time remaining", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "Failed to read time remaining")
		return
	}

	h.respondJSON(w, http.StatusOK, model.RemainingResponse{
		Party:     party,
		Locked:    remaining != nil,
		Remaining: remaining,
	})
}

// HandleSettings handles GET /settings requests.
func (h *VaultHandlers) HandleSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.svc.Settings(r.Context())
	if err != nil {
		h.logger.Error("Failed to read settings", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "Failed to read settings")
		return
	}

	h.respondJSON(w, http.StatusOK, model.SettingsResponse{
		AssetID:         settings.AssetID,
		DepositAmount:   settings.DepositAmount.String(),
		DurationSeconds: settings.DurationSeconds,
	})
}

// HandleStatus handles GET /status requests.
func (h *VaultHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	paused, err := h.svc.IsPaused(r.Context())
	if err != nil {
		h.logger.Error("Failed to read pause flag", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "Failed to read vault status")
		return
	}

	owner, err := h.svc.Owner(r.Context())
	if err != nil {
		h.logger.Error("Failed to read owner", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "Failed to read vault status")
		return
	}

	h.respondJSON(w, http.StatusOK, model.StatusResponse{
		Paused: paused,
		Owner:  owner,
	})
}

// respondVaultError maps a vault condition to a response and records
// the operation metric.
func (h *VaultHandlers) respondVaultError(w http.ResponseWriter, operation, subject string, err error) {
	status := statusForError(err)

	if status == http.StatusInternalServerError {
		h.logger.Error("Vault operation failed",
			zap.String("operation", operation),
			zap.String("subject", subject),
			zap.Error(err),
		)
		h.recordMetric(operation, "failure")
		h.respondError(w, status, "Vault operation failed")
		return
	}

	h.logger.Debug("Vault operation rejected",
		zap.String("operation", operation),
		zap.String("subject", subject),
		zap.Error(err),
	)
	h.recordMetric(operation, "rejected")
	h.respondError(w, status, err.Error())
}

// respondError sends an error response.
func (h *VaultHandlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, model.VaultResponse{
		Status:  "error",
		Message: message,
	})
}

// respondJSON sends a JSON response.
func (h *VaultHandlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// recordMetric records a vault operation metric.
func (h *VaultHandlers) recordMetric(operation, status string) {
	if h.metrics != nil && h.metrics.VaultOperationsTotal != nil {
		h.metrics.VaultOperationsTotal.WithLabelValues(operation, status).Inc()
	}
}
