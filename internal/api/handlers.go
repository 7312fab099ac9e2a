/**
 * @description
 * This file contains the HTTP handler functions for the camfinder server.
 * Handlers are responsible for parsing incoming requests, calling the
 * appropriate business logic in the service layer, and writing the HTTP
 * response. Service errors are mapped to distinct status codes so every
 * failure in the workflow is observable to the caller.
 */
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ivanod1994/camfinder-server/internal/app"
	"github.com/ivanod1994/camfinder-server/internal/config"
	"github.com/ivanod1994/camfinder-server/internal/domain"
	"github.com/ivanod1994/camfinder-server/internal/store"
)

// Handlers holds the application service that handlers will interact with.
type Handlers struct {
	service *app.Service
	plans   map[string]config.Plan
	wallets map[string]string
	logger  *slog.Logger
}

// NewHandlers creates a new Handlers with the given service and price table.
func NewHandlers(service *app.Service, plans map[string]config.Plan, wallets map[string]string, logger *slog.Logger) *Handlers {
	return &Handlers{
		service: service,
		plans:   plans,
		wallets: wallets,
		logger:  logger,
	}
}

// RegisterDeviceHandler handles device self-registration.
func (h *Handlers) RegisterDeviceHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceID string `json:"device_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := h.service.RegisterDevice(r.Context(), req.DeviceID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"ok":     true,
		"device": rec,
	})
}

// DeviceStatusHandler answers a device's subscription status query.
func (h *Handlers) DeviceStatusHandler(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.GetStatus(r.Context(), r.URL.Query().Get("device_id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, status)
}

// ConsumeFreeHandler deducts free attempts from a device.
func (h *Handlers) ConsumeFreeHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceID string `json:"device_id"`
		Consumed int    `json:"consumed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	left, err := h.service.ConsumeFreeAttempts(r.Context(), req.DeviceID, req.Consumed)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"ok":        true,
		"free_left": left,
	})
}

// SubmitPaymentHandler files a payment submission for admin review.
func (h *Handlers) SubmitPaymentHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceID string  `json:"device_id"`
		Tx       string  `json:"tx"`
		Plan     *string `json:"plan"`
		Comment  *string `json:"comment"`
		Amount   *int64  `json:"amount"`
		Currency *string `json:"currency"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sub, err := h.service.Submit(r.Context(), app.SubmitRequest{
		DeviceID: req.DeviceID,
		Tx:       req.Tx,
		Plan:     req.Plan,
		Comment:  req.Comment,
		Amount:   req.Amount,
		Currency: req.Currency,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, map[string]interface{}{
		"ok":         true,
		"payment_id": sub.ID,
	})
}

// ConfigHandler serves the configured plans and payment wallets.
func (h *Handlers) ConfigHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"plans":   h.plans,
		"wallets": h.wallets,
	})
}

// PendingPaymentsHandler lists all pending submissions, oldest first.
func (h *Handlers) PendingPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	subs, err := h.service.ListPending(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if subs == nil {
		subs = []domain.PaymentSubmission{}
	}
	respondWithJSON(w, http.StatusOK, subs)
}

// ActivateHandler approves a submission (or grants a manual activation) and
// extends the device's subscription.
func (h *Handlers) ActivateHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PaymentID *string `json:"payment_id"`
		DeviceID  string  `json:"device_id"`
		Months    int     `json:"months"`
		Dev       bool    `json:"dev"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	activate := app.ActivateRequest{
		DeviceID: req.DeviceID,
		Months:   req.Months,
		Dev:      req.Dev,
	}
	if req.PaymentID != nil {
		id, err := uuid.Parse(*req.PaymentID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid payment_id format")
			return
		}
		activate.PaymentID = &id
	}

	result, err := h.service.Activate(r.Context(), activate)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

// RejectHandler moves a pending submission to rejected.
func (h *Handlers) RejectHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PaymentID string `json:"payment_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id, err := uuid.Parse(req.PaymentID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid payment_id format")
		return
	}

	if err := h.service.Reject(r.Context(), id); err != nil {
		h.writeServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

// RevokeHandler clears a device's subscription.
func (h *Handlers) RevokeHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceID string `json:"device_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.service.Revoke(r.Context(), req.DeviceID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

// ListDevicesHandler lists all device records, most recently seen first.
func (h *Handlers) ListDevicesHandler(w http.ResponseWriter, r *http.Request) {
	devices, err := h.service.ListDevices(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, devices)
}

// DeleteDeviceHandler removes a device record entirely.
func (h *Handlers) DeleteDeviceHandler(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	if err := h.service.DeleteDevice(r.Context(), deviceID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

// SetFreeHandler overwrites a device's free attempt counter.
func (h *Handlers) SetFreeHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceID string `json:"device_id"`
		Count    int    `json:"count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	left, err := h.service.SetFreeAttempts(r.Context(), req.DeviceID, req.Count)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"ok":        true,
		"free_left": left,
	})
}

// writeServiceError maps service and store errors onto HTTP status codes.
// Every workflow failure is a distinct, non-retriable outcome.
func (h *Handlers) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrMissingDeviceID),
		errors.Is(err, app.ErrMissingTx),
		errors.Is(err, app.ErrInvalidMonths):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrSubmissionNotFound),
		errors.Is(err, store.ErrDeviceNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrSubmissionNotPending):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrDeviceMismatch):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithJSON is a helper function to write JSON responses.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
