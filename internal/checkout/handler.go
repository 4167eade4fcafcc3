package checkout

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/omarselim/souq-storefront/internal/coupon"
	"github.com/omarselim/souq-storefront/internal/domain"
	"github.com/omarselim/souq-storefront/internal/identity"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	customerID, ok := identity.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusBadRequest, "missing identity")
		return
	}

	session, err := h.service.Current(r.Context(), customerID)
	if err != nil {
		h.logger.Error("failed to load checkout session", "error", err, "customer_id", customerID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, session)
}

func (h *Handler) HandleBegin(w http.ResponseWriter, r *http.Request) {
	customerID, ok := identity.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusBadRequest, "missing identity")
		return
	}

	session, err := h.service.Begin(r.Context(), customerID)
	if err != nil {
		h.writeServiceError(w, err, customerID)
		return
	}

	h.writeJSON(w, http.StatusOK, session)
}

type shippingRequest struct {
	domain.ShippingInfo
	CouponCode string `json:"coupon_code"`
}

type shippingResponse struct {
	Session      *Session `json:"session"`
	CouponNotice string   `json:"coupon_notice,omitempty"`
}

func (h *Handler) HandleSubmitShipping(w http.ResponseWriter, r *http.Request) {
	customerID, ok := identity.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusBadRequest, "missing identity")
		return
	}

	var req shippingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, notice, err := h.service.SubmitShipping(r.Context(), customerID, req.ShippingInfo, req.CouponCode)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrShippingIncomplete):
			h.writeError(w, http.StatusBadRequest, "name, phone number and address are required")
		case errors.Is(err, domain.ErrInvalidPhone):
			h.writeError(w, http.StatusBadRequest, "phone number is not a valid Egyptian mobile number")
		default:
			h.writeServiceError(w, err, customerID)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, shippingResponse{Session: session, CouponNotice: notice})
}

type confirmRequest struct {
	PaymentMethod domain.PaymentMethod `json:"payment_method"`
}

func (h *Handler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	customerID, ok := identity.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusBadRequest, "missing identity")
		return
	}

	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.service.Confirm(r.Context(), customerID, req.PaymentMethod)
	if err != nil {
		h.writeServiceError(w, err, customerID)
		return
	}

	h.writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) HandleAbandon(w http.ResponseWriter, r *http.Request) {
	customerID, ok := identity.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusBadRequest, "missing identity")
		return
	}

	if err := h.service.Abandon(r.Context(), customerID); err != nil {
		h.writeServiceError(w, err, customerID)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error, customerID string) {
	if msg, rejected := coupon.RejectionMessage(err); rejected {
		h.writeError(w, http.StatusUnprocessableEntity, msg)
		return
	}

	switch {
	case errors.Is(err, ErrEmptyCart):
		h.writeError(w, http.StatusBadRequest, ErrEmptyCart.Error())
	case errors.Is(err, ErrInvalidMethod):
		h.writeError(w, http.StatusBadRequest, ErrInvalidMethod.Error())
	case errors.Is(err, ErrMethodUnavailable):
		h.writeError(w, http.StatusUnprocessableEntity, ErrMethodUnavailable.Error())
	case errors.Is(err, ErrCashDisabled):
		h.writeError(w, http.StatusUnprocessableEntity, ErrCashDisabled.Error())
	case errors.Is(err, ErrBadState):
		h.writeError(w, http.StatusConflict, ErrBadState.Error())
	case errors.Is(err, ErrCooldown):
		h.writeError(w, http.StatusTooManyRequests, ErrCooldown.Error())
	default:
		h.logger.Error("checkout request failed", "error", err, "customer_id", customerID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
