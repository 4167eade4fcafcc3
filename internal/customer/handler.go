package customer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/omarselim/souq-storefront/internal/domain"
	"github.com/omarselim/souq-storefront/internal/identity"
)

type store interface {
	GetShipping(ctx context.Context, customerID string, guest bool) (*domain.ShippingInfo, error)
	SaveShipping(ctx context.Context, customerID string, guest bool, info domain.ShippingInfo) error
}

type Handler struct {
	store  store
	logger *slog.Logger
}

func NewHandler(store store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

func (h *Handler) HandleGetShipping(w http.ResponseWriter, r *http.Request) {
	customerID, ok := identity.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusBadRequest, "missing identity")
		return
	}

	info, err := h.store.GetShipping(r.Context(), customerID, identity.IsGuest(customerID))
	if err != nil {
		h.logger.Error("failed to load shipping profile", "error", err, "customer_id", customerID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if info == nil {
		h.writeError(w, http.StatusNotFound, "no shipping profile saved")
		return
	}

	h.writeJSON(w, http.StatusOK, info)
}

func (h *Handler) HandleSaveShipping(w http.ResponseWriter, r *http.Request) {
	customerID, ok := identity.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusBadRequest, "missing identity")
		return
	}

	var info domain.ShippingInfo
	if err := json.NewDecoder(r.Body).Decode(&info); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := info.Validate(); err != nil {
		switch {
		case errors.Is(err, domain.ErrShippingIncomplete):
			h.writeError(w, http.StatusBadRequest, "name, phone number and address are required")
		case errors.Is(err, domain.ErrInvalidPhone):
			h.writeError(w, http.StatusBadRequest, "phone number is not a valid Egyptian mobile number")
		default:
			h.writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	if err := h.store.SaveShipping(r.Context(), customerID, identity.IsGuest(customerID), info); err != nil {
		h.logger.Error("failed to save shipping profile", "error", err, "customer_id", customerID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("shipping profile saved", "customer_id", customerID)
	h.writeJSON(w, http.StatusOK, info)
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
