package favorites

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/omarselim/souq-storefront/internal/identity"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	customerID, ok := identity.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusBadRequest, "missing identity")
		return
	}

	ids, err := h.service.List(r.Context(), customerID)
	if err != nil {
		h.logger.Error("failed to list favorites", "error", err, "customer_id", customerID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if ids == nil {
		ids = []string{}
	}

	h.writeJSON(w, http.StatusOK, map[string][]string{"product_ids": ids})
}

func (h *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	customerID, ok := identity.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusBadRequest, "missing identity")
		return
	}

	productID := r.PathValue("productId")
	if productID == "" {
		h.writeError(w, http.StatusBadRequest, "missing product id")
		return
	}

	if err := h.service.Add(r.Context(), customerID, productID); err != nil {
		h.logger.Error("failed to add favorite", "error", err, "customer_id", customerID, "product_id", productID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	customerID, ok := identity.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusBadRequest, "missing identity")
		return
	}

	productID := r.PathValue("productId")
	if productID == "" {
		h.writeError(w, http.StatusBadRequest, "missing product id")
		return
	}

	if err := h.service.Remove(r.Context(), customerID, productID); err != nil {
		h.logger.Error("failed to remove favorite", "error", err, "customer_id", customerID, "product_id", productID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
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
