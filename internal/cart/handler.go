package cart

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
	service   *Service
	validator *coupon.Validator
	snapshots coupon.Cache
	logger    *slog.Logger
}

func NewHandler(service *Service, validator *coupon.Validator, snapshots coupon.Cache, logger *slog.Logger) *Handler {
	return &Handler{
		service:   service,
		validator: validator,
		snapshots: snapshots,
		logger:    logger,
	}
}

type cartResponse struct {
	Items         []domain.CartLine `json:"items"`
	Subtotal      int64             `json:"subtotal"`
	Total         int64             `json:"total"`
	CouponApplied bool              `json:"coupon_applied"`
	CouponCode    string            `json:"coupon_code,omitempty"`
}

// HandleGet returns the cart with totals. When a coupon code is passed, only
// the identity's cached accepted snapshot is consulted; an edited or
// never-applied code simply yields undiscounted totals, with no remote read.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	customerID, ok := identity.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusBadRequest, "missing identity")
		return
	}

	lines, err := h.service.Get(r.Context(), customerID)
	if err != nil {
		h.logger.Error("failed to load cart", "error", err, "customer_id", customerID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	var accepted *domain.Coupon
	code := coupon.Canonical(r.URL.Query().Get("coupon"))
	if code != "" && !identity.IsGuest(customerID) {
		accepted, err = h.snapshots.Accepted(r.Context(), customerID, code)
		if err != nil {
			h.logger.Warn("failed to read coupon snapshot", "error", err, "customer_id", customerID)
			accepted = nil
		}
	}

	subtotal, total := Totals(lines, accepted)
	resp := cartResponse{Items: lines, Subtotal: subtotal, Total: total}
	if accepted != nil {
		resp.CouponApplied = true
		resp.CouponCode = accepted.Code
	}
	if resp.Items == nil {
		resp.Items = []domain.CartLine{}
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type addItemRequest struct {
	ProductID    string `json:"product_id"`
	VariantIndex *int   `json:"variant_index"`
}

func (h *Handler) HandleAddItem(w http.ResponseWriter, r *http.Request) {
	customerID, ok := identity.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusBadRequest, "missing identity")
		return
	}

	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProductID == "" {
		h.writeError(w, http.StatusBadRequest, "missing product id")
		return
	}

	variantIndex := -1
	if req.VariantIndex != nil {
		variantIndex = *req.VariantIndex
	}

	lines, err := h.service.Add(r.Context(), customerID, req.ProductID, variantIndex)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			h.writeError(w, http.StatusNotFound, "product not found")
			return
		}
		h.logger.Error("failed to add to cart", "error", err, "customer_id", customerID, "product_id", req.ProductID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("cart item added", "customer_id", customerID, "product_id", req.ProductID)
	subtotal, total := Totals(lines, nil)
	h.writeJSON(w, http.StatusOK, cartResponse{Items: lines, Subtotal: subtotal, Total: total})
}

type adjustQuantityRequest struct {
	VariantName string `json:"variant_name"`
	Action      string `json:"action"`
}

func (h *Handler) HandleAdjustQuantity(w http.ResponseWriter, r *http.Request) {
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

	var req adjustQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var delta int
	switch req.Action {
	case "increase":
		delta = 1
	case "decrease":
		delta = -1
	default:
		h.writeError(w, http.StatusBadRequest, "action must be increase or decrease")
		return
	}

	lines, err := h.service.AdjustQuantity(r.Context(), customerID, productID, req.VariantName, delta)
	if err != nil {
		h.logger.Error("failed to adjust quantity", "error", err, "customer_id", customerID, "product_id", productID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	subtotal, total := Totals(lines, nil)
	h.writeJSON(w, http.StatusOK, cartResponse{Items: lines, Subtotal: subtotal, Total: total})
}

func (h *Handler) HandleRemoveItem(w http.ResponseWriter, r *http.Request) {
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

	lines, err := h.service.Remove(r.Context(), customerID, productID, r.URL.Query().Get("variant_name"))
	if err != nil {
		h.logger.Error("failed to remove cart item", "error", err, "customer_id", customerID, "product_id", productID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("cart item removed", "customer_id", customerID, "product_id", productID)
	subtotal, total := Totals(lines, nil)
	h.writeJSON(w, http.StatusOK, cartResponse{Items: lines, Subtotal: subtotal, Total: total})
}

type applyCouponRequest struct {
	Code string `json:"code"`
}

// HandleApplyCoupon validates a coupon against the authoritative store and,
// when accepted, caches the snapshot and returns discounted totals.
func (h *Handler) HandleApplyCoupon(w http.ResponseWriter, r *http.Request) {
	customerID, ok := identity.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusBadRequest, "missing identity")
		return
	}
	if identity.IsGuest(customerID) {
		h.writeError(w, http.StatusUnauthorized, "sign in to use a coupon")
		return
	}

	var req applyCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if coupon.Canonical(req.Code) == "" {
		h.writeError(w, http.StatusBadRequest, "missing coupon code")
		return
	}

	lines, err := h.service.Get(r.Context(), customerID)
	if err != nil {
		h.logger.Error("failed to load cart", "error", err, "customer_id", customerID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if len(lines) == 0 {
		h.writeError(w, http.StatusBadRequest, "cart is empty")
		return
	}

	accepted, err := h.validator.Apply(r.Context(), req.Code, customerID)
	if err != nil {
		if msg, rejected := coupon.RejectionMessage(err); rejected {
			h.writeError(w, http.StatusUnprocessableEntity, msg)
			return
		}
		h.logger.Error("coupon validation failed", "error", err, "customer_id", customerID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("coupon applied", "customer_id", customerID, "code", accepted.Code)
	subtotal, total := Totals(lines, accepted)
	h.writeJSON(w, http.StatusOK, cartResponse{
		Items:         lines,
		Subtotal:      subtotal,
		Total:         total,
		CouponApplied: true,
		CouponCode:    accepted.Code,
	})
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
