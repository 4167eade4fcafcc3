package orders

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/omarselim/souq-storefront/internal/domain"
	"github.com/omarselim/souq-storefront/internal/identity"
	"github.com/omarselim/souq-storefront/internal/media"
)

// maxProofSize caps payment-proof uploads at 10 MiB.
const maxProofSize = 10 << 20

type repository interface {
	GetByID(ctx context.Context, customerID, id string) (*domain.Order, error)
	ListByCustomer(ctx context.Context, customerID string) ([]domain.Order, error)
	Cancel(ctx context.Context, customerID, id string) error
	AttachPaymentProof(ctx context.Context, customerID, id, proofURL string, uploadedAt time.Time) error
}

type Handler struct {
	repo     repository
	uploader media.Uploader
	logger   *slog.Logger
}

func NewHandler(repo repository, uploader media.Uploader, logger *slog.Logger) *Handler {
	return &Handler{
		repo:     repo,
		uploader: uploader,
		logger:   logger,
	}
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	customerID, ok := identity.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusBadRequest, "missing identity")
		return
	}

	orders, err := h.repo.ListByCustomer(r.Context(), customerID)
	if err != nil {
		h.logger.Error("failed to list orders", "error", err, "customer_id", customerID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	customerID, ok := identity.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusBadRequest, "missing identity")
		return
	}

	id := r.PathValue("id")
	order, err := h.repo.GetByID(r.Context(), customerID, id)
	if err != nil {
		h.logger.Error("failed to get order", "error", err, "order_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if order == nil {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

// HandleCancel cancels an order that is still in review. Once the order moves
// on to payment or fulfilment the window is closed.
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	customerID, ok := identity.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusBadRequest, "missing identity")
		return
	}

	id := r.PathValue("id")
	err := h.repo.Cancel(r.Context(), customerID, id)
	switch {
	case errors.Is(err, ErrNotFound):
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	case errors.Is(err, ErrNotCancellable):
		h.writeError(w, http.StatusConflict, "order can no longer be cancelled")
		return
	case err != nil:
		h.logger.Error("failed to cancel order", "error", err, "order_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("order cancelled", "order_id", id, "customer_id", customerID)
	w.WriteHeader(http.StatusNoContent)
}

// HandleUploadProof stores a transfer screenshot for an order waiting on
// payment and records its URL on the order.
func (h *Handler) HandleUploadProof(w http.ResponseWriter, r *http.Request) {
	customerID, ok := identity.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusBadRequest, "missing identity")
		return
	}

	id := r.PathValue("id")

	r.Body = http.MaxBytesReader(w, r.Body, maxProofSize)
	file, header, err := r.FormFile("proof")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "missing proof file")
		return
	}
	defer func() { _ = file.Close() }()

	// Check the order state before pushing bytes to the media host, so a
	// closed order does not leave orphaned uploads behind.
	order, err := h.repo.GetByID(r.Context(), customerID, id)
	if err != nil {
		h.logger.Error("failed to get order", "error", err, "order_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if order == nil {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}
	if order.Status != domain.OrderStatusWaitingPayment {
		h.writeError(w, http.StatusConflict, "order is not waiting for payment")
		return
	}

	proofURL, err := h.uploader.Upload(r.Context(), header.Filename, file)
	if err != nil {
		h.logger.Error("failed to upload payment proof", "error", err, "order_id", id)
		h.writeError(w, http.StatusBadGateway, "failed to store payment proof")
		return
	}

	uploadedAt := time.Now().UTC()
	err = h.repo.AttachPaymentProof(r.Context(), customerID, id, proofURL, uploadedAt)
	switch {
	case errors.Is(err, ErrNotFound):
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	case errors.Is(err, ErrProofClosed):
		h.writeError(w, http.StatusConflict, "order is not waiting for payment")
		return
	case err != nil:
		h.logger.Error("failed to record payment proof", "error", err, "order_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("payment proof recorded", "order_id", id, "customer_id", customerID)
	h.writeJSON(w, http.StatusOK, map[string]string{"payment_proof_url": proofURL})
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
