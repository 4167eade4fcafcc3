package media

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Handler is a development stand-in for the media host. It accepts uploads,
// discards the bytes, and answers with a plausible URL after a small delay.
type Handler struct {
	publicBase string
	logger     *slog.Logger
}

func NewHandler(publicBase string, logger *slog.Logger) *Handler {
	return &Handler{
		publicBase: publicBase,
		logger:     logger,
	}
}

func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer func() { _ = file.Close() }()

	delay := time.Duration(50+rand.Intn(151)) * time.Millisecond
	time.Sleep(delay)

	url := fmt.Sprintf("%s/media/%s%s", h.publicBase, uuid.New().String(), filepath.Ext(header.Filename))
	h.logger.Info("media stored", "filename", header.Filename, "size", header.Size, "url", url)

	h.writeJSON(w, http.StatusOK, uploadResponse{URL: url})
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
