// internal/controller/dlq_controller.go
package controller

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sequentia/remindflow-backend/internal/service"
)

type DLQController struct {
	DLQ *service.DLQService
}

func (c *DLQController) ListEntries(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	sourceTable := r.URL.Query().Get("source_table")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := c.DLQ.List(r.Context(), status, sourceTable, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"data": entries})
}

func (c *DLQController) GetEntry(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		http.Error(w, "invalid entry id", http.StatusBadRequest)
		return
	}

	entry, err := c.DLQ.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entry)
}

type reviewBody struct {
	ReviewedBy string  `json:"reviewed_by"`
	Notes      *string `json:"notes"`
}

func (c *DLQController) RetryEntry(w http.ResponseWriter, r *http.Request) {
	c.review(w, r, true)
}

func (c *DLQController) DiscardEntry(w http.ResponseWriter, r *http.Request) {
	c.review(w, r, false)
}

func (c *DLQController) review(w http.ResponseWriter, r *http.Request, retry bool) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		http.Error(w, "invalid entry id", http.StatusBadRequest)
		return
	}

	var body reviewBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	var entry interface{}
	if retry {
		entry, err = c.DLQ.Retry(r.Context(), id, body.ReviewedBy, body.Notes)
	} else {
		entry, err = c.DLQ.Discard(r.Context(), id, body.ReviewedBy, body.Notes)
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entry)
}
