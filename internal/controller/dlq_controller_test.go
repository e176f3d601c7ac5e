package controller_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/sequentia/remindflow-backend/internal/controller"
	"github.com/sequentia/remindflow-backend/internal/model"
	"github.com/sequentia/remindflow-backend/internal/repository"
	"github.com/sequentia/remindflow-backend/internal/service"
)

func newDLQRouter(repo *repository.InMemoryDeadLetterRepository) *chi.Mux {
	ctrl := &controller.DLQController{
		DLQ: &service.DLQService{DeadLetters: repo},
	}
	r := chi.NewRouter()
	r.Get("/dead-letters", ctrl.ListEntries)
	r.Get("/dead-letters/{id}", ctrl.GetEntry)
	r.Post("/dead-letters/{id}/retry", ctrl.RetryEntry)
	r.Post("/dead-letters/{id}/discard", ctrl.DiscardEntry)
	return r
}

func seedEntry(t *testing.T, repo *repository.InMemoryDeadLetterRepository) *model.DeadLetterEntry {
	t.Helper()
	entry := &model.DeadLetterEntry{
		OrganizationID: 1,
		SourceTable:    model.SourceScheduledMessages,
		SourceID:       42,
		Payload:        `{"message_id":42}`,
		ErrorMessage:   "gateway rejected recipient",
		RetryCount:     3,
	}
	if err := repo.Create(context.Background(), entry); err != nil {
		t.Fatal(err)
	}
	return entry
}

func TestDLQListAndGetEndpoints(t *testing.T) {
	repo := repository.NewInMemoryDeadLetterRepository()
	router := newDLQRouter(repo)
	entry := seedEntry(t, repo)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/dead-letters?status=pending_review", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var list struct {
		Data []model.DeadLetterEntry `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(list.Data) != 1 || list.Data[0].ID != entry.ID {
		t.Errorf("unexpected list payload: %+v", list.Data)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/dead-letters/"+itoa(entry.ID), nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/dead-letters/99999", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown entry, got %d", w.Code)
	}
}

func TestDLQRetryEndpoint(t *testing.T) {
	repo := repository.NewInMemoryDeadLetterRepository()
	router := newDLQRouter(repo)
	entry := seedEntry(t, repo)

	body, _ := json.Marshal(map[string]interface{}{
		"reviewed_by": "ops@example.com",
		"notes":       "resent manually",
	})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/dead-letters/"+itoa(entry.ID)+"/retry", bytes.NewReader(body)))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var res model.DeadLetterEntry
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if res.Status != model.ReviewRetried {
		t.Errorf("expected retried, got %s", res.Status)
	}
	if res.ReviewedBy == nil || *res.ReviewedBy != "ops@example.com" {
		t.Error("expected reviewed_by recorded")
	}

	// Acting on a terminal entry is a conflict.
	body, _ = json.Marshal(map[string]interface{}{"reviewed_by": "ops2@example.com"})
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/dead-letters/"+itoa(entry.ID)+"/discard", bytes.NewReader(body)))
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 discarding a retried entry, got %d", w.Code)
	}
}
