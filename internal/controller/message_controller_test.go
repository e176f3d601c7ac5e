package controller_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sequentia/remindflow-backend/internal/controller"
	"github.com/sequentia/remindflow-backend/internal/model"
	"github.com/sequentia/remindflow-backend/internal/notify"
	"github.com/sequentia/remindflow-backend/internal/repository"
	"github.com/sequentia/remindflow-backend/internal/service"
)

func fixedClock(s string) func() time.Time {
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return ts }
}

func newTestRouter(msgs *repository.InMemoryMessageRepository) *chi.Mux {
	notifier := notify.New()
	scheduler := &service.SchedulerService{
		Messages: msgs,
		Notifier: notifier,
		Now:      fixedClock("2025-06-01T00:00:00Z"),
	}
	delivery := &service.DeliveryService{
		Messages:    msgs,
		DeadLetters: repository.NewInMemoryDeadLetterRepository(),
		Notifier:    notifier,
	}
	ctrl := &controller.MessageController{
		Scheduler: scheduler,
		Delivery:  delivery,
		Messages:  msgs,
		Notifier:  notifier,
	}

	r := chi.NewRouter()
	r.Post("/events/{id}/schedule", ctrl.ScheduleSequence)
	r.Get("/events/{id}/messages", ctrl.ListEventMessages)
	r.Post("/messages/{id}/cancel", ctrl.CancelMessage)
	r.Post("/messages/{id}/requeue", ctrl.RequeueMessage)
	return r
}

func scheduleBody() map[string]interface{} {
	return map[string]interface{}{
		"event": map[string]interface{}{
			"organization_id": 1,
			"title":           "Options Masterclass",
			"start_at":        "2025-06-10T09:00:00Z",
			"timezone":        "Asia/Kolkata",
		},
		"steps": []map[string]interface{}{
			{
				"order":     1,
				"label":     "evening-reminder",
				"send_time": "19:00:00",
				"template":  map[string]interface{}{"content": "Starting soon: {event_title}"},
			},
		},
		"target_channel_ids": []int64{11, 12},
		"created_by":         "ops@example.com",
	}
}

func TestScheduleSequenceEndpoint(t *testing.T) {
	msgs := repository.NewInMemoryMessageRepository()
	router := newTestRouter(msgs)

	b, _ := json.Marshal(scheduleBody())
	req := httptest.NewRequest("POST", "/events/101/schedule", bytes.NewReader(b))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, w.Body.String())
	}

	var res struct {
		Created    int     `json:"created"`
		MessageIDs []int64 `json:"message_ids"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if res.Created != 2 {
		t.Errorf("expected 2 created (one step, two targets), got %d", res.Created)
	}
	if len(res.MessageIDs) != 2 {
		t.Errorf("expected 2 message ids, got %d", len(res.MessageIDs))
	}

	// The URL param wins over whatever event id the body carried.
	rows, _ := msgs.ListByEvent(context.Background(), 101, 0)
	if len(rows) != 2 {
		t.Errorf("expected rows under event 101, got %d", len(rows))
	}
}

func TestScheduleSequenceEndpointErrors(t *testing.T) {
	msgs := repository.NewInMemoryMessageRepository()
	router := newTestRouter(msgs)

	// Missing targets -> 400.
	body := scheduleBody()
	body["target_channel_ids"] = []int64{}
	b, _ := json.Marshal(body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/events/101/schedule", bytes.NewReader(b)))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty targets, got %d", w.Code)
	}

	// Successful run, then identical rerun -> 409 (everything duplicate).
	b, _ = json.Marshal(scheduleBody())
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/events/101/schedule", bytes.NewReader(b)))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}

	b, _ = json.Marshal(scheduleBody())
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/events/101/schedule", bytes.NewReader(b)))
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 on duplicate rerun, got %d", w.Code)
	}
}

func TestListEventMessagesEndpoint(t *testing.T) {
	msgs := repository.NewInMemoryMessageRepository()
	router := newTestRouter(msgs)

	b, _ := json.Marshal(scheduleBody())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/events/101/schedule", bytes.NewReader(b)))
	if w.Code != http.StatusCreated {
		t.Fatal("seed schedule failed")
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/events/101/messages", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var res struct {
		Data  []model.ScheduledMessage `json:"data"`
		Stats map[string]int           `json:"stats"`
	}
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(res.Data) != 2 {
		t.Errorf("expected 2 rows, got %d", len(res.Data))
	}
	if res.Stats["pending"] != 2 {
		t.Errorf("expected stats pending=2, got %v", res.Stats)
	}
}

func TestCancelAndRequeueEndpoints(t *testing.T) {
	msgs := repository.NewInMemoryMessageRepository()
	router := newTestRouter(msgs)

	b, _ := json.Marshal(scheduleBody())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/events/101/schedule", bytes.NewReader(b)))
	rows, _ := msgs.ListByEvent(context.Background(), 101, 0)
	if len(rows) == 0 {
		t.Fatal("seed schedule failed")
	}
	id := rows[0].ID

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/messages/"+itoa(id)+"/cancel", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on cancel, got %d", w.Code)
	}

	// Cancelling a cancelled row is a state conflict.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/messages/"+itoa(id)+"/cancel", nil))
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 on double cancel, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/messages/"+itoa(id)+"/requeue", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on requeue, got %d", w.Code)
	}

	// Unknown id -> 404.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/messages/99999/cancel", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown message, got %d", w.Code)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
