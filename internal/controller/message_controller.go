// internal/controller/message_controller.go
package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/sequentia/remindflow-backend/internal/errors"
	"github.com/sequentia/remindflow-backend/internal/model"
	"github.com/sequentia/remindflow-backend/internal/notify"
	"github.com/sequentia/remindflow-backend/internal/repository"
	"github.com/sequentia/remindflow-backend/internal/service"
)

type MessageController struct {
	Scheduler *service.SchedulerService
	Delivery  *service.DeliveryService
	Messages  repository.ScheduledMessageRepositoryInterface
	Notifier  *notify.Notifier
}

func writeServiceError(w http.ResponseWriter, err error) {
	var vErr *appErrors.ValidationError
	var sErr *appErrors.SchedulingError
	var tErr *appErrors.TransitionError
	var rErr *appErrors.ReviewActionError
	var nErr *appErrors.NotFoundError

	switch {
	case errors.As(err, &vErr):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &sErr):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.As(err, &tErr):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.As(err, &rErr):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.As(err, &nErr):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// ScheduleSequence materializes a sequence for an event. The event and step
// payloads come from the external registry/catalog; the API is the boundary.
func (c *MessageController) ScheduleSequence(w http.ResponseWriter, r *http.Request) {
	eventIDStr := chi.URLParam(r, "id")
	eventID, err := strconv.ParseInt(eventIDStr, 10, 64)
	if err != nil {
		http.Error(w, "invalid event id", http.StatusBadRequest)
		return
	}

	var body struct {
		Event            model.Event         `json:"event"`
		Steps            []model.SequenceStep `json:"steps"`
		TargetChannelIDs []int64             `json:"target_channel_ids"`
		ManualVariables  map[string]string   `json:"manual_variables"`
		CreatedBy        string              `json:"created_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	body.Event.ID = eventID

	result, err := c.Scheduler.ScheduleSequence(r.Context(), service.ScheduleRequest{
		Event:            body.Event,
		Steps:            body.Steps,
		TargetChannelIDs: body.TargetChannelIDs,
		ManualVariables:  body.ManualVariables,
		CreatedBy:        body.CreatedBy,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(result)
}

// ListEventMessages returns an event's rows plus per-status stats.
func (c *MessageController) ListEventMessages(w http.ResponseWriter, r *http.Request) {
	eventIDStr := chi.URLParam(r, "id")
	eventID, err := strconv.ParseInt(eventIDStr, 10, 64)
	if err != nil {
		http.Error(w, "invalid event id", http.StatusBadRequest)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	msgs, err := c.Messages.ListByEvent(r.Context(), eventID, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	stats, err := c.Messages.StatsByEvent(r.Context(), eventID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"data":  msgs,
		"stats": stats,
	})
}

func (c *MessageController) CancelMessage(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		http.Error(w, "invalid message id", http.StatusBadRequest)
		return
	}

	if err := c.Delivery.CancelMessage(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"id": id, "status": "cancelled"})
}

func (c *MessageController) RequeueMessage(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		http.Error(w, "invalid message id", http.StatusBadRequest)
		return
	}

	if err := c.Delivery.RequeueMessage(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"id": id, "status": "pending"})
}

// StreamEventChanges is a server-sent events feed of status changes for one
// event. Clients should re-fetch on every tick rather than trust the payload.
func (c *MessageController) StreamEventChanges(w http.ResponseWriter, r *http.Request) {
	eventIDStr := chi.URLParam(r, "id")
	eventID, err := strconv.ParseInt(eventIDStr, 10, 64)
	if err != nil {
		http.Error(w, "invalid event id", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	changes := make(chan notify.Change, 16)
	unsubscribe := c.Notifier.Subscribe(eventID, func(ch notify.Change) {
		select {
		case changes <- ch:
		default:
			// slow client, drop; at-least-once is satisfied by re-fetch
		}
	})
	defer unsubscribe()

	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ch := <-changes:
			payload, _ := json.Marshal(ch)
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
