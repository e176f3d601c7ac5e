package service_test

import (
	"context"
	"errors"
	"testing"

	appErrors "github.com/sequentia/remindflow-backend/internal/errors"
	"github.com/sequentia/remindflow-backend/internal/model"
	"github.com/sequentia/remindflow-backend/internal/repository"
	"github.com/sequentia/remindflow-backend/internal/service"
)

func seedDeadLetter(t *testing.T, repo *repository.InMemoryDeadLetterRepository) *model.DeadLetterEntry {
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

func TestDLQRetryMarksHandledWithoutRequeue(t *testing.T) {
	dlqRepo := repository.NewInMemoryDeadLetterRepository()
	msgRepo := repository.NewInMemoryMessageRepository()
	svc := &service.DLQService{DeadLetters: dlqRepo}
	entry := seedDeadLetter(t, dlqRepo)

	note := "resent manually via ops console"
	reviewed, err := svc.Retry(context.Background(), entry.ID, "ops@example.com", &note)
	if err != nil {
		t.Fatal(err)
	}
	if reviewed.Status != model.ReviewRetried {
		t.Errorf("expected retried, got %s", reviewed.Status)
	}
	if reviewed.ReviewedAt == nil || reviewed.ReviewedBy == nil || *reviewed.ReviewedBy != "ops@example.com" {
		t.Error("expected reviewer metadata recorded")
	}
	if reviewed.Notes == nil || *reviewed.Notes != note {
		t.Error("expected note recorded")
	}

	// Marking retried must not touch the message store.
	msgs, _ := msgRepo.ListByEvent(context.Background(), 101, 0)
	if len(msgs) != 0 {
		t.Error("DLQ retry must not recreate or requeue message rows")
	}
}

func TestDLQTerminalStatesRejectFurtherActions(t *testing.T) {
	dlqRepo := repository.NewInMemoryDeadLetterRepository()
	svc := &service.DLQService{DeadLetters: dlqRepo}
	entry := seedDeadLetter(t, dlqRepo)

	note := "not worth retrying"
	if _, err := svc.Discard(context.Background(), entry.ID, "ops@example.com", &note); err != nil {
		t.Fatal(err)
	}

	var rErr *appErrors.ReviewActionError
	if _, err := svc.Retry(context.Background(), entry.ID, "ops2@example.com", nil); !errors.As(err, &rErr) {
		t.Fatalf("expected ReviewActionError retrying a discarded entry, got %v", err)
	}
	if _, err := svc.Discard(context.Background(), entry.ID, "ops2@example.com", nil); !errors.As(err, &rErr) {
		t.Fatalf("expected ReviewActionError discarding twice, got %v", err)
	}

	// The terminal action's metadata must survive the rejected attempts.
	current, _ := svc.Get(context.Background(), entry.ID)
	if current.Status != model.ReviewDiscarded {
		t.Errorf("expected discarded, got %s", current.Status)
	}
	if current.ReviewedBy == nil || *current.ReviewedBy != "ops@example.com" {
		t.Error("reviewed_by overwritten by a rejected action")
	}
	if current.Notes == nil || *current.Notes != note {
		t.Error("notes overwritten by a rejected action")
	}
}

func TestDLQListFilters(t *testing.T) {
	dlqRepo := repository.NewInMemoryDeadLetterRepository()
	svc := &service.DLQService{DeadLetters: dlqRepo}

	first := seedDeadLetter(t, dlqRepo)
	second := seedDeadLetter(t, dlqRepo)
	other := &model.DeadLetterEntry{
		OrganizationID: 1, SourceTable: "sms_messages", SourceID: 7,
		Payload: "{}", ErrorMessage: "number unreachable",
	}
	if err := dlqRepo.Create(context.Background(), other); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Discard(context.Background(), first.ID, "ops", nil); err != nil {
		t.Fatal(err)
	}

	pending, err := svc.List(context.Background(), string(model.ReviewPending), model.SourceScheduledMessages, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ID != second.ID {
		t.Errorf("expected only the second scheduled_messages entry pending, got %+v", pending)
	}

	all, _ := svc.List(context.Background(), "", "", 10)
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}
	// newest first
	if all[0].ID < all[1].ID || all[1].ID < all[2].ID {
		t.Error("expected newest-first ordering")
	}
}

func TestDLQGetMissing(t *testing.T) {
	svc := &service.DLQService{DeadLetters: repository.NewInMemoryDeadLetterRepository()}
	var nErr *appErrors.NotFoundError
	if _, err := svc.Get(context.Background(), 404); !errors.As(err, &nErr) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}
