// internal/service/dlq_service.go
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/sequentia/remindflow-backend/internal/errors"
	"github.com/sequentia/remindflow-backend/internal/model"
	"github.com/sequentia/remindflow-backend/internal/repository"
)

// DLQService is the operator review workflow over dead letter entries.
// pending_review -> retried or discarded, both terminal.
type DLQService struct {
	DeadLetters repository.DeadLetterRepositoryInterface
	Log         *zap.Logger
	Now         func() time.Time
}

func (s *DLQService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *DLQService) List(ctx context.Context, status, sourceTable string, limit int) ([]*model.DeadLetterEntry, error) {
	return s.DeadLetters.List(ctx, status, sourceTable, limit)
}

func (s *DLQService) Get(ctx context.Context, id int64) (*model.DeadLetterEntry, error) {
	entry, err := s.DeadLetters.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, appErrors.NewNotFound("dead letter entry", id)
	}
	return entry, nil
}

// Retry marks the entry handled. It deliberately does NOT requeue the source
// message; that is a separate operator action against the message store, kept
// apart so a bad payload cannot loop through delivery forever.
func (s *DLQService) Retry(ctx context.Context, id int64, reviewedBy string, notes *string) (*model.DeadLetterEntry, error) {
	return s.review(ctx, id, model.ReviewRetried, reviewedBy, notes)
}

func (s *DLQService) Discard(ctx context.Context, id int64, reviewedBy string, notes *string) (*model.DeadLetterEntry, error) {
	return s.review(ctx, id, model.ReviewDiscarded, reviewedBy, notes)
}

func (s *DLQService) review(ctx context.Context, id int64, status model.ReviewStatus, reviewedBy string, notes *string) (*model.DeadLetterEntry, error) {
	entry, err := s.DeadLetters.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, appErrors.NewNotFound("dead letter entry", id)
	}

	ok, err := s.DeadLetters.MarkReviewed(ctx, id, status, reviewedBy, notes, s.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		// lost to a concurrent review, or the entry was already terminal
		current, err := s.DeadLetters.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, appErrors.NewReviewAction(id, string(current.Status))
	}

	if s.Log != nil {
		s.Log.Info("dead letter entry reviewed",
			zap.Int64("dead_letter_id", id),
			zap.String("action", string(status)),
			zap.String("reviewed_by", reviewedBy),
		)
	}
	return s.DeadLetters.GetByID(ctx, id)
}
