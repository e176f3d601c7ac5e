package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sequentia/remindflow-backend/internal/model"
)

// InMemoryMessageRepository mirrors the Postgres repository's transition
// semantics without a database. Used by the tests and for local runs.
type InMemoryMessageRepository struct {
	mu     sync.Mutex
	nextID int64
	msgs   map[int64]*model.ScheduledMessage
}

func NewInMemoryMessageRepository() *InMemoryMessageRepository {
	return &InMemoryMessageRepository{msgs: map[int64]*model.ScheduledMessage{}}
}

func (r *InMemoryMessageRepository) CreateBatch(ctx context.Context, msgs []*model.ScheduledMessage) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	created := 0
	for _, m := range msgs {
		if r.activeLocked(m.EventID, m.StepKey, m.TargetChannelID) {
			continue
		}
		r.nextID++
		m.ID = r.nextID
		m.Status = model.StatusPending
		m.CreatedAt = time.Now().UTC()
		m.UpdatedAt = m.CreatedAt
		cp := *m
		r.msgs[m.ID] = &cp
		created++
	}
	return created, nil
}

func (r *InMemoryMessageRepository) activeLocked(eventID int64, stepKey string, channelID int64) bool {
	for _, m := range r.msgs {
		if m.EventID == eventID && m.StepKey == stepKey && m.TargetChannelID == channelID &&
			(m.Status == model.StatusPending || m.Status == model.StatusSending) {
			return true
		}
	}
	return false
}

func (r *InMemoryMessageRepository) GetByID(ctx context.Context, id int64) (*model.ScheduledMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.msgs[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (r *InMemoryMessageRepository) ListByEvent(ctx context.Context, eventID int64, limit int) ([]*model.ScheduledMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 {
		limit = 200
	}
	out := []*model.ScheduledMessage{}
	for _, m := range r.msgs {
		if m.EventID == eventID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledFor.Equal(out[j].ScheduledFor) {
			return out[i].ID < out[j].ID
		}
		return out[i].ScheduledFor.Before(out[j].ScheduledFor)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *InMemoryMessageRepository) StatsByEvent(ctx context.Context, eventID int64) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := map[string]int{
		"pending": 0, "sending": 0, "sent": 0, "failed": 0, "cancelled": 0, "total": 0,
	}
	for _, m := range r.msgs {
		if m.EventID == eventID {
			stats[string(m.Status)]++
			stats["total"]++
		}
	}
	return stats, nil
}

func (r *InMemoryMessageRepository) ActivePairs(ctx context.Context, eventID int64) (map[string]bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pairs := map[string]bool{}
	for _, m := range r.msgs {
		if m.EventID == eventID && (m.Status == model.StatusPending || m.Status == model.StatusSending) {
			pairs[PairKey(m.StepKey, m.TargetChannelID)] = true
		}
	}
	return pairs, nil
}

func (r *InMemoryMessageRepository) ListDueIDs(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	due := []*model.ScheduledMessage{}
	for _, m := range r.msgs {
		if m.Status == model.StatusPending && !m.ScheduledFor.After(now) {
			due = append(due, m)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledFor.Before(due[j].ScheduledFor) })
	ids := []int64{}
	for _, m := range due {
		if len(ids) == limit {
			break
		}
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (r *InMemoryMessageRepository) ListStaleSending(ctx context.Context, cutoff time.Time, limit int) ([]*model.ScheduledMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	out := []*model.ScheduledMessage{}
	for _, m := range r.msgs {
		if m.Status == model.StatusSending && m.UpdatedAt.Before(cutoff) {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *InMemoryMessageRepository) Status(ctx context.Context, id int64) (model.MessageStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.msgs[id]
	if !ok {
		return "", nil
	}
	return m.Status, nil
}

func (r *InMemoryMessageRepository) swap(id int64, from []model.MessageStatus, apply func(*model.ScheduledMessage)) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.msgs[id]
	if !ok {
		return false, nil
	}
	matched := false
	for _, s := range from {
		if m.Status == s {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	apply(m)
	m.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *InMemoryMessageRepository) Claim(ctx context.Context, id int64) (bool, error) {
	return r.swap(id, []model.MessageStatus{model.StatusPending}, func(m *model.ScheduledMessage) {
		m.Status = model.StatusSending
	})
}

func (r *InMemoryMessageRepository) MarkSent(ctx context.Context, id int64, at time.Time) (bool, error) {
	return r.swap(id, []model.MessageStatus{model.StatusSending}, func(m *model.ScheduledMessage) {
		m.Status = model.StatusSent
		t := at.UTC()
		m.SentAt = &t
		m.ErrorMessage = ""
	})
}

func (r *InMemoryMessageRepository) MarkRetry(ctx context.Context, id int64, errMsg string) (bool, error) {
	return r.swap(id, []model.MessageStatus{model.StatusSending}, func(m *model.ScheduledMessage) {
		m.Status = model.StatusPending
		m.ErrorMessage = errMsg
		m.RetryCount++
	})
}

func (r *InMemoryMessageRepository) MarkFailed(ctx context.Context, id int64, errMsg string) (bool, error) {
	return r.swap(id, []model.MessageStatus{model.StatusSending}, func(m *model.ScheduledMessage) {
		m.Status = model.StatusFailed
		m.ErrorMessage = errMsg
	})
}

func (r *InMemoryMessageRepository) Cancel(ctx context.Context, id int64) (bool, error) {
	return r.swap(id, []model.MessageStatus{model.StatusPending, model.StatusSending}, func(m *model.ScheduledMessage) {
		m.Status = model.StatusCancelled
	})
}

func (r *InMemoryMessageRepository) Requeue(ctx context.Context, id int64) (bool, error) {
	return r.swap(id, []model.MessageStatus{model.StatusFailed, model.StatusCancelled}, func(m *model.ScheduledMessage) {
		m.Status = model.StatusPending
		m.ErrorMessage = ""
		m.RetryCount = 0
	})
}

// TouchUpdatedAt backdates a row's updated_at; test hook for the reaper.
func (r *InMemoryMessageRepository) TouchUpdatedAt(id int64, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.msgs[id]; ok {
		m.UpdatedAt = at
	}
}

var _ ScheduledMessageRepositoryInterface = (*InMemoryMessageRepository)(nil)

// InMemoryDeadLetterRepository is the DLQ counterpart.
type InMemoryDeadLetterRepository struct {
	mu      sync.Mutex
	nextID  int64
	entries map[int64]*model.DeadLetterEntry
}

func NewInMemoryDeadLetterRepository() *InMemoryDeadLetterRepository {
	return &InMemoryDeadLetterRepository{entries: map[int64]*model.DeadLetterEntry{}}
}

func (r *InMemoryDeadLetterRepository) Create(ctx context.Context, e *model.DeadLetterEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	e.ID = r.nextID
	if e.Status == "" {
		e.Status = model.ReviewPending
	}
	e.CreatedAt = time.Now().UTC()
	cp := *e
	r.entries[e.ID] = &cp
	return nil
}

func (r *InMemoryDeadLetterRepository) GetByID(ctx context.Context, id int64) (*model.DeadLetterEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (r *InMemoryDeadLetterRepository) List(ctx context.Context, status, sourceTable string, limit int) ([]*model.DeadLetterEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	out := []*model.DeadLetterEntry{}
	for _, e := range r.entries {
		if status != "" && string(e.Status) != status {
			continue
		}
		if sourceTable != "" && e.SourceTable != sourceTable {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *InMemoryDeadLetterRepository) MarkReviewed(ctx context.Context, id int64, status model.ReviewStatus, reviewedBy string, notes *string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.Status != model.ReviewPending {
		return false, nil
	}
	e.Status = status
	t := at.UTC()
	e.ReviewedAt = &t
	e.ReviewedBy = &reviewedBy
	e.Notes = notes
	return true, nil
}

var _ DeadLetterRepositoryInterface = (*InMemoryDeadLetterRepository)(nil)
