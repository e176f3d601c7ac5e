// internal/service/scheduler_service.go
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/sequentia/remindflow-backend/internal/errors"
	"github.com/sequentia/remindflow-backend/internal/metrics"
	"github.com/sequentia/remindflow-backend/internal/model"
	"github.com/sequentia/remindflow-backend/internal/notify"
	"github.com/sequentia/remindflow-backend/internal/repository"
)

// SchedulerService materializes a sequence's abstract per-step timing rules
// into concrete scheduled_messages rows. One read, one batched write, no
// provider calls.
type SchedulerService struct {
	Messages repository.ScheduledMessageRepositoryInterface
	Notifier *notify.Notifier
	Log      *zap.Logger

	// Now is injectable for tests; nil means time.Now.
	Now func() time.Time
}

type ScheduleRequest struct {
	Event            model.Event
	Steps            []model.SequenceStep
	TargetChannelIDs []int64
	ManualVariables  map[string]string
	CreatedBy        string
}

type ScheduleResult struct {
	Created           int     `json:"created"`
	SkippedPast       int     `json:"skipped_past"`
	SkippedDuplicates int     `json:"skipped_duplicates"`
	MessageIDs        []int64 `json:"message_ids"`
}

func (s *SchedulerService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// ScheduleSequence runs the full materialization pass. It is idempotent:
// re-running it for the same event creates no second active row for any
// (step, target) slot.
func (s *SchedulerService) ScheduleSequence(ctx context.Context, req ScheduleRequest) (*ScheduleResult, error) {
	if len(req.Steps) == 0 {
		return nil, appErrors.NewValidation("sequence has no steps")
	}
	if len(req.TargetChannelIDs) == 0 {
		return nil, appErrors.NewValidation("no target channels given")
	}
	for _, step := range req.Steps {
		if strings.TrimSpace(step.Template.Content) == "" {
			return nil, appErrors.NewValidation("step %q has no template content", step.Label)
		}
	}

	loc, err := time.LoadLocation(req.Event.Timezone)
	if err != nil {
		return nil, appErrors.NewValidation("unknown timezone %q", req.Event.Timezone)
	}

	// The anchor date is the event start's calendar date in the org's zone,
	// not the raw UTC date. A 9pm IST event can sit on a different UTC date.
	localStart := req.Event.StartAt.In(loc)
	year, month, day := localStart.Date()

	builtins := map[string]string{
		VarEventTitle: req.Event.Title,
		VarEventDate:  localStart.Format("02 Jan 2006"),
		VarEventTime:  localStart.Format("3:04 PM"),
	}

	active, err := s.Messages.ActivePairs(ctx, req.Event.ID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	result := &ScheduleResult{MessageIDs: []int64{}}
	batch := []*model.ScheduledMessage{}

	for _, step := range req.Steps {
		sendTime, err := parseSendTime(step.SendTime)
		if err != nil {
			return nil, appErrors.NewValidation("step %q has invalid send time %q", step.Label, step.SendTime)
		}

		local := time.Date(year, month, day, sendTime.hour, sendTime.minute, sendTime.second, 0, loc)
		scheduledFor := local.UTC()

		if !scheduledFor.After(now) {
			result.SkippedPast += len(req.TargetChannelIDs)
			continue
		}

		rendered := RenderTemplate(step.Template.Content, builtins, req.ManualVariables)

		for _, channelID := range req.TargetChannelIDs {
			if active[repository.PairKey(step.Label, channelID)] {
				result.SkippedDuplicates++
				continue
			}
			batch = append(batch, &model.ScheduledMessage{
				OrganizationID:  req.Event.OrganizationID,
				EventID:         req.Event.ID,
				TargetChannelID: channelID,
				StepKey:         step.Label,
				RenderedContent: rendered,
				MediaRef:        step.Template.MediaRef,
				ScheduledFor:    scheduledFor,
				Status:          model.StatusPending,
				CreatedBy:       req.CreatedBy,
			})
		}
	}

	if len(batch) == 0 {
		return nil, appErrors.NewScheduling(
			"nothing to schedule: %d step(s) in the past, %d already active",
			result.SkippedPast, result.SkippedDuplicates)
	}

	created, err := s.Messages.CreateBatch(ctx, batch)
	if err != nil {
		return nil, err
	}
	if created == 0 {
		// a concurrent materialization claimed every slot first
		return nil, appErrors.NewScheduling("nothing to schedule: all steps already active")
	}

	for _, m := range batch {
		if m.ID == 0 {
			result.SkippedDuplicates++
			continue
		}
		result.MessageIDs = append(result.MessageIDs, m.ID)
		if s.Notifier != nil {
			s.Notifier.Publish(notify.Change{EventID: m.EventID, MessageID: m.ID, Status: m.Status})
		}
	}
	result.Created = created
	metrics.MessagesScheduled.Add(float64(created))

	if s.Log != nil {
		s.Log.Info("sequence materialized",
			zap.Int64("event_id", req.Event.ID),
			zap.Int("created", result.Created),
			zap.Int("skipped_past", result.SkippedPast),
			zap.Int("skipped_duplicates", result.SkippedDuplicates),
		)
	}
	return result, nil
}

type clockTime struct {
	hour, minute, second int
}

func parseSendTime(s string) (clockTime, error) {
	var t clockTime
	if _, err := fmt.Sscanf(s, "%d:%d:%d", &t.hour, &t.minute, &t.second); err != nil {
		// accept HH:MM too
		t.second = 0
		if _, err2 := fmt.Sscanf(s, "%d:%d", &t.hour, &t.minute); err2 != nil {
			return t, err
		}
	}
	if t.hour < 0 || t.hour > 23 || t.minute < 0 || t.minute > 59 || t.second < 0 || t.second > 59 {
		return t, fmt.Errorf("out of range: %s", s)
	}
	return t, nil
}
