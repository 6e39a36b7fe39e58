// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package newsletter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mpellar/vigil/internal/config"
	"github.com/mpellar/vigil/internal/database"
	"github.com/mpellar/vigil/internal/logging"
	"github.com/mpellar/vigil/internal/metrics"
	"github.com/mpellar/vigil/internal/models"
	"github.com/mpellar/vigil/internal/notify"
)

const (
	defaultCheckInterval    = time.Minute
	defaultMaxConcurrent    = 5
	defaultExecutionTimeout = 5 * time.Minute

	// Delivery retry policy, matching event notifications.
	deliveryRetries    = 3
	deliveryBaseDelay  = 1 * time.Second
	deliveryMaxDelay   = 30 * time.Second
	failedRunPushDelay = 24 * time.Hour
)

// Scheduler runs stored newsletter schedules. Each check it loads the
// schedules whose next run time has arrived, resolves their content,
// renders the templates, and delivers through the notifier each
// schedule points at.
type Scheduler struct {
	db       *database.DB
	cfg      config.NewsletterConfig
	resolver *ContentResolver
	engine   *TemplateEngine
	channels map[string]notify.Channel
}

// NewScheduler creates the scheduler. Zero config values fall back to
// the package defaults.
func NewScheduler(db *database.DB, cfg config.NewsletterConfig) *Scheduler {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = defaultCheckInterval
	}
	if cfg.MaxConcurrentDeliveries <= 0 {
		cfg.MaxConcurrentDeliveries = defaultMaxConcurrent
	}
	if cfg.ExecutionTimeout <= 0 {
		cfg.ExecutionTimeout = defaultExecutionTimeout
	}
	return &Scheduler{
		db:       db,
		cfg:      cfg,
		resolver: NewContentResolver(db, cfg.ServerName),
		engine:   NewTemplateEngine(),
		channels: notify.Channels(),
	}
}

// Serve runs the schedule loop until the context is canceled. Schedules
// left without a next run time are seeded first, then due schedules are
// checked immediately so a restart does not wait out a full interval.
func (s *Scheduler) Serve(ctx context.Context) error {
	logging.Info().
		Dur("check_interval", s.cfg.CheckInterval).
		Int("max_concurrent", s.cfg.MaxConcurrentDeliveries).
		Msg("Newsletter scheduler started")

	s.seedNextRuns(ctx)
	s.checkDue(ctx)

	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("Newsletter scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.checkDue(ctx)
		}
	}
}

func (s *Scheduler) String() string {
	return "newsletter-scheduler"
}

// seedNextRuns computes next run times for enabled schedules that have
// none, such as schedules created before the scheduler was enabled.
func (s *Scheduler) seedNextRuns(ctx context.Context) {
	schedules, err := s.db.GetNewsletterSchedules(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to load newsletter schedules for seeding")
		return
	}

	now := time.Now()
	for i := range schedules {
		schedule := &schedules[i]
		if !schedule.Enabled || schedule.NextRunAt != nil {
			continue
		}
		next, err := CalculateNextRun(schedule.CronExpr, now, "")
		if err != nil {
			logging.Warn().Err(err).
				Int64("schedule_id", schedule.ID).
				Str("cron", schedule.CronExpr).
				Msg("Newsletter schedule has an unparseable cron expression")
			continue
		}
		if err := s.db.UpdateScheduleNextRun(ctx, schedule.ID, next); err != nil {
			logging.Warn().Err(err).
				Int64("schedule_id", schedule.ID).
				Msg("Failed to seed newsletter next run time")
			continue
		}
		logging.Debug().
			Int64("schedule_id", schedule.ID).
			Time("next_run", next).
			Msg("Seeded newsletter next run time")
	}
}

// checkDue executes every due schedule, bounded by the concurrency
// limit, and waits for the batch to finish before returning so check
// cycles never overlap.
func (s *Scheduler) checkDue(ctx context.Context) {
	due, err := s.db.GetSchedulesDue(ctx, time.Now())
	if err != nil {
		logging.Error().Err(err).Msg("Failed to load due newsletter schedules")
		return
	}
	if len(due) == 0 {
		return
	}

	logging.Info().Int("count", len(due)).Msg("Executing due newsletter schedules")

	sem := make(chan struct{}, s.cfg.MaxConcurrentDeliveries)
	var wg sync.WaitGroup
	for i := range due {
		schedule := due[i]
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			s.execute(ctx, &schedule)
		}()
	}
	wg.Wait()
}

// execute runs one schedule and advances its next run time. A failed or
// timed-out run still advances, otherwise the schedule would go due
// again on every check.
func (s *Scheduler) execute(ctx context.Context, schedule *models.NewsletterSchedule) {
	entry, runErr := s.RunNow(ctx, schedule)
	nextRun := s.nextRunAfter(schedule, entry.StartedAt)

	if err := s.db.UpdateScheduleAfterRun(ctx, schedule.ID, entry.StartedAt, nextRun); err != nil {
		logging.Error().Err(err).
			Int64("schedule_id", schedule.ID).
			Msg("Failed to advance newsletter schedule")
	}

	if runErr != nil {
		logging.Error().Err(runErr).
			Int64("schedule_id", schedule.ID).
			Str("name", schedule.Name).
			Msg("Newsletter run failed")
		return
	}
	logging.Info().
		Int64("schedule_id", schedule.ID).
		Str("name", schedule.Name).
		Int("items", entry.ItemCount).
		Time("next_run", nextRun).
		Msg("Newsletter run finished")
}

// RunNow executes one schedule immediately and records the outcome in
// the newsletter log. It does not touch the schedule's next run time,
// so an on-demand send never shifts the regular cadence. The delivery
// is bounded by the execution timeout; the log insert uses the outer
// context so a timed-out run is still recorded.
func (s *Scheduler) RunNow(ctx context.Context, schedule *models.NewsletterSchedule) (*models.NewsletterLogEntry, error) {
	started := time.Now()

	execCtx, cancel := context.WithTimeout(ctx, s.cfg.ExecutionTimeout)
	subject, itemCount, runErr := s.deliver(execCtx, schedule)
	cancel()
	finished := time.Now()

	metrics.RecordNewsletterRun(finished.Sub(started), itemCount, runErr)

	entry := &models.NewsletterLogEntry{
		ID:         uuid.New(),
		ScheduleID: schedule.ID,
		Subject:    subject,
		ItemCount:  itemCount,
		Success:    runErr == nil,
		StartedAt:  started.UTC(),
		FinishedAt: finished.UTC(),
	}
	if runErr != nil {
		entry.Error = runErr.Error()
	}
	if err := s.db.InsertNewsletterLog(ctx, entry); err != nil {
		logging.Warn().Err(err).
			Int64("schedule_id", schedule.ID).
			Msg("Failed to record newsletter log entry")
	}
	return entry, runErr
}

// Rendered is a fully rendered newsletter issue, produced without
// sending anything. The API preview endpoint returns it verbatim.
type Rendered struct {
	Subject   string `json:"subject"`
	BodyHTML  string `json:"body_html"`
	BodyText  string `json:"body_text"`
	ItemCount int    `json:"item_count"`
}

// Render resolves a schedule's content and renders its subject and both
// body forms without delivering.
func (s *Scheduler) Render(ctx context.Context, schedule *models.NewsletterSchedule) (*Rendered, error) {
	data, err := s.resolver.Resolve(ctx, schedule)
	if err != nil {
		return nil, fmt.Errorf("resolve content: %w", err)
	}
	return s.renderAll(schedule, data)
}

// renderAll renders subject, HTML body and plaintext body from already
// resolved content. A custom BodyHTML overrides the built-in HTML
// template; the plaintext part always comes from the built-in so email
// clients without HTML still get a usable issue.
func (s *Scheduler) renderAll(schedule *models.NewsletterSchedule, data *ContentData) (*Rendered, error) {
	subjectTmpl := schedule.Subject
	if subjectTmpl == "" {
		subjectTmpl = DefaultSubjectTemplate
	}
	subject, err := s.engine.RenderSubject(subjectTmpl, data)
	if err != nil {
		return nil, fmt.Errorf("render subject: %w", err)
	}

	htmlTmpl, textTmpl, err := BuiltinTemplate(schedule.Template)
	if err != nil {
		return nil, err
	}
	if schedule.BodyHTML != "" {
		htmlTmpl = schedule.BodyHTML
	}

	bodyHTML, err := s.engine.RenderHTML(htmlTmpl, data)
	if err != nil {
		return nil, fmt.Errorf("render body: %w", err)
	}
	bodyText, err := s.engine.RenderText(textTmpl, data)
	if err != nil {
		return nil, fmt.Errorf("render text body: %w", err)
	}

	return &Rendered{
		Subject:   subject,
		BodyHTML:  bodyHTML,
		BodyText:  bodyText,
		ItemCount: data.TotalItems,
	}, nil
}

// deliver resolves, renders, and sends one newsletter. A run with no
// content in the time frame returns successfully without sending
// anything.
func (s *Scheduler) deliver(ctx context.Context, schedule *models.NewsletterSchedule) (subject string, itemCount int, err error) {
	data, err := s.resolver.Resolve(ctx, schedule)
	if err != nil {
		return "", 0, fmt.Errorf("resolve content: %w", err)
	}

	rendered, err := s.renderAll(schedule, data)
	if err != nil {
		return "", data.TotalItems, err
	}

	if rendered.ItemCount == 0 {
		logging.Info().
			Int64("schedule_id", schedule.ID).
			Str("name", schedule.Name).
			Msg("Newsletter has no new content, skipping delivery")
		return rendered.Subject, 0, nil
	}

	notifier, err := s.db.GetNotifier(ctx, schedule.NotifierID)
	if err != nil {
		return rendered.Subject, rendered.ItemCount, fmt.Errorf("load notifier %d: %w", schedule.NotifierID, err)
	}
	if !notifier.Enabled {
		return rendered.Subject, rendered.ItemCount, fmt.Errorf("notifier %d is disabled", notifier.ID)
	}
	ch, ok := s.channels[notifier.ChannelType]
	if !ok {
		return rendered.Subject, rendered.ItemCount, fmt.Errorf("unknown notification channel: %s", notifier.ChannelType)
	}

	msg := &notify.Message{
		NotifierID: notifier.ID,
		Trigger:    "newsletter",
		Subject:    rendered.Subject,
		Body:       rendered.BodyText,
		BodyHTML:   rendered.BodyHTML,
		Config:     &notifier.Config,
	}
	result := notify.DeliverWithRetry(ctx, ch, msg, deliveryRetries, deliveryBaseDelay, deliveryMaxDelay)
	if result == nil {
		return rendered.Subject, rendered.ItemCount, errors.New("delivery produced no result")
	}
	if !result.Success {
		return rendered.Subject, rendered.ItemCount, errors.New(result.ErrorMessage)
	}
	return rendered.Subject, rendered.ItemCount, nil
}

// nextRunAfter computes the schedule's next firing. A cron expression
// that no longer parses pushes the schedule a day out so it does not go
// due again on every check while the operator fixes it.
func (s *Scheduler) nextRunAfter(schedule *models.NewsletterSchedule, after time.Time) time.Time {
	next, err := CalculateNextRun(schedule.CronExpr, after, "")
	if err != nil {
		logging.Warn().Err(err).
			Int64("schedule_id", schedule.ID).
			Str("cron", schedule.CronExpr).
			Msg("Invalid cron expression, pushing next run out a day")
		return after.Add(failedRunPushDelay)
	}
	return next
}
