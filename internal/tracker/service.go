package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"jobhunt/internal/events"
	"jobhunt/internal/model"
	"jobhunt/internal/store"
)

// TransitionError reports a move the state machine forbids.
type TransitionError struct {
	From model.ApplicationStatus
	To   model.ApplicationStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition from %s to %s is not allowed", e.From, e.To)
}

// Service encapsulates application tracking. It is transport-agnostic:
// the HTTP surface and any future CLI are thin callers.
type Service struct {
	store  store.Store
	events events.Publisher
	now    func() time.Time
}

// NewService returns a configured Service. publisher may be nil.
func NewService(st store.Store, publisher events.Publisher) *Service {
	return &Service{store: st, events: publisher, now: time.Now}
}

// Track returns the Application for a job, creating it at status "new"
// with one initial history entry on first interaction. Returns
// store.ErrUnknownJob when the job identity does not exist.
func (s *Service) Track(ctx context.Context, jobIdentityKey string) (*model.Application, error) {
	app, err := s.store.GetApplication(ctx, jobIdentityKey)
	if err == nil {
		return app, nil
	}
	if !errors.Is(err, store.ErrNoApplication) {
		return nil, err
	}

	now := s.now().UTC()
	created := model.Application{
		JobIdentityKey: jobIdentityKey,
		Status:         model.StatusNew,
		StatusHistory:  []model.StatusChange{{Status: model.StatusNew, At: now}},
		UpdatedAt:      now,
	}
	if err := s.store.SaveApplication(ctx, created); err != nil {
		return nil, fmt.Errorf("create application: %w", err)
	}
	return &created, nil
}

// Transition moves the application to a new status. A move into the
// current status is a no-op that appends nothing to history; a
// forbidden move returns a TransitionError.
func (s *Service) Transition(ctx context.Context, jobIdentityKey string, to model.ApplicationStatus) (*model.Application, error) {
	app, err := s.Track(ctx, jobIdentityKey)
	if err != nil {
		return nil, err
	}

	if to == app.Status {
		return app, nil
	}
	if !IsTransitionAllowed(app.Status, to) {
		return nil, &TransitionError{From: app.Status, To: to}
	}

	now := s.now().UTC()
	from := app.Status
	app.Status = to
	app.StatusHistory = append(app.StatusHistory, model.StatusChange{Status: to, At: now})
	if to == model.StatusApplied && app.AppliedAt == nil {
		app.AppliedAt = &now
	}
	app.UpdatedAt = now

	if err := s.store.SaveApplication(ctx, *app); err != nil {
		return nil, fmt.Errorf("save transition: %w", err)
	}
	s.publishStatusChanged(ctx, jobIdentityKey, from, to)
	return app, nil
}

// Reopen returns a rejected or withdrawn application to the pipeline
// at "interested". It is the single way out of a terminal state and is
// logged in history as an explicit reopen.
func (s *Service) Reopen(ctx context.Context, jobIdentityKey string) (*model.Application, error) {
	app, err := s.store.GetApplication(ctx, jobIdentityKey)
	if err != nil {
		return nil, err
	}
	if !IsTerminal(app.Status) {
		return nil, &TransitionError{From: app.Status, To: model.StatusInterested}
	}

	now := s.now().UTC()
	from := app.Status
	app.Status = model.StatusInterested
	app.StatusHistory = append(app.StatusHistory, model.StatusChange{
		Status: model.StatusInterested,
		At:     now,
		Note:   "reopened",
	})
	app.UpdatedAt = now

	if err := s.store.SaveApplication(ctx, *app); err != nil {
		return nil, fmt.Errorf("save reopen: %w", err)
	}
	s.publishStatusChanged(ctx, jobIdentityKey, from, model.StatusInterested)
	return app, nil
}

// AddNote appends a dated free-text note to the application, creating
// the application if the job is not yet tracked.
func (s *Service) AddNote(ctx context.Context, jobIdentityKey, note string) (*model.Application, error) {
	app, err := s.Track(ctx, jobIdentityKey)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	stamped := fmt.Sprintf("[%s] %s", now.Format("2006-01-02"), note)
	if app.Notes != "" {
		app.Notes += "\n\n" + stamped
	} else {
		app.Notes = stamped
	}
	app.UpdatedAt = now

	if err := s.store.SaveApplication(ctx, *app); err != nil {
		return nil, fmt.Errorf("save note: %w", err)
	}
	return app, nil
}

// List returns all applications, most recently updated first.
func (s *Service) List(ctx context.Context) ([]model.Application, error) {
	return s.store.ListApplications(ctx)
}

func (s *Service) publishStatusChanged(ctx context.Context, jobIdentityKey string, from, to model.ApplicationStatus) {
	if s.events == nil {
		return
	}
	payload := map[string]string{
		"type":           events.ChannelStatusChanged,
		"jobIdentityKey": jobIdentityKey,
		"from":           string(from),
		"to":             string(to),
	}
	if err := s.events.Publish(ctx, events.ChannelStatusChanged, payload); err != nil {
		slog.Warn("publish status-changed event failed", "job", jobIdentityKey, "err", err)
	}
}
