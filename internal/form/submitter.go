package form

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/yakoovad/people-drive/internal/metrics"
	"github.com/yakoovad/people-drive/internal/model"
	"github.com/yakoovad/people-drive/pkg/logger"
	"go.uber.org/zap"
)

type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StateDone       State = "done"
	StateError      State = "error"
)

var (
	ErrSubmitting       = errors.New("submission already in progress")
	ErrAlreadySubmitted = errors.New("form already submitted")
)

type Target interface {
	Submit(ctx context.Context, sub *model.Submission) (*model.Application, error)
}

// Submitter drives one form through idle -> submitting -> done|error. A
// failed submission can be retried with the same input; Reset starts over
// after success.
type Submitter struct {
	target    Target
	validator *Validator

	mu     sync.Mutex
	state  State
	err    error
	result *model.Application
}

func NewSubmitter(target Target, v *Validator) *Submitter {
	return &Submitter{
		target:    target,
		validator: v,
		state:     StateIdle,
	}
}

func (s *Submitter) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Submitter) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Submitter) Result() *model.Application {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

func (s *Submitter) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state, s.err, s.result = StateIdle, nil, nil
}

func (s *Submitter) Submit(ctx context.Context, in *Input) (*model.Application, error) {
	l := logger.FromContext(ctx)

	s.mu.Lock()
	switch s.state {
	case StateSubmitting:
		s.mu.Unlock()
		return nil, ErrSubmitting
	case StateDone:
		s.mu.Unlock()
		return nil, ErrAlreadySubmitted
	}
	s.state = StateSubmitting
	prev := s.err
	s.mu.Unlock()

	sub, err := s.prepare(ctx, in)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			// the form stays editable as it was
			s.settle(stateBefore(prev), prev, nil)
			metrics.Submissions.WithLabelValues("invalid").Inc()
			l.Debug("form rejected", zap.Error(err))
			return nil, err
		}
		s.settle(StateError, err, nil)
		metrics.Submissions.WithLabelValues(metrics.OutcomeFailure).Inc()
		return nil, err
	}

	app, err := s.target.Submit(ctx, sub)
	metrics.Submissions.WithLabelValues(metrics.Outcome(err)).Inc()
	if err != nil {
		l.Warn("submission failed", zap.String("email", sub.Email), zap.Error(err))
		s.settle(StateError, err, nil)
		return nil, err
	}

	l.Info("application submitted", zap.String("id", app.ID), zap.String("kind", string(app.Kind)))
	s.settle(StateDone, nil, app)
	return app, nil
}

func (s *Submitter) prepare(ctx context.Context, in *Input) (*model.Submission, error) {
	if err := s.validator.Validate(in); err != nil {
		return nil, err
	}
	files, err := Encode(ctx, in.Files, s.validator.MaxFileSize())
	if err != nil {
		return nil, err
	}
	return in.submission(files), nil
}

func (s *Submitter) settle(state State, err error, app *model.Application) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state, s.err, s.result = state, err, app
}

func stateBefore(prevErr error) State {
	if prevErr != nil {
		return StateError
	}
	return StateIdle
}
