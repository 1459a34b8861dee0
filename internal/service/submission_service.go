package service

import (
	"context"
	"errors"

	"github.com/yakoovad/people-drive/internal/form"
	"github.com/yakoovad/people-drive/internal/model"
	"github.com/yakoovad/people-drive/pkg/logger"
	"go.uber.org/zap"
)

type SubmissionService struct {
	target    form.Target
	validator *form.Validator
}

func NewSubmissionService(target form.Target, v *form.Validator) *SubmissionService {
	return &SubmissionService{
		target:    target,
		validator: v,
	}
}

func (s *SubmissionService) Departments() []string {
	return s.validator.Departments()
}

func (s *SubmissionService) RequiresDocument(kind model.DocumentKind) bool {
	return s.validator.RequiresDocument(kind)
}

// Submit runs one form submission. Each call gets its own submitter, so a
// retry after an error is a fresh request with the same input.
func (s *SubmissionService) Submit(ctx context.Context, in *form.Input) (*model.Application, *Error) {
	app, err := form.NewSubmitter(s.target, s.validator).Submit(ctx, in)
	if err == nil {
		return app, nil
	}

	var verr *form.ValidationError
	if errors.As(err, &verr) {
		return nil, NewError(ErrorCodeValidationFailed, "form has invalid fields").WithDetails(verr.Fields)
	}

	logger.FromContext(ctx).Warn("submission not accepted", zap.Error(err))
	return nil, backendError(ctx, err, "submission failed")
}
