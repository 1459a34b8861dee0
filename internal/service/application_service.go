package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/yakoovad/people-drive/internal/backend"
	"github.com/yakoovad/people-drive/internal/export"
	"github.com/yakoovad/people-drive/internal/listcache"
	"github.com/yakoovad/people-drive/internal/model"
	"github.com/yakoovad/people-drive/pkg/logger"
	"go.uber.org/zap"
)

const recentCount = 5

type ListCache interface {
	Snapshot() listcache.Snapshot
	Get(id string) (*model.Application, bool)
	Load(ctx context.Context) ([]*model.Application, error)
	SetStatus(ctx context.Context, id string, status model.Status) error
	Remove(ctx context.Context, id string) error
}

type Lookup interface {
	Get(ctx context.Context, id string) (*model.Application, error)
}

type DocumentSource interface {
	Document(ctx context.Context, id string) (*backend.Document, error)
}

// Filter narrows the dashboard list. Zero values match everything.
type Filter struct {
	Search     string
	Department string
	Status     model.Status
	Kind       model.Kind
}

func (f *Filter) match(a *model.Application) bool {
	if f.Department != "" && !strings.EqualFold(a.Department, f.Department) {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.Kind != "" && a.Kind != f.Kind {
		return false
	}
	if f.Search == "" {
		return true
	}

	q := strings.ToLower(strings.TrimSpace(f.Search))
	for _, s := range []string{a.FullName, a.Email, a.TeamName, a.LeaderName} {
		if strings.Contains(strings.ToLower(s), q) {
			return true
		}
	}
	return false
}

type ApplicationList struct {
	Applications []*model.Application `json:"applications"`
	Total        int                  `json:"total"`
	State        listcache.State      `json:"state"`
	LoadedAt     *time.Time           `json:"loaded_at,omitempty"`
}

type ApplicationService struct {
	cache       ListCache
	lookup      Lookup
	documents   DocumentSource
	departments []string
}

func NewApplicationService(cache ListCache) *ApplicationService {
	return &ApplicationService{
		cache:       cache,
		departments: model.DefaultDepartments,
	}
}

func (s *ApplicationService) WithLookup(lookup Lookup) *ApplicationService {
	s.lookup = lookup
	return s
}

// WithDocuments serves stored uploads for backends that keep them.
func (s *ApplicationService) WithDocuments(docs DocumentSource) *ApplicationService {
	s.documents = docs
	return s
}

func (s *ApplicationService) WithDepartments(departments []string) *ApplicationService {
	if len(departments) > 0 {
		s.departments = departments
	}
	return s
}

// refresh reloads the list. A failed load is reported by the cache itself and
// the dashboard keeps serving what it has.
func (s *ApplicationService) refresh(ctx context.Context) listcache.Snapshot {
	if _, err := s.cache.Load(ctx); err != nil {
		logger.FromContext(ctx).Warn("serving list without refresh", zap.Error(err))
	}
	return s.cache.Snapshot()
}

func (s *ApplicationService) snapshot(ctx context.Context, refresh bool) listcache.Snapshot {
	snap := s.cache.Snapshot()
	if refresh || snap.State == listcache.StateEmpty {
		return s.refresh(ctx)
	}
	return snap
}

func (s *ApplicationService) List(ctx context.Context, f Filter, refresh bool) (*ApplicationList, *Error) {
	snap := s.snapshot(ctx, refresh)

	apps := make([]*model.Application, 0, len(snap.Applications))
	for _, a := range snap.Applications {
		if f.match(a) {
			apps = append(apps, a)
		}
	}

	return &ApplicationList{
		Applications: apps,
		Total:        len(snap.Applications),
		State:        snap.State,
		LoadedAt:     snap.LoadedAt,
	}, nil
}

func (s *ApplicationService) Stats(ctx context.Context, refresh bool) (*model.Stats, *Error) {
	snap := s.snapshot(ctx, refresh)

	stats := &model.Stats{
		Total:       len(snap.Applications),
		Departments: make(map[string]int, len(s.departments)),
		Recent:      make([]*model.Application, 0, recentCount),
	}
	for _, d := range s.departments {
		stats.Departments[d] = 0
	}

	for _, a := range snap.Applications {
		switch a.Status {
		case model.StatusPending:
			stats.Pending++
		case model.StatusVerified:
			stats.Verified++
		case model.StatusRejected:
			stats.Rejected++
		}
		stats.Departments[a.Department]++
		if len(stats.Recent) < recentCount {
			stats.Recent = append(stats.Recent, a)
		}
	}

	return stats, nil
}

// Get prefers the cached record and falls back to the backend for ids the
// list has not seen yet.
func (s *ApplicationService) Get(ctx context.Context, id string) (*model.Application, *Error) {
	if a, ok := s.cache.Get(id); ok {
		return a, nil
	}
	if s.lookup == nil {
		return nil, NewError(ErrorCodeNotFound, "application not found")
	}

	a, err := s.lookup.Get(ctx, id)
	if err != nil {
		return nil, backendError(ctx, err, "failed to get application")
	}
	return a, nil
}

func (s *ApplicationService) Document(ctx context.Context, id string) (*backend.Document, *Error) {
	if s.documents == nil {
		return nil, NewError(ErrorCodeNotFound, "document not found")
	}

	doc, err := s.documents.Document(ctx, id)
	if errors.Is(err, backend.ErrNotFound) {
		return nil, NewError(ErrorCodeNotFound, "document not found")
	}
	if err != nil {
		return nil, backendError(ctx, err, "failed to get document")
	}
	return doc, nil
}

func (s *ApplicationService) SetStatus(ctx context.Context, id, status string) (*model.Application, *Error) {
	st, err := model.ParseStatus(status)
	if err != nil {
		return nil, NewError(ErrorCodeValidationFailed, err.Error())
	}

	if err = s.cache.SetStatus(ctx, id, st); err != nil {
		return nil, backendError(ctx, err, "status was not changed")
	}

	if a, ok := s.cache.Get(id); ok {
		return a, nil
	}
	return nil, NewError(ErrorCodeNotFound, "application not found")
}

func (s *ApplicationService) Remove(ctx context.Context, id string) *Error {
	if err := s.cache.Remove(ctx, id); err != nil {
		return backendError(ctx, err, "application was not deleted")
	}
	return nil
}

func (s *ApplicationService) Export(ctx context.Context, f Filter) ([]byte, *Error) {
	list, lerr := s.List(ctx, f, false)
	if lerr != nil {
		return nil, lerr
	}

	data, err := export.XLSX(list.Applications)
	if err != nil {
		logger.FromContext(ctx).Error("export failed", zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to build export")
	}
	return data, nil
}

func backendError(ctx context.Context, err error, msg string) *Error {
	switch {
	case errors.Is(err, listcache.ErrNotFound), errors.Is(err, backend.ErrNotFound):
		return NewError(ErrorCodeNotFound, "application not found")
	case errors.Is(err, listcache.ErrMutationInFlight):
		return NewError(ErrorCodeMutationInFlight, err.Error())
	}

	if reason, ok := backend.RejectionMessage(err); ok {
		return NewError(ErrorCodeRejected, msg+": "+reason)
	}

	logger.FromContext(ctx).Error(msg, zap.Error(err))
	return NewError(ErrorCodeBackendUnavailable, msg)
}
