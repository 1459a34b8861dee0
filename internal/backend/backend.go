// Package backend holds the adapters to the persistence collaborators the
// portal can be configured with: a REST API, a spreadsheet script endpoint
// and a relational database.
package backend

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/yakoovad/people-drive/internal/model"
)

var (
	ErrNotFound = errors.New("application not found")
	// ErrRejected means the backend answered but refused the operation.
	ErrRejected = errors.New("backend rejected request")
)

type Kind string

const (
	KindREST     Kind = "rest"
	KindSheets   Kind = "sheets"
	KindPostgres Kind = "postgres"
)

type Backend interface {
	List(ctx context.Context) ([]*model.Application, error)
	Get(ctx context.Context, id string) (*model.Application, error)
	Submit(ctx context.Context, sub *model.Submission) (*model.Application, error)
	SetStatus(ctx context.Context, id string, status model.Status) error
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

// Document is a stored upload served back to staff.
type Document struct {
	ID          string
	Name        string
	ContentType string
	Content     []byte
}

// DocumentSource is implemented by backends that keep uploads themselves.
// Their document references point at DocumentPath.
type DocumentSource interface {
	Document(ctx context.Context, id string) (*Document, error)
}

const DocumentPath = "/dashboard/documents/"

// checkCollection validates records coming over the wire before they reach
// the cache.
func checkCollection(apps []*model.Application) ([]*model.Application, error) {
	if apps == nil {
		apps = make([]*model.Application, 0)
	}
	if err := model.ValidateCollection(apps); err != nil {
		return nil, errors.Wrap(err, "invalid collection from backend")
	}
	return apps, nil
}

// RejectionMessage returns the explanation a backend gave when it refused a
// request.
func RejectionMessage(err error) (string, bool) {
	if !errors.Is(err, ErrRejected) {
		return "", false
	}
	return strings.TrimSuffix(err.Error(), ": "+ErrRejected.Error()), true
}
