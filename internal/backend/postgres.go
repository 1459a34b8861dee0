package backend

import (
	"context"
	"encoding/base64"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/yakoovad/people-drive/internal/db"
	"github.com/yakoovad/people-drive/internal/model"
	"github.com/yakoovad/people-drive/internal/repository"
)

type postgresBackend struct {
	pool *pgxpool.Pool
	tx   db.Transactor

	apps repository.ApplicationRepository
	docs repository.DocumentRepository
}

// NewPostgres uses the relational store directly. Uploaded documents live in
// the document table and are referenced by their portal URL under DocumentPath.
func NewPostgres(pool *pgxpool.Pool) Backend {
	return &postgresBackend{
		pool: pool,
		tx:   db.NewPgxTransactor(pool),
		apps: repository.NewPgxApplicationRepository(pool),
		docs: repository.NewPgxDocumentRepository(pool),
	}
}

func (p *postgresBackend) List(ctx context.Context) ([]*model.Application, error) {
	rows, err := p.apps.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list applications")
	}

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}

	docs, err := p.docs.ListRefs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "list documents")
	}

	byApp := make(map[string][]*repository.Document, len(ids))
	for _, d := range docs {
		byApp[d.ApplicationID] = append(byApp[d.ApplicationID], d)
	}

	apps := make([]*model.Application, 0, len(rows))
	for _, r := range rows {
		apps = append(apps, toModel(r, byApp[r.ID]))
	}
	return checkCollection(apps)
}

func (p *postgresBackend) Get(ctx context.Context, id string) (*model.Application, error) {
	row, err := p.apps.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get application")
	}

	docs, err := p.docs.ListRefs(ctx, []string{id})
	if err != nil {
		return nil, errors.Wrap(err, "list documents")
	}
	return toModel(row, docs), nil
}

func (p *postgresBackend) Submit(ctx context.Context, sub *model.Submission) (*model.Application, error) {
	row := &repository.Application{
		ID:         uuid.NewString(),
		Kind:       string(sub.Kind),
		FullName:   sub.FullName,
		TeamName:   sub.TeamName,
		LeaderName: sub.LeaderName,
		Members:    sub.Members,
		Email:      sub.Email,
		Phone:      sub.Phone,
		Address:    sub.Address,
		Department: sub.Department,
		Status:     string(model.StatusPending),
	}
	if row.Members == nil {
		row.Members = []string{}
	}

	stored, err := decodeDocuments(row.ID, sub.Files)
	if err != nil {
		return nil, err
	}

	err = p.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		if err := p.apps.Create(txCtx, row); err != nil {
			return errors.Wrap(err, "create application")
		}
		for _, doc := range stored {
			if err := p.docs.Create(txCtx, doc); err != nil {
				return errors.Wrapf(err, "store document %s", doc.Kind)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return toModel(row, stored), nil
}

func (p *postgresBackend) Document(ctx context.Context, id string) (*Document, error) {
	d, err := p.docs.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get document")
	}
	return &Document{ID: d.ID, Name: d.Name, ContentType: d.MimeType, Content: d.Content}, nil
}

func (p *postgresBackend) SetStatus(ctx context.Context, id string, status model.Status) error {
	_, err := p.apps.SetStatus(ctx, id, string(status))
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	return errors.Wrap(err, "set status")
}

func (p *postgresBackend) Delete(ctx context.Context, id string) error {
	err := p.apps.Delete(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	return errors.Wrap(err, "delete application")
}

func (p *postgresBackend) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func toModel(r *repository.Application, docs []*repository.Document) *model.Application {
	app := &model.Application{
		ID:         r.ID,
		Kind:       model.Kind(r.Kind),
		FullName:   r.FullName,
		TeamName:   r.TeamName,
		LeaderName: r.LeaderName,
		Members:    r.Members,
		Email:      r.Email,
		Phone:      r.Phone,
		Address:    r.Address,
		Department: r.Department,
		Status:     model.Status(r.Status),
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}

	if len(docs) > 0 {
		app.Documents = make(map[model.DocumentKind]string, len(docs))
		for _, d := range docs {
			app.Documents[model.DocumentKind(d.Kind)] = DocumentPath + d.ID
		}
	}
	return app
}

// decodeDocuments turns encoded uploads into document rows, in document kind
// order. Nothing is written when any file fails to decode.
func decodeDocuments(appID string, files map[model.DocumentKind]*model.EncodedFile) ([]*repository.Document, error) {
	docs := make([]*repository.Document, 0, len(files))
	for _, kind := range model.DocumentKinds {
		file, ok := files[kind]
		if !ok || file == nil {
			continue
		}
		content, err := base64.StdEncoding.DecodeString(file.Base64)
		if err != nil {
			return nil, errors.Wrapf(ErrRejected, "document %s is not valid base64", kind)
		}
		docs = append(docs, &repository.Document{
			ID:            uuid.NewString(),
			ApplicationID: appID,
			Kind:          string(kind),
			Name:          file.Name,
			MimeType:      file.Type,
			Size:          int64(len(content)),
			Content:       content,
		})
	}
	return docs, nil
}
