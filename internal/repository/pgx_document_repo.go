package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/im"
	"github.com/stephenafamo/bob/dialect/psql/sm"
	"github.com/yakoovad/people-drive/internal/db"
)

type Document struct {
	ID            string `db:"id"`
	ApplicationID string `db:"application_id"`
	Kind          string `db:"kind"`
	Name          string `db:"name"`
	MimeType      string `db:"mime_type"`
	Size          int64  `db:"size"`
	Content       []byte `db:"content"`
}

type DocumentRepository interface {
	Create(ctx context.Context, doc *Document) error
	Get(ctx context.Context, id string) (*Document, error)
	// ListRefs returns document metadata without content for the given applications.
	ListRefs(ctx context.Context, applicationIDs []string) ([]*Document, error)
}

type pgxDocumentRepository struct {
	pool *pgxpool.Pool
}

func NewPgxDocumentRepository(pool *pgxpool.Pool) DocumentRepository {
	return &pgxDocumentRepository{pool: pool}
}

func (p *pgxDocumentRepository) Create(ctx context.Context, doc *Document) error {
	e := db.ExecutorFromContext(ctx, p.pool)

	q := psql.Insert(
		im.Into("document", "id", "application_id", "kind", "name", "mime_type", "size", "content"),
		im.Values(
			psql.Arg(doc.ID), psql.Arg(doc.ApplicationID), psql.Arg(doc.Kind), psql.Arg(doc.Name),
			psql.Arg(doc.MimeType), psql.Arg(doc.Size), psql.Arg(doc.Content),
		),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	if _, err = e.Exec(ctx, sql, args...); err != nil {
		return translate(err)
	}
	return nil
}

func (p *pgxDocumentRepository) ListRefs(ctx context.Context, applicationIDs []string) ([]*Document, error) {
	if len(applicationIDs) == 0 {
		return nil, nil
	}

	e := db.ExecutorFromContext(ctx, p.pool)

	ids := make([]any, 0, len(applicationIDs))
	for _, id := range applicationIDs {
		ids = append(ids, id)
	}

	q := psql.Select(
		sm.Columns("id", "application_id", "kind", "name", "mime_type", "size"),
		sm.From("document"),
		sm.Where(psql.Quote("application_id").In(psql.Arg(ids...))),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := e.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Document, error) {
		d := &Document{}
		if err := row.Scan(&d.ID, &d.ApplicationID, &d.Kind, &d.Name, &d.MimeType, &d.Size); err != nil {
			return nil, err
		}
		return d, nil
	})
}

func (p *pgxDocumentRepository) Get(ctx context.Context, id string) (*Document, error) {
	e := db.ExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns("id", "application_id", "kind", "name", "mime_type", "size", "content"),
		sm.From("document"),
		sm.Where(psql.Quote("id").EQ(psql.Arg(id))),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	d := &Document{}
	err = e.QueryRow(ctx, sql, args...).Scan(&d.ID, &d.ApplicationID, &d.Kind, &d.Name, &d.MimeType, &d.Size, &d.Content)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}
