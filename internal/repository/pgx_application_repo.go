package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/dm"
	"github.com/stephenafamo/bob/dialect/psql/im"
	"github.com/stephenafamo/bob/dialect/psql/sm"
	"github.com/stephenafamo/bob/dialect/psql/um"
	"github.com/yakoovad/people-drive/internal/db"
)

type Application struct {
	ID         string     `db:"id"`
	Kind       string     `db:"kind"`
	FullName   string     `db:"full_name"`
	TeamName   string     `db:"team_name"`
	LeaderName string     `db:"leader_name"`
	Members    []string   `db:"members"`
	Email      string     `db:"email"`
	Phone      string     `db:"phone"`
	Address    string     `db:"address"`
	Department string     `db:"department"`
	Status     string     `db:"status"`
	CreatedAt  *time.Time `db:"created_at"`
	UpdatedAt  *time.Time `db:"updated_at"`
}

var applicationColumns = []any{
	"id", "kind", "full_name", "team_name", "leader_name", "members",
	"email", "phone", "address", "department", "status", "created_at", "updated_at",
}

type ApplicationRepository interface {
	Create(ctx context.Context, app *Application) error
	Get(ctx context.Context, id string) (*Application, error)
	List(ctx context.Context) ([]*Application, error)
	SetStatus(ctx context.Context, id, status string) (*Application, error)
	Delete(ctx context.Context, id string) error
}

type pgxApplicationRepository struct {
	pool *pgxpool.Pool
}

func NewPgxApplicationRepository(pool *pgxpool.Pool) ApplicationRepository {
	return &pgxApplicationRepository{pool: pool}
}

func scanApplication(row pgx.Row) (*Application, error) {
	a := &Application{}
	err := row.Scan(
		&a.ID,
		&a.Kind,
		&a.FullName,
		&a.TeamName,
		&a.LeaderName,
		&a.Members,
		&a.Email,
		&a.Phone,
		&a.Address,
		&a.Department,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Create inserts the application and fills the timestamps set by the database.
func (p *pgxApplicationRepository) Create(ctx context.Context, app *Application) error {
	e := db.ExecutorFromContext(ctx, p.pool)

	q := psql.Insert(
		im.Into("application", "id", "kind", "full_name", "team_name", "leader_name", "members",
			"email", "phone", "address", "department", "status"),
		im.Values(
			psql.Arg(app.ID), psql.Arg(app.Kind), psql.Arg(app.FullName), psql.Arg(app.TeamName),
			psql.Arg(app.LeaderName), psql.Arg(app.Members), psql.Arg(app.Email), psql.Arg(app.Phone),
			psql.Arg(app.Address), psql.Arg(app.Department), psql.Arg(app.Status),
		),
		im.Returning("created_at", "updated_at"),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	if err = e.QueryRow(ctx, sql, args...).Scan(&app.CreatedAt, &app.UpdatedAt); err != nil {
		return translate(err)
	}
	return nil
}

func (p *pgxApplicationRepository) Get(ctx context.Context, id string) (*Application, error) {
	e := db.ExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(applicationColumns...),
		sm.From("application"),
		sm.Where(psql.Quote("id").EQ(psql.Arg(id))),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	a, err := scanApplication(e.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// List returns every application, newest first.
func (p *pgxApplicationRepository) List(ctx context.Context) ([]*Application, error) {
	e := db.ExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(applicationColumns...),
		sm.From("application"),
		sm.OrderBy("created_at").Desc(),
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

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Application, error) {
		return scanApplication(row)
	})
}

func (p *pgxApplicationRepository) SetStatus(ctx context.Context, id, status string) (*Application, error) {
	e := db.ExecutorFromContext(ctx, p.pool)

	q := psql.Update(
		um.Table("application"),
		um.SetCol("status").ToArg(status),
		um.SetCol("updated_at").To(psql.Raw("now()")),
		um.Where(psql.Quote("id").EQ(psql.Arg(id))),
		um.Returning(applicationColumns...),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	a, err := scanApplication(e.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

func (p *pgxApplicationRepository) Delete(ctx context.Context, id string) error {
	e := db.ExecutorFromContext(ctx, p.pool)

	q := psql.Delete(
		dm.From("application"),
		dm.Where(psql.Quote("id").EQ(psql.Arg(id))),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	tag, err := e.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
