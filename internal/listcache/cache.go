// Package listcache keeps the in-memory application list behind the dashboard.
// Status changes and deletions are applied optimistically, rolled back when
// the backend refuses them and reconciled with a background refetch. The last
// successful fetch is mirrored to a Store so a restart can render immediately.
package listcache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/yakoovad/people-drive/internal/metrics"
	"github.com/yakoovad/people-drive/internal/model"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const DefaultKey = "candidates_cache"

var (
	ErrNotFound         = errors.New("application not in list")
	ErrMutationInFlight = errors.New("another change to this application is in progress")
)

type State string

const (
	StateEmpty   State = "empty"
	StateCached  State = "cached"
	StateLoading State = "loading"
	StateLoaded  State = "loaded"
	StatePending State = "optimistic-pending"
	StateError   State = "error"
)

// Source is the part of a backend the cache depends on.
type Source interface {
	List(ctx context.Context) ([]*model.Application, error)
	SetStatus(ctx context.Context, id string, status model.Status) error
	Delete(ctx context.Context, id string) error
}

type Snapshot struct {
	Applications []*model.Application `json:"applications"`
	State        State                `json:"state"`
	LoadedAt     *time.Time           `json:"loaded_at,omitempty"`
}

type Cache struct {
	src      Source
	store    Store
	key      string
	notifier Notifier
	logger   *zap.Logger

	reconcileTimeout time.Duration

	mu       sync.RWMutex
	list     []*model.Application
	state    State
	loadedAt *time.Time
	pending  map[string]*Command
	// settled counts finished mutations. A fetch that overlapped one may have
	// read the backend before the change landed and is retried.
	settled uint64

	loads singleflight.Group
	bg    sync.WaitGroup
}

type Option func(*Cache)

func WithKey(key string) Option {
	return func(c *Cache) { c.key = key }
}

func WithNotifier(n Notifier) Option {
	return func(c *Cache) { c.notifier = n }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

func WithReconcileTimeout(d time.Duration) Option {
	return func(c *Cache) { c.reconcileTimeout = d }
}

func New(src Source, store Store, opts ...Option) *Cache {
	c := &Cache{
		src:              src,
		store:            store,
		key:              DefaultKey,
		notifier:         NotifierFunc(func(Notification) {}),
		logger:           zap.NewNop(),
		reconcileTimeout: 15 * time.Second,
		list:             make([]*model.Application, 0),
		state:            StateEmpty,
		pending:          make(map[string]*Command),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot returns a copy of the displayed list and the current state.
func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		Applications: model.CloneAll(c.list),
		State:        c.state,
		LoadedAt:     c.loadedAt,
	}
}

// Get returns a copy of one displayed record.
func (c *Cache) Get(id string) (*model.Application, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if i := indexOf(c.list, id); i >= 0 {
		return c.list[i].Clone(), true
	}
	return nil, false
}

// Restore seeds the list from the persisted snapshot. It is meant to run once
// before the first Load; a snapshot that cannot be decoded is deleted.
func (c *Cache) Restore(ctx context.Context) error {
	data, err := c.store.Get(ctx, c.key)
	if errors.Is(err, ErrNoSnapshot) {
		metrics.CacheRestores.WithLabelValues("miss").Inc()
		return nil
	}
	if err != nil {
		metrics.CacheRestores.WithLabelValues(metrics.OutcomeFailure).Inc()
		return errors.Wrap(err, "read snapshot")
	}

	var apps []*model.Application
	if err = json.Unmarshal(data, &apps); err == nil {
		err = model.ValidateCollection(apps)
	}
	if err != nil {
		metrics.CacheRestores.WithLabelValues(metrics.OutcomeFailure).Inc()
		c.logger.Warn("discarding unreadable cache snapshot", zap.String("key", c.key), zap.Error(err))
		if delErr := c.store.Delete(ctx, c.key); delErr != nil {
			c.logger.Warn("failed to delete cache snapshot", zap.Error(delErr))
		}
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateEmpty {
		return nil
	}
	if apps == nil {
		apps = make([]*model.Application, 0)
	}
	c.list = apps
	c.state = StateCached
	metrics.CacheRestores.WithLabelValues(metrics.OutcomeSuccess).Inc()
	metrics.CachedRecords.Set(float64(len(apps)))

	c.logger.Debug("restored cache snapshot", zap.Int("records", len(apps)))
	return nil
}

// Load fetches the collection and replaces the list. On failure the displayed
// list is kept as is and one notification is emitted.
func (c *Cache) Load(ctx context.Context) ([]*model.Application, error) {
	return c.load(ctx, true)
}

func (c *Cache) load(ctx context.Context, notify bool) ([]*model.Application, error) {
	v, err, _ := c.loads.Do("load", func() (any, error) {
		return c.fetch(ctx, notify)
	})
	if err != nil {
		return nil, err
	}
	return model.CloneAll(v.([]*model.Application)), nil
}

func (c *Cache) fetch(ctx context.Context, notify bool) ([]*model.Application, error) {
	c.mu.Lock()
	prev := c.state
	c.state = StateLoading
	gen := c.settled
	c.mu.Unlock()

	for {
		apps, err := c.src.List(ctx)
		metrics.CacheLoads.WithLabelValues(metrics.Outcome(err)).Inc()

		if err != nil {
			c.mu.Lock()
			c.state = StateError
			c.mu.Unlock()

			c.logger.Error("failed to load applications", zap.String("previous_state", string(prev)), zap.Error(err))
			if notify {
				c.notify(LevelError, ActionLoad, "", "could not refresh applications: "+err.Error())
			}
			return nil, err
		}

		now := time.Now()

		c.mu.Lock()
		if c.settled != gen {
			gen = c.settled
			c.mu.Unlock()
			c.logger.Debug("mutation settled during fetch, refetching")
			continue
		}
		list := model.CloneAll(apps)
		for _, cmd := range c.pending {
			list = cmd.Apply(list)
		}
		c.list = list
		c.loadedAt = &now
		c.state = StateLoaded
		if len(c.pending) > 0 {
			c.state = StatePending
		}
		display := model.CloneAll(list)
		c.mu.Unlock()

		metrics.CachedRecords.Set(float64(len(display)))
		c.persist(ctx, apps)

		return display, nil
	}
}

// persist mirrors the fetched collection, not the optimistic view.
func (c *Cache) persist(ctx context.Context, apps []*model.Application) {
	data, err := json.Marshal(apps)
	if err == nil {
		err = c.store.Set(ctx, c.key, data)
	}
	if err != nil {
		c.logger.Warn("failed to persist cache snapshot", zap.String("key", c.key), zap.Error(err))
	}
}

// SetStatus changes the status of one record optimistically.
func (c *Cache) SetStatus(ctx context.Context, id string, status model.Status) error {
	if !status.Valid() {
		return errors.Errorf("unknown status %q", status)
	}
	return c.Execute(ctx, newSetStatusCommand(c.src, id, status))
}

// Remove deletes one record optimistically.
func (c *Cache) Remove(ctx context.Context, id string) error {
	return c.Execute(ctx, newRemoveCommand(c.src, id))
}

// Execute applies cmd locally, runs it against the backend, rolls it back on
// failure and schedules a reconciliation refetch after it settles.
func (c *Cache) Execute(ctx context.Context, cmd *Command) error {
	l := c.logger.With(zap.String("action", string(cmd.Action)), zap.String("id", cmd.ID))

	c.mu.Lock()
	if _, busy := c.pending[cmd.ID]; busy {
		c.mu.Unlock()
		return ErrMutationInFlight
	}
	i := indexOf(c.list, cmd.ID)
	if i < 0 {
		c.mu.Unlock()
		return ErrNotFound
	}
	cmd.Before = c.list[i].Clone()
	cmd.Index = i
	c.list = cmd.Apply(c.list)
	c.pending[cmd.ID] = cmd
	c.state = StatePending
	c.mu.Unlock()

	start := time.Now()
	err := cmd.Run(ctx)
	metrics.MutationDuration.WithLabelValues(string(cmd.Action)).Observe(time.Since(start).Seconds())
	metrics.Mutations.WithLabelValues(string(cmd.Action), metrics.Outcome(err)).Inc()

	c.mu.Lock()
	delete(c.pending, cmd.ID)
	c.settled++
	if err != nil {
		c.list = cmd.Rollback(c.list)
		c.state = StateError
	} else if len(c.pending) == 0 {
		c.state = StateLoaded
	}
	c.mu.Unlock()

	if err != nil {
		metrics.Rollbacks.WithLabelValues(string(cmd.Action)).Inc()
		l.Warn("mutation failed, rolled back", zap.Error(err))
		c.notify(LevelError, cmd.Action, cmd.ID, "change was not saved: "+err.Error())
	} else {
		l.Debug("mutation confirmed")
	}

	if cmd.OnSettle != nil {
		cmd.OnSettle(err)
	}

	c.reconcile()
	return err
}

// reconcile refetches in the background. Failures are only logged; the
// mutation outcome has already been reported.
func (c *Cache) reconcile() {
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), c.reconcileTimeout)
		defer cancel()

		if _, err := c.load(ctx, false); err != nil {
			c.logger.Warn("reconciliation refetch failed", zap.Error(err))
		}
	}()
}

// Wait blocks until scheduled reconciliation refetches finish.
func (c *Cache) Wait() {
	c.bg.Wait()
}

func (c *Cache) notify(level Level, action Action, id, msg string) {
	c.notifier.Notify(Notification{
		Level:   level,
		Action:  action,
		ID:      id,
		Message: msg,
		At:      time.Now(),
	})
}
