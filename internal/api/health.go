package api

import (
	"context"
	"time"

	"github.com/hellofresh/health-go/v5"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/yakoovad/people-drive/internal/listcache"
)

type HealthChecker interface {
	HealthCheck() echo.HandlerFunc
}

type healthChecker struct {
	health *health.Health
}

func MustNewHealthChecker(version string, checks ...health.Config) HealthChecker {
	h, err := health.New(health.WithComponent(health.Component{Name: "people-drive", Version: version}))
	if err != nil {
		panic(errors.Wrap(err, "create health checker"))
	}

	for _, check := range checks {
		if err = h.Register(check); err != nil {
			panic(errors.Wrapf(err, "register health check %s", check.Name))
		}
	}

	return &healthChecker{
		health: h,
	}
}

func (h *healthChecker) HealthCheck() echo.HandlerFunc {
	return echo.WrapHandler(h.health.Handler())
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// BackendCheck is critical: without the backend neither the form nor the
// dashboard mutations work.
func BackendCheck(name string, p Pinger) health.Config {
	return health.Config{
		Name:      "backend-" + name,
		Timeout:   5 * time.Second,
		SkipOnErr: false,
		Check:     p.Ping,
	}
}

// StoreCheck reports the snapshot store. The dashboard still works without
// it, so a failure only degrades the status.
func StoreCheck(store listcache.Store) health.Config {
	return health.Config{
		Name:      "cache-store",
		Timeout:   2 * time.Second,
		SkipOnErr: true,
		Check: func(ctx context.Context) error {
			_, err := store.Get(ctx, "healthcheck")
			if errors.Is(err, listcache.ErrNoSnapshot) {
				return nil
			}
			return err
		},
	}
}
