package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/yakoovad/people-drive/internal/auth"
	"github.com/yakoovad/people-drive/internal/service"
	"github.com/yakoovad/people-drive/pkg/logger"
	"go.uber.org/zap"
)

const LoginPath = "/login"

func ZapLoggerMiddleware(l *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			req := c.Request()
			res := c.Response()

			requestID := res.Header().Get(echo.HeaderXRequestID)

			reqLogger := l.With(
				zap.String("request_id", requestID),
			)

			ctx := logger.WithLogger(req.Context(), reqLogger)
			c.SetRequest(req.WithContext(ctx))

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.String("remote_ip", c.RealIP()),
				zap.Int("status", res.Status),
				zap.Duration("latency", time.Since(start)),
				zap.Int64("bytes_in", req.ContentLength),
				zap.Int64("bytes_out", res.Size),
			}
			if s, ok := auth.SessionFromContext(c.Request().Context()); ok {
				fields = append(fields, zap.String("staff", s.Email))
			}

			if err != nil {
				fields = append(fields, zap.Error(err))
				reqLogger.Error("request failed", fields...)
			} else {
				reqLogger.Info("request completed", fields...)
			}

			return nil
		}
	}
}

type SessionVerifier interface {
	Verify(token string) (*auth.Session, *service.Error)
}

// AuthMiddleware admits requests carrying a valid session whose role allows
// required. Browsers without a session are sent to the login page, API
// clients get 401.
func AuthMiddleware(verifier SessionVerifier, cookieName string, required auth.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := sessionToken(c, cookieName)
			if token == "" {
				return unauthenticated(c, service.NewError(service.ErrorCodeUnauthorized, "sign in required"))
			}

			session, serr := verifier.Verify(token)
			if serr != nil {
				return unauthenticated(c, serr)
			}

			if !session.Role.Allows(required) {
				return forbidden(c, session)
			}

			req := c.Request()
			c.SetRequest(req.WithContext(auth.WithSession(req.Context(), session)))
			return next(c)
		}
	}
}

// RequireRole narrows a route inside an authenticated group.
func RequireRole(required auth.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			session, ok := auth.SessionFromContext(c.Request().Context())
			if !ok {
				return unauthenticated(c, service.NewError(service.ErrorCodeUnauthorized, "sign in required"))
			}
			if !session.Role.Allows(required) {
				return forbidden(c, session)
			}
			return next(c)
		}
	}
}

func forbidden(c echo.Context, session *auth.Session) error {
	return c.JSON(http.StatusForbidden, errorResponse{
		Error: service.NewError(service.ErrorCodeForbidden, "role "+string(session.Role)+" may not do this"),
	})
}

func sessionToken(c echo.Context, cookieName string) string {
	if h := c.Request().Header.Get(echo.HeaderAuthorization); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := c.Cookie(cookieName); err == nil {
		return cookie.Value
	}
	return ""
}

func unauthenticated(c echo.Context, err *service.Error) error {
	if wantsHTML(c.Request()) {
		return c.Redirect(http.StatusSeeOther, LoginPath)
	}
	return c.JSON(http.StatusUnauthorized, errorResponse{Error: err})
}

func wantsHTML(r *http.Request) bool {
	accept := r.Header.Get(echo.HeaderAccept)
	return r.Method == http.MethodGet && strings.Contains(accept, echo.MIMETextHTML)
}
