package api

import (
	"mime"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yakoovad/people-drive/internal/auth"
	"github.com/yakoovad/people-drive/internal/export"
	"github.com/yakoovad/people-drive/internal/form"
	"github.com/yakoovad/people-drive/internal/listcache"
	"github.com/yakoovad/people-drive/internal/model"
	"github.com/yakoovad/people-drive/internal/service"
	"github.com/yakoovad/people-drive/pkg/logger"
	"go.uber.org/zap"
)

type NotificationFeed interface {
	Drain() []listcache.Notification
}

type Handler struct {
	apps        *service.ApplicationService
	submissions *service.SubmissionService
	auth        *service.AuthService
	feed        NotificationFeed

	healthChecker HealthChecker

	cookieName   string
	secureCookie bool
	allowOrigins []string
	maxBody      string

	logger *zap.Logger
}

func NewHandler(logger *zap.Logger) *Handler {
	return &Handler{
		cookieName: "portal_session",
		maxBody:    "30M",
		logger:     logger,
	}
}

func (h *Handler) WithHealthChecker(c HealthChecker) *Handler {
	h.healthChecker = c
	return h
}

func (h *Handler) WithApplicationService(apps *service.ApplicationService) *Handler {
	h.apps = apps
	return h
}

func (h *Handler) WithSubmissionService(s *service.SubmissionService) *Handler {
	h.submissions = s
	return h
}

func (h *Handler) WithAuthService(a *service.AuthService) *Handler {
	h.auth = a
	return h
}

func (h *Handler) WithNotificationFeed(feed NotificationFeed) *Handler {
	h.feed = feed
	return h
}

func (h *Handler) WithSessionCookie(name string, secure bool) *Handler {
	if name != "" {
		h.cookieName = name
	}
	h.secureCookie = secure
	return h
}

func (h *Handler) WithAllowOrigins(origins []string) *Handler {
	h.allowOrigins = origins
	return h
}

func (h *Handler) WithBodyLimit(limit string) *Handler {
	h.maxBody = limit
	return h
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.Validator = NewValidator()
	e.Use(middleware.RequestID())
	e.Use(ZapLoggerMiddleware(h.logger))
	e.Use(middleware.Recover())
	if len(h.allowOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     h.allowOrigins,
			AllowCredentials: true,
		}))
	} else {
		e.Use(middleware.CORS())
	}

	if h.healthChecker != nil {
		e.GET("/health", h.healthChecker.HealthCheck())
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.GET("/apply", h.FormOptions)
	e.POST("/apply", h.Apply, middleware.BodyLimit(h.maxBody))
	e.GET("/apply/:id", h.ApplicationStatus)

	e.GET(LoginPath, h.LoginPage)
	e.POST("/auth/login", h.Login)
	e.POST("/auth/logout", h.Logout)

	staff := e.Group("/dashboard", AuthMiddleware(h.auth, h.cookieName, auth.RoleHR))

	staff.GET("", h.Overview)
	staff.GET("/me", h.Me)
	staff.GET("/applications", h.ListApplications)
	staff.GET("/applications/:id", h.GetApplication)
	staff.PATCH("/applications/:id/status", h.SetStatus)
	staff.GET("/documents/:id", h.GetDocument)
	staff.GET("/export", h.Export)
	staff.GET("/notifications", h.Notifications)
	staff.DELETE("/applications/:id", h.DeleteApplication, RequireRole(auth.RoleAdmin))
}

func (h *Handler) FormOptions(e echo.Context) error {
	kinds := make([]map[string]any, 0, len(model.DocumentKinds))
	for _, k := range model.DocumentKinds {
		kinds = append(kinds, map[string]any{
			"kind":     k,
			"required": h.submissions.RequiresDocument(k),
			"accept":   k.Accepts(),
		})
	}

	return e.JSON(http.StatusOK, map[string]any{
		"departments": h.submissions.Departments(),
		"documents":   kinds,
		"kinds":       []model.Kind{model.KindIndividual, model.KindTeam},
	})
}

func (h *Handler) Apply(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var in form.Input
	if err := ProcessRequest(e, &in, bindFormFields, attachUploads); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, asServiceError(err))
	}

	l.Info("submitting application",
		zap.String("kind", string(in.Kind)),
		zap.String("department", in.Department),
		zap.Int("files", len(in.Files)))

	app, err := h.submissions.Submit(e.Request().Context(), &in)
	if err != nil {
		l.Error("failed to submit application", zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusCreated, map[string]any{
		"id":          app.ID,
		"application": app,
	})
}

// ApplicationStatus lets an applicant check a registration without exposing
// contact details or documents.
func (h *Handler) ApplicationStatus(e echo.Context) error {
	id := e.Param("id")

	app, err := h.apps.Get(e.Request().Context(), id)
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"id":         app.ID,
		"name":       app.DisplayName(),
		"department": app.Department,
		"status":     app.Status,
		"created_at": app.CreatedAt,
	})
}

func (h *Handler) LoginPage(e echo.Context) error {
	return e.HTML(http.StatusOK, loginPage)
}

func (h *Handler) Login(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req struct {
		Email    string `json:"email" form:"email" validate:"required,email"`
		Password string `json:"password" form:"password" validate:"required"`
	}

	if err := h.decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	token, session, err := h.auth.Login(e.Request().Context(), req.Email, req.Password)
	if err != nil {
		return h.transportError(e, err)
	}

	e.SetCookie(&http.Cookie{
		Name:     h.cookieName,
		Value:    token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		MaxAge:   h.auth.SessionTTL(),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	return e.JSON(http.StatusOK, map[string]any{
		"token":   token,
		"session": session,
	})
}

func (h *Handler) Logout(e echo.Context) error {
	e.SetCookie(&http.Cookie{
		Name:     h.cookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return e.NoContent(http.StatusNoContent)
}

func (h *Handler) Me(e echo.Context) error {
	session, ok := auth.SessionFromContext(e.Request().Context())
	if !ok {
		return h.transportError(e, service.NewError(service.ErrorCodeUnauthorized, "sign in required"))
	}
	return e.JSON(http.StatusOK, session)
}

func (h *Handler) Overview(e echo.Context) error {
	stats, err := h.apps.Stats(e.Request().Context(), e.QueryParam("cached") == "")
	if err != nil {
		return h.transportError(e, err)
	}
	return e.JSON(http.StatusOK, stats)
}

type listQuery struct {
	Search     string `query:"search"`
	Department string `query:"department"`
	Status     string `query:"status" validate:"omitempty,oneof=Pending Verified Rejected pending verified rejected"`
	Kind       string `query:"kind" validate:"omitempty,oneof=individual team"`
	Cached     bool   `query:"cached"`
}

func (q *listQuery) filter() service.Filter {
	f := service.Filter{
		Search:     q.Search,
		Department: q.Department,
		Kind:       model.Kind(q.Kind),
	}
	if st, err := model.ParseStatus(q.Status); err == nil {
		f.Status = st
	}
	return f
}

func (h *Handler) ListApplications(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var q listQuery
	if err := h.decodeRequest(e, &q); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	list, err := h.apps.List(e.Request().Context(), q.filter(), !q.Cached)
	if err != nil {
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, list)
}

func (h *Handler) GetApplication(e echo.Context) error {
	app, err := h.apps.Get(e.Request().Context(), e.Param("id"))
	if err != nil {
		return h.transportError(e, err)
	}
	return e.JSON(http.StatusOK, app)
}

// GetDocument streams an upload kept by the backend itself.
func (h *Handler) GetDocument(e echo.Context) error {
	doc, err := h.apps.Document(e.Request().Context(), e.Param("id"))
	if err != nil {
		return h.transportError(e, err)
	}

	contentType := doc.ContentType
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	e.Response().Header().Set(echo.HeaderContentDisposition, mime.FormatMediaType("inline", map[string]string{"filename": doc.Name}))
	return e.Blob(http.StatusOK, contentType, doc.Content)
}

func (h *Handler) SetStatus(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req struct {
		ID     string `param:"id" validate:"required"`
		Status string `json:"status" validate:"required"`
	}

	if err := h.decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	l.Info("changing application status", zap.String("id", req.ID), zap.String("status", req.Status))

	app, err := h.apps.SetStatus(e.Request().Context(), req.ID, req.Status)
	if err != nil {
		l.Error("failed to change status", zap.String("id", req.ID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, app)
}

func (h *Handler) DeleteApplication(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	id := e.Param("id")
	l.Info("deleting application", zap.String("id", id))

	if err := h.apps.Remove(e.Request().Context(), id); err != nil {
		l.Error("failed to delete application", zap.String("id", id), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.NoContent(http.StatusNoContent)
}

func (h *Handler) Export(e echo.Context) error {
	var q listQuery
	if err := h.decodeRequest(e, &q); err != nil {
		return h.transportError(e, err)
	}

	data, err := h.apps.Export(e.Request().Context(), q.filter())
	if err != nil {
		return h.transportError(e, err)
	}

	name := "applications-" + time.Now().UTC().Format("20060102-150405") + ".xlsx"
	e.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+name+`"`)
	return e.Blob(http.StatusOK, export.ContentType, data)
}

func (h *Handler) Notifications(e echo.Context) error {
	if h.feed == nil {
		return e.JSON(http.StatusOK, []listcache.Notification{})
	}
	return e.JSON(http.StatusOK, h.feed.Drain())
}

type errorResponse struct {
	Error *service.Error `json:"error"`
}

func (h *Handler) decodeRequest(e echo.Context, req any) *service.Error {
	if err := e.Bind(req); err != nil {
		return service.NewError(service.ErrorCodeInvalidBody, "invalid request body")
	}

	if err := e.Validate(req); err != nil {
		return service.NewError(service.ErrorCodeInvalidBody, errors.Wrap(err, "request validation failed").Error())
	}
	return nil
}

func asServiceError(err error) *service.Error {
	var serr *service.Error
	if errors.As(err, &serr) {
		return serr
	}
	return service.NewError(service.ErrorCodeUnspecified, err.Error())
}

func (h *Handler) transportError(e echo.Context, err *service.Error) error {
	response := errorResponse{Error: err}

	switch err.Code {
	case service.ErrorCodeNotFound:
		return e.JSON(http.StatusNotFound, response)
	case service.ErrorCodeInvalidBody, service.ErrorCodeValidationFailed:
		return e.JSON(http.StatusBadRequest, response)
	case service.ErrorCodeMutationInFlight:
		return e.JSON(http.StatusConflict, response)
	case service.ErrorCodeUnauthorized:
		return e.JSON(http.StatusUnauthorized, response)
	case service.ErrorCodeForbidden:
		return e.JSON(http.StatusForbidden, response)
	case service.ErrorCodeBackendUnavailable, service.ErrorCodeRejected:
		return e.JSON(http.StatusBadGateway, response)
	default:
		return e.JSON(http.StatusInternalServerError, response)
	}
}

const loginPage = `<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><title>HR Portal Login</title></head>
<body>
<h1>HR Portal Login</h1>
<form id="login">
  <label>Email <input name="email" type="email" required></label>
  <label>Password <input name="password" type="password" required></label>
  <button type="submit">Sign in</button>
</form>
<p id="error"></p>
<script>
document.getElementById("login").addEventListener("submit", async (ev) => {
  ev.preventDefault();
  const body = new URLSearchParams(new FormData(ev.target));
  const res = await fetch("/auth/login", {method: "POST", body});
  if (res.ok) { location.href = "/dashboard"; return; }
  const data = await res.json().catch(() => ({}));
  document.getElementById("error").textContent = (data.error && data.error.message) || "Sign in failed";
});
</script>
</body>
</html>
`
