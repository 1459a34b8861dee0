package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/yakoovad/people-drive/internal/auth"
	"github.com/yakoovad/people-drive/internal/backend"
	"github.com/yakoovad/people-drive/internal/export"
	"github.com/yakoovad/people-drive/internal/form"
	"github.com/yakoovad/people-drive/internal/listcache"
	"github.com/yakoovad/people-drive/internal/model"
	"github.com/yakoovad/people-drive/internal/service"
	"go.uber.org/zap"
)

type testServer struct {
	e        *echo.Echo
	cache    *service.MockListCache
	target   *service.MockTarget
	accounts *service.MockAuthenticator
	docs     *service.MockDocumentSource
	feed     *listcache.Feed

	hrToken    string
	adminToken string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	issuer := auth.NewTokenIssuer("handler-test-secret", time.Hour)
	hrToken, _, err := issuer.Issue(&auth.Account{Email: "hr@peopledrive.io", Name: "Recruiter", Role: auth.RoleHR})
	require.NoError(t, err)
	adminToken, _, err := issuer.Issue(&auth.Account{Email: "admin@peopledrive.io", Name: "Admin", Role: auth.RoleAdmin})
	require.NoError(t, err)

	s := &testServer{
		e:          echo.New(),
		cache:      new(service.MockListCache),
		target:     new(service.MockTarget),
		accounts:   new(service.MockAuthenticator),
		docs:       new(service.MockDocumentSource),
		feed:       listcache.NewFeed(10),
		hrToken:    hrToken,
		adminToken: adminToken,
	}

	NewHandler(zap.NewNop()).
		WithApplicationService(service.NewApplicationService(s.cache).WithDocuments(s.docs)).
		WithSubmissionService(service.NewSubmissionService(s.target, form.NewValidator(nil, 0))).
		WithAuthService(service.NewAuthService(s.accounts, issuer)).
		WithNotificationFeed(s.feed).
		RegisterRoutes(s.e)

	return s
}

func (s *testServer) do(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func apps() []*model.Application {
	return []*model.Application{
		{ID: "A", Kind: model.KindIndividual, FullName: "Asha Rao", Email: "asha@example.com", Department: "Tech", Status: model.StatusPending},
		{ID: "B", Kind: model.KindIndividual, FullName: "Ravi Kumar", Email: "ravi@example.com", Department: "HR", Status: model.StatusVerified},
	}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) *service.Error {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	return body.Error
}

func TestDashboardGate(t *testing.T) {
	tests := []struct {
		name           string
		token          string
		accept         string
		expectedStatus int
		expectedCode   service.ErrorCode
		location       string
	}{
		{
			name:           "api client without session",
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   service.ErrorCodeUnauthorized,
		},
		{
			name:           "browser without session is sent to login",
			accept:         "text/html,application/xhtml+xml",
			expectedStatus: http.StatusSeeOther,
			location:       LoginPath,
		},
		{
			name:           "garbage token",
			token:          "not-a-token",
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   service.ErrorCodeUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)

			req := httptest.NewRequest(http.MethodGet, "/dashboard/applications", nil)
			if tt.accept != "" {
				req.Header.Set(echo.HeaderAccept, tt.accept)
			}
			rec := s.do(req, tt.token)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			if tt.location != "" {
				assert.Equal(t, tt.location, rec.Header().Get(echo.HeaderLocation))
			}
			if tt.expectedCode != "" {
				assert.Equal(t, tt.expectedCode, decodeError(t, rec).Code)
			}
			s.cache.AssertNotCalled(t, "Snapshot")
		})
	}
}

func TestListApplications(t *testing.T) {
	tests := []struct {
		name           string
		query          string
		setupMocks     func(*service.MockListCache)
		expectedStatus int
		expectedIDs    []string
		expectedState  listcache.State
	}{
		{
			name:  "all",
			query: "",
			setupMocks: func(c *service.MockListCache) {
				c.On("Load", mock.Anything).Return(apps(), nil)
				c.On("Snapshot").Return(listcache.Snapshot{Applications: apps(), State: listcache.StateLoaded})
			},
			expectedStatus: http.StatusOK,
			expectedIDs:    []string{"A", "B"},
			expectedState:  listcache.StateLoaded,
		},
		{
			name:  "cached and filtered by status",
			query: "?cached=1&status=verified",
			setupMocks: func(c *service.MockListCache) {
				c.On("Snapshot").Return(listcache.Snapshot{Applications: apps(), State: listcache.StateCached})
			},
			expectedStatus: http.StatusOK,
			expectedIDs:    []string{"B"},
			expectedState:  listcache.StateCached,
		},
		{
			name:  "failed refresh still serves the list",
			query: "?search=asha",
			setupMocks: func(c *service.MockListCache) {
				c.On("Load", mock.Anything).Return(nil, errors.New("timeout"))
				c.On("Snapshot").Return(listcache.Snapshot{Applications: apps(), State: listcache.StateError})
			},
			expectedStatus: http.StatusOK,
			expectedIDs:    []string{"A"},
			expectedState:  listcache.StateError,
		},
		{
			name:           "bad status filter",
			query:          "?status=archived",
			setupMocks:     func(*service.MockListCache) {},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			tt.setupMocks(s.cache)

			rec := s.do(httptest.NewRequest(http.MethodGet, "/dashboard/applications"+tt.query, nil), s.hrToken)

			require.Equal(t, tt.expectedStatus, rec.Code, rec.Body.String())
			if tt.expectedStatus != http.StatusOK {
				return
			}

			var list service.ApplicationList
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
			ids := make([]string, 0, len(list.Applications))
			for _, a := range list.Applications {
				ids = append(ids, a.ID)
			}
			assert.Equal(t, tt.expectedIDs, ids)
			assert.Equal(t, tt.expectedState, list.State)
			s.cache.AssertExpectations(t)
		})
	}
}

func TestSetStatus(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		setupMocks     func(*service.MockListCache)
		expectedStatus int
		expectedCode   service.ErrorCode
	}{
		{
			name: "success",
			body: `{"status":"Verified"}`,
			setupMocks: func(c *service.MockListCache) {
				c.On("SetStatus", mock.Anything, "A", model.StatusVerified).Return(nil)
				c.On("Get", "A").Return(&model.Application{ID: "A", Status: model.StatusVerified}, true)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "missing status",
			body:           `{}`,
			setupMocks:     func(*service.MockListCache) {},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   service.ErrorCodeInvalidBody,
		},
		{
			name:           "unknown status",
			body:           `{"status":"Archived"}`,
			setupMocks:     func(*service.MockListCache) {},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   service.ErrorCodeValidationFailed,
		},
		{
			name: "change in flight",
			body: `{"status":"Rejected"}`,
			setupMocks: func(c *service.MockListCache) {
				c.On("SetStatus", mock.Anything, "A", model.StatusRejected).Return(listcache.ErrMutationInFlight)
			},
			expectedStatus: http.StatusConflict,
			expectedCode:   service.ErrorCodeMutationInFlight,
		},
		{
			name: "backend failure after rollback",
			body: `{"status":"Rejected"}`,
			setupMocks: func(c *service.MockListCache) {
				c.On("SetStatus", mock.Anything, "A", model.StatusRejected).Return(errors.New("502 from backend"))
			},
			expectedStatus: http.StatusBadGateway,
			expectedCode:   service.ErrorCodeBackendUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			tt.setupMocks(s.cache)

			req := httptest.NewRequest(http.MethodPatch, "/dashboard/applications/A/status", strings.NewReader(tt.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := s.do(req, s.hrToken)

			require.Equal(t, tt.expectedStatus, rec.Code, rec.Body.String())
			if tt.expectedCode != "" {
				assert.Equal(t, tt.expectedCode, decodeError(t, rec).Code)
			}
			s.cache.AssertExpectations(t)
		})
	}
}

func TestDeleteApplication(t *testing.T) {
	tests := []struct {
		name           string
		admin          bool
		setupMocks     func(*service.MockListCache)
		expectedStatus int
	}{
		{
			name:           "hr may not delete",
			setupMocks:     func(*service.MockListCache) {},
			expectedStatus: http.StatusForbidden,
		},
		{
			name:  "admin deletes",
			admin: true,
			setupMocks: func(c *service.MockListCache) {
				c.On("Remove", mock.Anything, "A").Return(nil)
			},
			expectedStatus: http.StatusNoContent,
		},
		{
			name:  "unknown id",
			admin: true,
			setupMocks: func(c *service.MockListCache) {
				c.On("Remove", mock.Anything, "A").Return(listcache.ErrNotFound)
			},
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			tt.setupMocks(s.cache)

			token := s.hrToken
			if tt.admin {
				token = s.adminToken
			}
			rec := s.do(httptest.NewRequest(http.MethodDelete, "/dashboard/applications/A", nil), token)

			assert.Equal(t, tt.expectedStatus, rec.Code, rec.Body.String())
			s.cache.AssertExpectations(t)
		})
	}
}

func multipartBody(t *testing.T, fields map[string]string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for k, data := range files {
		fw, err := w.CreateFormFile(k, k+".pdf")
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func TestApply(t *testing.T) {
	pdf := []byte("%PDF-1.4\n%%EOF\n")
	fields := map[string]string{
		"full_name":  "Asha Rao",
		"email":      "asha@example.com",
		"phone":      "9876543210",
		"department": "Tech",
	}
	allDocs := map[string][]byte{"resume": pdf, "aadhaar": pdf, "pan": pdf, "passbook": pdf}

	tests := []struct {
		name           string
		files          map[string][]byte
		setupMocks     func(*service.MockTarget)
		expectedStatus int
		expectedCode   service.ErrorCode
	}{
		{
			name:  "success",
			files: allDocs,
			setupMocks: func(m *service.MockTarget) {
				m.On("Submit", mock.Anything, mock.MatchedBy(func(sub *model.Submission) bool {
					return sub.FullName == "Asha Rao" && len(sub.Files) == 4
				})).Return(&model.Application{ID: "reg-1", Kind: model.KindIndividual, Status: model.StatusPending}, nil)
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:  "subset of documents",
			files: map[string][]byte{"resume": pdf},
			setupMocks: func(m *service.MockTarget) {
				m.On("Submit", mock.Anything, mock.MatchedBy(func(sub *model.Submission) bool {
					return len(sub.Files) == 1
				})).Return(&model.Application{ID: "reg-1", Kind: model.KindIndividual, Status: model.StatusPending}, nil)
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "oversized document",
			files:          map[string][]byte{"resume": append([]byte("%PDF-1.4\n"), make([]byte, form.DefaultMaxFileSize)...)},
			setupMocks:     func(*service.MockTarget) {},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   service.ErrorCodeValidationFailed,
		},
		{
			name:  "backend unavailable",
			files: allDocs,
			setupMocks: func(m *service.MockTarget) {
				m.On("Submit", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))
			},
			expectedStatus: http.StatusBadGateway,
			expectedCode:   service.ErrorCodeBackendUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			tt.setupMocks(s.target)

			body, contentType := multipartBody(t, fields, tt.files)
			req := httptest.NewRequest(http.MethodPost, "/apply", body)
			req.Header.Set(echo.HeaderContentType, contentType)
			rec := s.do(req, "")

			require.Equal(t, tt.expectedStatus, rec.Code, rec.Body.String())
			if tt.expectedCode != "" {
				assert.Equal(t, tt.expectedCode, decodeError(t, rec).Code)
			} else {
				assert.Contains(t, rec.Body.String(), `"id":"reg-1"`)
			}
			s.target.AssertExpectations(t)
		})
	}
}

func TestApplicationStatus(t *testing.T) {
	s := newTestServer(t)
	s.cache.On("Get", "A").Return(apps()[0], true)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/apply/A", nil), "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"Pending"`)
	assert.NotContains(t, rec.Body.String(), "asha@example.com")
}

func TestLoginAndCookieSession(t *testing.T) {
	s := newTestServer(t)
	s.accounts.On("Authenticate", "hr@peopledrive.io", "secret").
		Return(&auth.Account{Email: "hr@peopledrive.io", Name: "Recruiter", Role: auth.RoleHR}, nil)
	s.accounts.On("Authenticate", "hr@peopledrive.io", "wrong").Return(nil, auth.ErrInvalidCredentials)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"hr@peopledrive.io","password":"wrong"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := s.do(req, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"hr@peopledrive.io","password":"secret"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = s.do(req, "")
	require.Equal(t, http.StatusOK, rec.Code)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, int(time.Hour.Seconds()), cookies[0].MaxAge)

	req = httptest.NewRequest(http.MethodGet, "/dashboard/me", nil)
	req.AddCookie(cookies[0])
	rec = s.do(req, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var session auth.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	assert.Equal(t, "hr@peopledrive.io", session.Email)
	assert.Equal(t, auth.RoleHR, session.Role)

	rec = s.do(httptest.NewRequest(http.MethodPost, "/auth/logout", nil), "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Empty(t, cleared[0].Value)
	assert.Less(t, cleared[0].MaxAge, 0)
}

func TestOverviewAndNotifications(t *testing.T) {
	s := newTestServer(t)
	s.cache.On("Snapshot").Return(listcache.Snapshot{Applications: apps(), State: listcache.StateLoaded})
	s.feed.Notify(listcache.Notification{Level: listcache.LevelError, Action: listcache.ActionRemove, ID: "A", Message: "change was not saved"})

	rec := s.do(httptest.NewRequest(http.MethodGet, "/dashboard?cached=1", nil), s.hrToken)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats model.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 1, stats.Verified)

	rec = s.do(httptest.NewRequest(http.MethodGet, "/dashboard/notifications", nil), s.hrToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var notes []listcache.Notification
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &notes))
	require.Len(t, notes, 1)
	assert.Equal(t, "A", notes[0].ID)

	rec = s.do(httptest.NewRequest(http.MethodGet, "/dashboard/notifications", nil), s.hrToken)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestExport(t *testing.T) {
	s := newTestServer(t)
	s.cache.On("Snapshot").Return(listcache.Snapshot{Applications: apps(), State: listcache.StateLoaded})

	rec := s.do(httptest.NewRequest(http.MethodGet, "/dashboard/export?department=Tech", nil), s.hrToken)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, export.ContentType, rec.Header().Get(echo.HeaderContentType))
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), ".xlsx")
	assert.NotEmpty(t, rec.Body.Bytes())
}

func TestGetDocument(t *testing.T) {
	tests := []struct {
		name           string
		token          func(*testServer) string
		setupMocks     func(*service.MockDocumentSource)
		expectedStatus int
		expectedType   string
		expectedBody   string
	}{
		{
			name:  "streams stored upload",
			token: func(s *testServer) string { return s.hrToken },
			setupMocks: func(m *service.MockDocumentSource) {
				m.On("Document", mock.Anything, "doc-1").Return(&backend.Document{
					ID: "doc-1", Name: "cv.pdf", ContentType: "application/pdf", Content: []byte("%PDF-1.4"),
				}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedType:   "application/pdf",
			expectedBody:   "%PDF-1.4",
		},
		{
			name:  "unknown document",
			token: func(s *testServer) string { return s.hrToken },
			setupMocks: func(m *service.MockDocumentSource) {
				m.On("Document", mock.Anything, "doc-1").Return(nil, backend.ErrNotFound)
			},
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "requires a session",
			token:          func(*testServer) string { return "" },
			setupMocks:     func(*service.MockDocumentSource) {},
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			tt.setupMocks(s.docs)

			req := httptest.NewRequest(http.MethodGet, backend.DocumentPath+"doc-1", nil)
			rec := s.do(req, tt.token(s))

			require.Equal(t, tt.expectedStatus, rec.Code, rec.Body.String())
			if tt.expectedBody != "" {
				assert.Equal(t, tt.expectedType, rec.Header().Get(echo.HeaderContentType))
				assert.Equal(t, tt.expectedBody, rec.Body.String())
				assert.Equal(t, `inline; filename=cv.pdf`, rec.Header().Get(echo.HeaderContentDisposition))
			}
			s.docs.AssertExpectations(t)
		})
	}
}
