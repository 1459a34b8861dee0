package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
	"github.com/yakoovad/people-drive/internal/model"
)

const (
	actionSubmit    = "submit_application"
	actionList      = "list_applications"
	actionGet       = "get_application"
	actionSetStatus = "update_status"
	actionDelete    = "delete_application"
	actionPing      = "ping"
)

var envelopeSchema = gojsonschema.NewGoLoader(map[string]any{
	"type":     "object",
	"required": []string{"result"},
	"properties": map[string]any{
		"result": map[string]any{"enum": []string{"success", "error"}},
		"error":  map[string]any{"type": "string"},
		"id":     map[string]any{"type": "string"},
	},
})

var rowSchema = map[string]any{
	"type":     "object",
	"required": []string{"id", "email", "status"},
	"properties": map[string]any{
		"id":     map[string]any{"type": "string", "minLength": 1},
		"email":  map[string]any{"type": "string"},
		"status": map[string]any{"enum": []string{"Pending", "Verified", "Rejected"}},
	},
}

var (
	rowsSchema = gojsonschema.NewGoLoader(map[string]any{"type": "array", "items": rowSchema})
	oneSchema  = gojsonschema.NewGoLoader(rowSchema)
)

type sheetsBackend struct {
	scriptURL  string
	httpClient *http.Client
}

// NewSheets talks to a spreadsheet web-app script that accepts JSON envelopes
// on a single POST endpoint.
func NewSheets(scriptURL string, timeout time.Duration) Backend {
	return &sheetsBackend{
		scriptURL:  scriptURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type envelope struct {
	Action string                                    `json:"action"`
	Data   any                                       `json:"data,omitempty"`
	Files  map[model.DocumentKind]*model.EncodedFile `json:"files,omitempty"`
}

type envelopeResponse struct {
	Result string          `json:"result"`
	Error  string          `json:"error"`
	ID     string          `json:"id"`
	Data   json.RawMessage `json:"data"`
}

// sheetRow is the shape of one spreadsheet row as the script returns it.
type sheetRow struct {
	ID         string            `json:"id"`
	Kind       string            `json:"kind"`
	FullName   string            `json:"fullName"`
	TeamName   string            `json:"teamName"`
	LeaderName string            `json:"leaderName"`
	Members    []string          `json:"members"`
	Email      string            `json:"email"`
	Phone      string            `json:"phone"`
	Address    string            `json:"address"`
	Department string            `json:"department"`
	Status     string            `json:"status"`
	Documents  map[string]string `json:"documents"`
	Timestamp  *time.Time        `json:"timestamp"`
}

func (r *sheetRow) toModel() *model.Application {
	kind := model.Kind(r.Kind)
	if kind == "" {
		kind = model.KindIndividual
		if r.TeamName != "" {
			kind = model.KindTeam
		}
	}

	var docs map[model.DocumentKind]string
	for k, v := range r.Documents {
		if strings.TrimSpace(v) == "" {
			continue
		}
		if docs == nil {
			docs = make(map[model.DocumentKind]string, len(r.Documents))
		}
		docs[model.DocumentKind(k)] = v
	}

	return &model.Application{
		ID:         r.ID,
		Kind:       kind,
		FullName:   r.FullName,
		TeamName:   r.TeamName,
		LeaderName: r.LeaderName,
		Members:    r.Members,
		Email:      r.Email,
		Phone:      r.Phone,
		Address:    r.Address,
		Department: r.Department,
		Status:     model.Status(r.Status),
		Documents:  docs,
		CreatedAt:  r.Timestamp,
	}
}

func submissionRow(sub *model.Submission) map[string]any {
	return map[string]any{
		"kind":       sub.Kind,
		"fullName":   sub.FullName,
		"teamName":   sub.TeamName,
		"leaderName": sub.LeaderName,
		"members":    sub.Members,
		"email":      sub.Email,
		"phone":      sub.Phone,
		"address":    sub.Address,
		"department": sub.Department,
	}
}

func (s *sheetsBackend) List(ctx context.Context) ([]*model.Application, error) {
	resp, err := s.call(ctx, &envelope{Action: actionList})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		return checkCollection(nil)
	}
	if err = validateAgainst(rowsSchema, resp.Data); err != nil {
		return nil, err
	}

	var rows []*sheetRow
	if err = json.Unmarshal(resp.Data, &rows); err != nil {
		return nil, errors.Wrap(err, "decode rows")
	}

	apps := make([]*model.Application, 0, len(rows))
	for _, row := range rows {
		apps = append(apps, row.toModel())
	}
	return checkCollection(apps)
}

func (s *sheetsBackend) Get(ctx context.Context, id string) (*model.Application, error) {
	resp, err := s.call(ctx, &envelope{Action: actionGet, Data: map[string]string{"id": id}})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		return nil, ErrNotFound
	}
	if err = validateAgainst(oneSchema, resp.Data); err != nil {
		return nil, err
	}

	row := &sheetRow{}
	if err = json.Unmarshal(resp.Data, row); err != nil {
		return nil, errors.Wrap(err, "decode row")
	}

	app := row.toModel()
	if err = app.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid row from script")
	}
	return app, nil
}

func (s *sheetsBackend) Submit(ctx context.Context, sub *model.Submission) (*model.Application, error) {
	resp, err := s.call(ctx, &envelope{Action: actionSubmit, Data: submissionRow(sub), Files: sub.Files})
	if err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, errors.Wrap(ErrRejected, "script returned no id")
	}

	app := &model.Application{
		ID:         resp.ID,
		Kind:       sub.Kind,
		FullName:   sub.FullName,
		TeamName:   sub.TeamName,
		LeaderName: sub.LeaderName,
		Members:    sub.Members,
		Email:      sub.Email,
		Phone:      sub.Phone,
		Address:    sub.Address,
		Department: sub.Department,
		Status:     model.StatusPending,
	}

	if len(resp.Data) > 0 && string(resp.Data) != "null" {
		var docs map[model.DocumentKind]string
		if err = json.Unmarshal(resp.Data, &docs); err == nil {
			app.Documents = docs
		}
	}
	return app, nil
}

func (s *sheetsBackend) SetStatus(ctx context.Context, id string, status model.Status) error {
	_, err := s.call(ctx, &envelope{Action: actionSetStatus, Data: map[string]string{"id": id, "status": string(status)}})
	return err
}

func (s *sheetsBackend) Delete(ctx context.Context, id string) error {
	_, err := s.call(ctx, &envelope{Action: actionDelete, Data: map[string]string{"id": id}})
	return err
}

func (s *sheetsBackend) Ping(ctx context.Context) error {
	_, err := s.call(ctx, &envelope{Action: actionPing})
	return err
}

func (s *sheetsBackend) call(ctx context.Context, env *envelope) (*envelopeResponse, error) {
	buf, err := json.Marshal(env)
	if err != nil {
		return nil, errors.Wrap(err, "encode envelope")
	}

	// text/plain keeps the script endpoint free of CORS preflight handling.
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.scriptURL, bytes.NewReader(buf))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "text/plain;charset=utf-8")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "script %s", env.Action)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}
	if resp.StatusCode >= 400 {
		return nil, errors.Wrapf(ErrRejected, "script %s: status %d", env.Action, resp.StatusCode)
	}

	if err = validateAgainst(envelopeSchema, raw); err != nil {
		return nil, err
	}

	out := &envelopeResponse{}
	if err = json.Unmarshal(raw, out); err != nil {
		return nil, errors.Wrap(err, "decode envelope")
	}

	if out.Result != "success" {
		if strings.Contains(strings.ToLower(out.Error), "not found") {
			return nil, ErrNotFound
		}
		msg := out.Error
		if msg == "" {
			msg = "script " + env.Action + " failed"
		}
		return nil, errors.Wrap(ErrRejected, msg)
	}
	return out, nil
}

func validateAgainst(schema gojsonschema.JSONLoader, raw []byte) error {
	if len(raw) == 0 {
		raw = []byte("null")
	}

	result, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return errors.Wrap(err, "schema validation")
	}
	if !result.Valid() {
		msgs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			msgs[i] = desc.String()
		}
		return errors.Errorf("malformed script response: %s", strings.Join(msgs, "; "))
	}
	return nil
}
