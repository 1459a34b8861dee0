package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/yakoovad/people-drive/internal/model"
)

type restBackend struct {
	baseURL    string
	httpClient *http.Client
}

// NewREST talks to the registration REST API rooted at baseURL.
func NewREST(baseURL string, timeout time.Duration) Backend {
	return &restBackend{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// requestBody is an encoded request payload with its content type.
type requestBody struct {
	data        []byte
	contentType string
}

func jsonBody(in any) (*requestBody, error) {
	data, err := json.Marshal(in)
	if err != nil {
		return nil, errors.Wrap(err, "encode request")
	}
	return &requestBody{data: data, contentType: "application/json"}, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// formBody builds a multipart/form-data body. Files travel as raw parts with
// their original name and content type.
func formBody(fields url.Values, files map[model.DocumentKind]*model.EncodedFile) (*requestBody, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	for key, values := range fields {
		for _, v := range values {
			if err := w.WriteField(key, v); err != nil {
				return nil, errors.Wrapf(err, "write field %s", key)
			}
		}
	}

	for _, kind := range model.DocumentKinds {
		f, ok := files[kind]
		if !ok || f == nil {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(f.Base64)
		if err != nil {
			return nil, errors.Wrapf(err, "decode %s", kind)
		}

		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			quoteEscaper.Replace(string(kind)), quoteEscaper.Replace(f.Name)))
		h.Set("Content-Type", f.Type)

		part, err := w.CreatePart(h)
		if err != nil {
			return nil, errors.Wrapf(err, "create part %s", kind)
		}
		if _, err = part.Write(data); err != nil {
			return nil, errors.Wrapf(err, "write part %s", kind)
		}
	}

	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "close multipart body")
	}
	return &requestBody{data: buf.Bytes(), contentType: w.FormDataContentType()}, nil
}

func submissionFields(sub *model.Submission) url.Values {
	fields := url.Values{}
	set := func(key, v string) {
		if v != "" {
			fields.Set(key, v)
		}
	}
	set("kind", string(sub.Kind))
	set("full_name", sub.FullName)
	set("team_name", sub.TeamName)
	set("leader_name", sub.LeaderName)
	set("email", sub.Email)
	set("phone", sub.Phone)
	set("address", sub.Address)
	set("department", sub.Department)
	for _, m := range sub.Members {
		fields.Add("members", m)
	}
	return fields
}

func (r *restBackend) List(ctx context.Context) ([]*model.Application, error) {
	var apps []*model.Application
	if err := r.do(ctx, http.MethodGet, "/applications", nil, &apps); err != nil {
		return nil, err
	}
	return checkCollection(apps)
}

func (r *restBackend) Get(ctx context.Context, id string) (*model.Application, error) {
	app := &model.Application{}
	if err := r.do(ctx, http.MethodGet, "/applications/"+url.PathEscape(id), nil, app); err != nil {
		return nil, err
	}
	if err := app.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid application from backend")
	}
	return app, nil
}

// Submit registers the applicant in phase one and uploads documents in phase
// two when there are any.
func (r *restBackend) Submit(ctx context.Context, sub *model.Submission) (*model.Application, error) {
	body, err := formBody(submissionFields(sub), nil)
	if err != nil {
		return nil, err
	}

	app := &model.Application{}
	if err = r.do(ctx, http.MethodPost, "/phase1", body, app); err != nil {
		return nil, errors.Wrap(err, "phase1")
	}
	if app.ID == "" {
		return nil, errors.Wrap(ErrRejected, "phase1 returned no registration id")
	}

	if len(sub.Files) == 0 {
		return app, nil
	}

	body, err = formBody(url.Values{"id": {app.ID}}, sub.Files)
	if err != nil {
		return nil, err
	}

	withDocs := &model.Application{}
	if err = r.do(ctx, http.MethodPost, "/phase2", body, withDocs); err != nil {
		return nil, errors.Wrapf(err, "phase2 for %s", app.ID)
	}
	return withDocs, nil
}

func (r *restBackend) SetStatus(ctx context.Context, id string, status model.Status) error {
	body, err := jsonBody(struct {
		Status model.Status `json:"status"`
	}{Status: status})
	if err != nil {
		return err
	}
	return r.do(ctx, http.MethodPatch, "/status/"+url.PathEscape(id), body, nil)
}

func (r *restBackend) Delete(ctx context.Context, id string) error {
	return r.do(ctx, http.MethodDelete, "/applications/"+url.PathEscape(id), nil, nil)
}

func (r *restBackend) Ping(ctx context.Context) error {
	return r.do(ctx, http.MethodHead, "/applications", nil, nil)
}

func (r *restBackend) do(ctx context.Context, method, path string, in *requestBody, out any) error {
	var body io.Reader
	if in != nil {
		body = bytes.NewReader(in.data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", in.contentType)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 400:
		return errors.Wrap(ErrRejected, restErrorMessage(resp))
	}

	if out == nil || method == http.MethodHead {
		return nil
	}
	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s %s", method, path)
	}
	return nil
}

// restErrorMessage extracts {"error": ...} or {"message": ...} from a failed
// response, falling back to the status line.
func restErrorMessage(resp *http.Response) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(raw, &payload) == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return fmt.Sprintf("status %d", resp.StatusCode)
}
