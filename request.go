package authclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"sort"
	"strings"
)

// Request is an outbound API call. Body is buffered so that a replay after a
// credential refresh resends identical bytes. The Client never mutates a
// Request passed to it.
type Request struct {
	Method string
	// Path is relative to HTTP.BaseURL ("/products/42") or absolute.
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// NewRequest returns a Request with an empty header set.
func NewRequest(method, path string, body []byte) *Request {
	return &Request{
		Method: method,
		Path:   path,
		Header: make(http.Header),
		Body:   body,
	}
}

// NewJSONRequest encodes v as the request body. A nil v sends no body.
func NewJSONRequest(method, path string, v any) (*Request, error) {
	req := NewRequest(method, path, nil)
	if v == nil {
		return req, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: encode body: %v", ErrInvalidRequest, err)
	}
	req.Body = data
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// FormFile is one file part of a multipart request.
type FormFile struct {
	Field       string
	Name        string
	ContentType string
	Content     []byte
}

// NewMultipartRequest builds a multipart/form-data body. Fields are written
// in key order, then files in the given order.
func NewMultipartRequest(method, path string, fields map[string]string, files ...FormFile) (*Request, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := w.WriteField(k, fields[k]); err != nil {
			return nil, fmt.Errorf("%w: write field %q: %v", ErrInvalidRequest, k, err)
		}
	}

	for _, f := range files {
		if f.Field == "" {
			return nil, fmt.Errorf("%w: file part without field name", ErrInvalidRequest)
		}
		ct := f.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			escapeQuotes(f.Field), escapeQuotes(f.Name)))
		h.Set("Content-Type", ct)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, fmt.Errorf("%w: create part %q: %v", ErrInvalidRequest, f.Field, err)
		}
		if _, err := part.Write(f.Content); err != nil {
			return nil, fmt.Errorf("%w: write part %q: %v", ErrInvalidRequest, f.Field, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%w: close multipart: %v", ErrInvalidRequest, err)
	}

	req := NewRequest(method, path, buf.Bytes())
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// Response is a successful (2xx) result.
type Response struct {
	Status    int
	Header    http.Header
	Body      []byte
	RequestID string
	// Replayed reports whether the response came from the replay after a
	// credential refresh.
	Replayed bool
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	if r == nil || len(r.Body) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, v)
}
