package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/aep/docsql/api"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Error is a non-2xx response from a docsql server.
type Error struct {
	Code    int
	Message string
}

func (e Error) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

func parseError(rsp *http.Response) error {
	var msg struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	json.NewDecoder(rsp.Body).Decode(&msg)
	if msg.Message != "" {
		return Error{Code: rsp.StatusCode, Message: msg.Message}
	} else if msg.Error != "" {
		return Error{Code: rsp.StatusCode, Message: msg.Error}
	}
	return Error{Code: rsp.StatusCode, Message: rsp.Status}
}

// HTTP talks to a docsql server.
type HTTP struct {
	endpoint string
	client   *http.Client
	pageSize int
}

func NewHTTP(endpoint string, pageSize int) *HTTP {
	return &HTTP{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		pageSize: pageSize,
	}
}

func (h *HTTP) do(ctx context.Context, method string, path string, query url.Values, body any, dest any) (int, error) {
	u := h.endpoint + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	rsp, err := h.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer rsp.Body.Close()

	slog.Debug("[store].HTTP:", "method", method, "url", u, "status", rsp.StatusCode)

	if rsp.StatusCode >= 300 {
		return rsp.StatusCode, parseError(rsp)
	}
	if dest == nil || rsp.StatusCode == http.StatusNoContent {
		return rsp.StatusCode, nil
	}

	dec := json.NewDecoder(rsp.Body)
	dec.UseNumber()
	if err := dec.Decode(dest); err != nil {
		return rsp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return rsp.StatusCode, nil
}

func documentQuery(collection string, id string) url.Values {
	return url.Values{"collection": {collection}, "id": {id}}
}

func (h *HTTP) List(ctx context.Context, collection string, filter *api.Filter, cursor api.Cursor) (*api.Page, error) {
	var page api.Page
	_, err := h.do(ctx, http.MethodPost, "/v1/list", nil, api.ListRequest{
		Collection: collection,
		Filter:     filter,
		Cursor:     cursor,
		Limit:      h.pageSize,
	}, &page)
	if err != nil {
		return nil, err
	}
	return &page, nil
}

func (h *HTTP) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	var rsp api.CreateResponse
	_, err := h.do(ctx, http.MethodPost, "/v1/documents", nil, api.CreateRequest{
		Collection: collection,
		Val:        fields,
	}, &rsp)
	if err != nil {
		return "", err
	}
	return rsp.Id, nil
}

func (h *HTTP) Update(ctx context.Context, collection string, id string, fields map[string]any) error {
	_, err := h.do(ctx, http.MethodPatch, "/v1/documents", documentQuery(collection, id), fields, nil)
	return err
}

func (h *HTTP) Delete(ctx context.Context, collection string, id string) error {
	_, err := h.do(ctx, http.MethodDelete, "/v1/documents", documentQuery(collection, id), nil, nil)
	return err
}

func (h *HTTP) Read(ctx context.Context, collection string, id string) (*api.Document, error) {
	var doc api.Document
	code, err := h.do(ctx, http.MethodGet, "/v1/documents", documentQuery(collection, id), nil, &doc)
	if code == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// Put creates or replaces a document with a caller chosen id.
func (h *HTTP) Put(ctx context.Context, doc api.Document) (string, error) {
	var rsp api.CreateResponse
	_, err := h.do(ctx, http.MethodPut, "/v1/documents", nil, api.CreateRequest{
		Collection: doc.Collection,
		Id:         doc.Id,
		Val:        doc.Val,
	}, &rsp)
	if err != nil {
		return "", err
	}
	return rsp.Id, nil
}

func (h *HTTP) Close() {
	h.client.CloseIdleConnections()
}
