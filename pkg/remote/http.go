package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/mattsolo1/grove-wiki/pkg/models"
	"github.com/mattsolo1/grove-wiki/pkg/stream"
)

// ChatTransport selects how chat replies are received.
type ChatTransport string

const (
	ChatSSE       ChatTransport = "sse"
	ChatWebsocket ChatTransport = "websocket"
)

const maxErrorBody = 4 << 10

// HTTPClient is the JSON-over-HTTP implementation of Client.
type HTTPClient struct {
	base      *url.URL
	http      *http.Client
	dialer    *websocket.Dialer
	transport ChatTransport
	logger    *logrus.Entry
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPClient replaces the default *http.Client.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(c *HTTPClient) { c.http = hc }
}

// WithChatTransport selects server-sent events or a websocket for chat.
func WithChatTransport(t ChatTransport) HTTPOption {
	return func(c *HTTPClient) { c.transport = t }
}

// WithLogger sets the logger.
func WithLogger(logger *logrus.Entry) HTTPOption {
	return func(c *HTTPClient) { c.logger = logger }
}

// NewHTTPClient creates a client rooted at baseURL, e.g.
// "http://localhost:8080/api".
func NewHTTPClient(baseURL string, opts ...HTTPOption) (*HTTPClient, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}

	c := &HTTPClient{
		base:      u,
		http:      &http.Client{Timeout: 30 * time.Second},
		dialer:    websocket.DefaultDialer,
		transport: ChatSSE,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		c.logger = logrus.NewEntry(l)
	}
	c.logger = c.logger.WithField("component", "remote")
	return c, nil
}

func (c *HTTPClient) ListDocuments(ctx context.Context) ([]models.DocumentRecord, error) {
	var out []models.DocumentRecord
	if err := c.do(ctx, "list documents", "", http.MethodGet, c.path("documents"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) GetDocument(ctx context.Context, id string) (*models.DocumentRecord, error) {
	var out models.DocumentRecord
	if err := c.do(ctx, "get document", id, http.MethodGet, c.path("documents", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) CreateDocument(ctx context.Context, parentID, name string, kind models.Kind) (*models.DocumentRecord, error) {
	body := struct {
		ParentID string      `json:"parentId,omitempty"`
		Name     string      `json:"name"`
		Kind     models.Kind `json:"kind"`
	}{parentID, name, kind}

	var out models.DocumentRecord
	if err := c.do(ctx, "create document", parentID, http.MethodPost, c.path("documents"), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) UpdateDocument(ctx context.Context, id string, content, name *string) (*models.DocumentRecord, error) {
	body := struct {
		Content *string `json:"content,omitempty"`
		Name    *string `json:"name,omitempty"`
	}{content, name}

	var out models.DocumentRecord
	if err := c.do(ctx, "update document", id, http.MethodPatch, c.path("documents", id), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) DeleteDocument(ctx context.Context, id string) error {
	return c.do(ctx, "delete document", id, http.MethodDelete, c.path("documents", id), nil, nil)
}

func (c *HTTPClient) UploadDocument(ctx context.Context, up Upload) (*models.DocumentRecord, error) {
	var out models.DocumentRecord
	if err := c.do(ctx, "upload document", up.ParentID, http.MethodPost, c.path("documents", "upload"), up, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) ListTrash(ctx context.Context) ([]models.DocumentRecord, error) {
	var out []models.DocumentRecord
	if err := c.do(ctx, "list trash", "", http.MethodGet, c.path("trash"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) RestoreDocument(ctx context.Context, id string) (*models.DocumentRecord, error) {
	var out models.DocumentRecord
	if err := c.do(ctx, "restore document", id, http.MethodPost, c.path("trash", id, "restore"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) PurgeDocument(ctx context.Context, id string) error {
	return c.do(ctx, "purge document", id, http.MethodDelete, c.path("trash", id), nil, nil)
}

func (c *HTTPClient) AcquireLock(ctx context.Context, documentID string, actor models.Actor) (models.LockGrant, error) {
	var out models.LockGrant
	err := c.do(ctx, "acquire lock", documentID, http.MethodPost, c.path("documents", documentID, "lock"), actor, &out)
	return out, err
}

func (c *HTTPClient) ReleaseLock(ctx context.Context, documentID string, actor models.Actor) error {
	return c.do(ctx, "release lock", documentID, http.MethodPost, c.path("documents", documentID, "unlock"), actor, nil)
}

// SendChatMessage posts text to the session and returns the streamed reply.
func (c *HTTPClient) SendChatMessage(ctx context.Context, sessionID, text string) (io.ReadCloser, error) {
	if c.transport == ChatWebsocket {
		return c.sendChatWebsocket(ctx, sessionID, text)
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.path("chat", "sessions", sessionID, "messages"), chatMessage{Text: text})
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	// The reply may stream for longer than the request timeout.
	hc := *c.http
	hc.Timeout = 0
	resp, err := hc.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, "send chat message", err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, statusError("send chat message", sessionID, resp)
	}
	return resp.Body, nil
}

type chatMessage struct {
	Text string `json:"text"`
}

func (c *HTTPClient) sendChatWebsocket(ctx context.Context, sessionID, text string) (io.ReadCloser, error) {
	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	target := u.JoinPath("chat", "sessions", sessionID, "stream").String()

	conn, resp, err := c.dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil && resp.StatusCode >= 300 {
			return nil, statusError("open chat stream", sessionID, resp)
		}
		return nil, c.transportError(ctx, "open chat stream", err)
	}
	if err := conn.WriteJSON(chatMessage{Text: text}); err != nil {
		_ = conn.Close()
		return nil, c.transportError(ctx, "send chat message", err)
	}
	return stream.FromEmitter(stream.NewWebsocketEmitter(conn)), nil
}

func (c *HTTPClient) path(elem ...string) string {
	return c.base.JoinPath(elem...).String()
}

func (c *HTTPClient) newRequest(ctx context.Context, method, target string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, r)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// do performs one JSON round trip. id names the node the call is about and
// is carried in not-found and conflict errors.
func (c *HTTPClient) do(ctx context.Context, op, id, method, target string, body, out any) error {
	req, err := c.newRequest(ctx, method, target, body)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return c.transportError(ctx, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		err := statusError(op, id, resp)
		c.logger.WithError(err).WithField("status", resp.StatusCode).Warn("Remote call failed")
		return err
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &UnavailableError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *HTTPClient) transportError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	c.logger.WithError(err).WithField("op", op).Warn("Remote unreachable")
	return &UnavailableError{Op: op, Err: err, Retryable: true}
}

// statusError maps an HTTP failure status to the error taxonomy.
func statusError(op, id string, resp *http.Response) error {
	msg := readErrorMessage(resp.Body)
	switch resp.StatusCode {
	case http.StatusNotFound:
		return &models.NodeError{Op: op, ID: id, Err: models.ErrNodeNotFound}
	case http.StatusConflict, http.StatusLocked:
		return &models.NodeError{Op: op, ID: id, Err: models.ErrLockConflict}
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return &models.NodeError{Op: op, ID: id, Err: fmt.Errorf("%w: %s", models.ErrInvalidNode, msg)}
	}
	retryable := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
	return &UnavailableError{
		Op:        op,
		Err:       fmt.Errorf("status %d: %s", resp.StatusCode, msg),
		Retryable: retryable,
	}
}

func readErrorMessage(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(b, &body); err == nil && body.Error != "" {
		return body.Error
	}
	if msg := strings.TrimSpace(string(b)); msg != "" {
		return msg
	}
	return "no details"
}

var _ Client = (*HTTPClient)(nil)
