package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattsolo1/grove-wiki/pkg/models"
	"github.com/mattsolo1/grove-wiki/pkg/stream"
)

func newTestServer(t *testing.T, mux *http.ServeMux, opts ...HTTPOption) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := NewHTTPClient(srv.URL+"/api", opts...)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewHTTPClientRejectsBadScheme(t *testing.T) {
	_, err := NewHTTPClient("ftp://example.com")
	assert.Error(t, err)
}

func TestHTTPListAndGet(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/documents", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []models.DocumentRecord{
			{ID: "f1", Name: "Docs", Kind: models.KindFolder},
			{ID: "d1", ParentID: "f1", Name: "Notes.md", Kind: models.KindMarkdown},
		})
	})
	mux.HandleFunc("GET /api/documents/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "d1" {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no such document"})
			return
		}
		writeJSON(w, http.StatusOK, models.DocumentRecord{
			ID: "d1", Name: "Notes.md", Kind: models.KindMarkdown, Content: "# hi",
			Lock: models.LockStatus{Held: true, HolderID: "u2", HolderDisplayName: "Bo"},
		})
	})
	c := newTestServer(t, mux)
	ctx := context.Background()

	list, err := c.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "f1", list[1].ParentID)

	doc, err := c.GetDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "# hi", doc.Content)
	assert.Equal(t, "Bo", doc.Lock.HolderDisplayName)

	_, err = c.GetDocument(ctx, "missing")
	require.ErrorIs(t, err, models.ErrNodeNotFound)
	var ne *models.NodeError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, "missing", ne.ID)
}

func TestHTTPWrites(t *testing.T) {
	type update struct {
		Content *string `json:"content"`
		Name    *string `json:"name"`
	}
	var gotUpdate update
	var gotActor models.Actor

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/documents", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ParentID string      `json:"parentId"`
			Name     string      `json:"name"`
			Kind     models.Kind `json:"kind"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, http.StatusCreated, models.DocumentRecord{ID: "n1", ParentID: body.ParentID, Name: body.Name, Kind: body.Kind})
	})
	mux.HandleFunc("PATCH /api/documents/{id}", func(w http.ResponseWriter, r *http.Request) {
		gotUpdate = update{}
		_ = json.NewDecoder(r.Body).Decode(&gotUpdate)
		rec := models.DocumentRecord{ID: r.PathValue("id")}
		if gotUpdate.Content != nil {
			rec.Content = *gotUpdate.Content
		}
		writeJSON(w, http.StatusOK, rec)
	})
	mux.HandleFunc("DELETE /api/documents/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /api/documents/{id}/lock", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotActor)
		writeJSON(w, http.StatusOK, models.LockGrant{Granted: true, Status: models.LockStatus{Held: true, HolderID: gotActor.ID}})
	})
	mux.HandleFunc("POST /api/documents/{id}/unlock", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "held by someone else"})
	})
	mux.HandleFunc("POST /api/trash/{id}/restore", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, models.DocumentRecord{ID: r.PathValue("id"), Name: "back"})
	})
	c := newTestServer(t, mux)
	ctx := context.Background()

	rec, err := c.CreateDocument(ctx, "f1", "New.md", models.KindMarkdown)
	require.NoError(t, err)
	assert.Equal(t, "n1", rec.ID)
	assert.Equal(t, "f1", rec.ParentID)

	name := "Renamed.md"
	_, err = c.UpdateDocument(ctx, "n1", nil, &name)
	require.NoError(t, err)
	require.NotNil(t, gotUpdate.Name)
	assert.Equal(t, name, *gotUpdate.Name)
	assert.Nil(t, gotUpdate.Content, "a rename does not send content")

	content := "only content"
	rec, err = c.UpdateDocument(ctx, "n1", &content, nil)
	require.NoError(t, err)
	assert.Equal(t, content, rec.Content)
	assert.Nil(t, gotUpdate.Name)

	require.NoError(t, c.DeleteDocument(ctx, "n1"))

	grant, err := c.AcquireLock(ctx, "n1", models.Actor{ID: "u1", DisplayName: "Al"})
	require.NoError(t, err)
	assert.True(t, grant.Granted)
	assert.Equal(t, "u1", gotActor.ID)

	err = c.ReleaseLock(ctx, "n1", models.Actor{ID: "u1"})
	assert.ErrorIs(t, err, models.ErrLockConflict)

	rec, err = c.RestoreDocument(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, "back", rec.Name)
}

func TestHTTPFailuresAreUnavailable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/documents", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	})
	mux.HandleFunc("GET /api/trash", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	})
	c := newTestServer(t, mux)
	ctx := context.Background()

	_, err := c.ListDocuments(ctx)
	require.ErrorIs(t, err, ErrUnavailable)
	assert.True(t, IsRetryable(err))
	assert.Contains(t, err.Error(), "overloaded")

	_, err = c.ListTrash(ctx)
	require.ErrorIs(t, err, ErrUnavailable)
	assert.False(t, IsRetryable(err))
}

func TestHTTPUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewHTTPClient(url)
	require.NoError(t, err)
	_, err = c.ListDocuments(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
	assert.True(t, IsRetryable(err))
}

func TestHTTPChatSSE(t *testing.T) {
	var gotText string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat/sessions/{sid}/messages", func(w http.ResponseWriter, r *http.Request) {
		var msg chatMessage
		_ = json.NewDecoder(r.Body).Decode(&msg)
		gotText = msg.Text
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, part := range []string{"Hel", "lo"} {
			line, _ := stream.FormatFrame(part)
			fmt.Fprint(w, line)
			flusher.Flush()
		}
		fmt.Fprint(w, stream.FormatDone())
	})
	c := newTestServer(t, mux)

	body, err := c.SendChatMessage(context.Background(), "s1", "hi there")
	require.NoError(t, err)
	text, err := stream.NewIngester(nil).Ingest(context.Background(), body, nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)
	assert.Equal(t, "hi there", gotText)
}

func TestHTTPChatWebsocket(t *testing.T) {
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/chat/sessions/{sid}/stream", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var msg chatMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		line, _ := stream.FormatFrame("you said: " + msg.Text)
		_ = conn.WriteMessage(websocket.TextMessage, []byte(line))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(stream.FormatDone()))
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, _, _ = conn.ReadMessage()
	})
	c := newTestServer(t, mux, WithChatTransport(ChatWebsocket))

	body, err := c.SendChatMessage(context.Background(), "s1", "ping")
	require.NoError(t, err)
	text, err := stream.NewIngester(nil).Ingest(context.Background(), body, nil)
	require.NoError(t, err)
	assert.Equal(t, "you said: ping", text)
}
