//go:build integration

package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mattsolo1/grove-wiki/cmd/config"
	"github.com/mattsolo1/grove-wiki/pkg/models"
	"github.com/mattsolo1/grove-wiki/pkg/remote"
	"github.com/mattsolo1/grove-wiki/pkg/service"
)

// memoryServer serves the document API from an in-memory store.
func memoryServer(mem *remote.Memory) http.Handler {
	mux := http.NewServeMux()
	reply := func(w http.ResponseWriter, v any, err error) {
		if err != nil {
			status := http.StatusInternalServerError
			switch {
			case errors.Is(err, models.ErrNodeNotFound), errors.Is(err, models.ErrParentNotFound):
				status = http.StatusNotFound
			case errors.Is(err, models.ErrLockConflict):
				status = http.StatusConflict
			case errors.Is(err, models.ErrInvalidNode):
				status = http.StatusBadRequest
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		if v == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
	decode := func(r *http.Request, v any) error {
		if err := json.NewDecoder(r.Body).Decode(v); err != nil {
			return models.ErrInvalidNode
		}
		return nil
	}

	mux.HandleFunc("GET /api/documents", func(w http.ResponseWriter, r *http.Request) {
		recs, err := mem.ListDocuments(r.Context())
		reply(w, recs, err)
	})
	mux.HandleFunc("GET /api/documents/{id}", func(w http.ResponseWriter, r *http.Request) {
		rec, err := mem.GetDocument(r.Context(), r.PathValue("id"))
		reply(w, rec, err)
	})
	mux.HandleFunc("POST /api/documents", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ParentID string      `json:"parentId"`
			Name     string      `json:"name"`
			Kind     models.Kind `json:"kind"`
		}
		if err := decode(r, &body); err != nil {
			reply(w, nil, err)
			return
		}
		rec, err := mem.CreateDocument(r.Context(), body.ParentID, body.Name, body.Kind)
		reply(w, rec, err)
	})
	mux.HandleFunc("PATCH /api/documents/{id}", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Content *string `json:"content"`
			Name    *string `json:"name"`
		}
		if err := decode(r, &body); err != nil {
			reply(w, nil, err)
			return
		}
		rec, err := mem.UpdateDocument(r.Context(), r.PathValue("id"), body.Content, body.Name)
		reply(w, rec, err)
	})
	mux.HandleFunc("DELETE /api/documents/{id}", func(w http.ResponseWriter, r *http.Request) {
		reply(w, nil, mem.DeleteDocument(r.Context(), r.PathValue("id")))
	})
	mux.HandleFunc("POST /api/documents/upload", func(w http.ResponseWriter, r *http.Request) {
		var up remote.Upload
		if err := decode(r, &up); err != nil {
			reply(w, nil, err)
			return
		}
		rec, err := mem.UploadDocument(r.Context(), up)
		reply(w, rec, err)
	})
	mux.HandleFunc("POST /api/documents/{id}/lock", func(w http.ResponseWriter, r *http.Request) {
		var actor models.Actor
		if err := decode(r, &actor); err != nil {
			reply(w, nil, err)
			return
		}
		grant, err := mem.AcquireLock(r.Context(), r.PathValue("id"), actor)
		reply(w, grant, err)
	})
	mux.HandleFunc("POST /api/documents/{id}/unlock", func(w http.ResponseWriter, r *http.Request) {
		var actor models.Actor
		if err := decode(r, &actor); err != nil {
			reply(w, nil, err)
			return
		}
		reply(w, nil, mem.ReleaseLock(r.Context(), r.PathValue("id"), actor))
	})
	mux.HandleFunc("GET /api/trash", func(w http.ResponseWriter, r *http.Request) {
		recs, err := mem.ListTrash(r.Context())
		reply(w, recs, err)
	})
	mux.HandleFunc("POST /api/trash/{id}/restore", func(w http.ResponseWriter, r *http.Request) {
		rec, err := mem.RestoreDocument(r.Context(), r.PathValue("id"))
		reply(w, rec, err)
	})
	mux.HandleFunc("DELETE /api/trash/{id}", func(w http.ResponseWriter, r *http.Request) {
		reply(w, nil, mem.PurgeDocument(r.Context(), r.PathValue("id")))
	})
	mux.HandleFunc("POST /api/chat/sessions/{sid}/messages", func(w http.ResponseWriter, r *http.Request) {
		var msg struct {
			Text string `json:"text"`
		}
		if err := decode(r, &msg); err != nil {
			reply(w, nil, err)
			return
		}
		body, err := mem.SendChatMessage(r.Context(), r.PathValue("sid"), msg.Text)
		if err != nil {
			reply(w, nil, err)
			return
		}
		defer body.Close()
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.Copy(w, body)
	})
	return mux
}

func TestIntegration(t *testing.T) {
	// Skip if not running integration tests
	if os.Getenv("RUN_INTEGRATION_TESTS") == "" {
		t.Skip("Skipping integration test. Set RUN_INTEGRATION_TESTS=1 to run.")
	}

	mem := remote.NewMemory()
	srv := httptest.NewServer(memoryServer(mem))
	defer srv.Close()

	tmpDir := t.TempDir()
	cfg := &config.Config{
		Server:  srv.URL + "/api",
		Actor:   models.Actor{ID: "u1", DisplayName: "Al"},
		DataDir: filepath.Join(tmpDir, "data"),
		Chat:    config.ChatConfig{Transport: string(remote.ChatSSE)},
		Retry:   config.RetryConfig{MaxTries: 2},
		Index:   config.IndexConfig{Enabled: true},
	}
	logger, err := config.NewLogger("error")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	svc, err := config.InitService(cfg, logger, nil)
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}
	defer svc.Close()

	ctx := context.Background()
	var folderID, docID string

	// Test 1: Create and rename
	t.Run("CreateAndRename", func(t *testing.T) {
		folder, err := svc.CreateFolder(ctx, "", "Runbooks")
		if err != nil {
			t.Fatalf("Failed to create folder: %v", err)
		}
		doc, err := svc.CreateDocument(ctx, folder.ID, "Deploy.md", models.KindMarkdown)
		if err != nil {
			t.Fatalf("Failed to create document: %v", err)
		}
		if err := svc.Rename(ctx, doc.ID, "Deploys.md"); err != nil {
			t.Fatalf("Failed to rename document: %v", err)
		}
		folderID, docID = folder.ID, doc.ID

		if got := strings.Join(svc.Path(docID), "/"); got != "Runbooks/Deploys.md" {
			t.Errorf("Expected path Runbooks/Deploys.md, got %s", got)
		}

		if _, err := svc.CreateDocument(ctx, "missing", "x.md", models.KindMarkdown); !errors.Is(err, models.ErrParentNotFound) {
			t.Errorf("Expected ErrParentNotFound, got %v", err)
		}
	})

	// Test 2: Refresh picks up the server's view
	t.Run("Refresh", func(t *testing.T) {
		if _, err := mem.CreateDocument(ctx, "", "from-elsewhere.txt", models.KindText); err != nil {
			t.Fatalf("Failed to seed document: %v", err)
		}
		report, err := svc.Refresh(ctx)
		if err != nil {
			t.Fatalf("Failed to refresh: %v", err)
		}
		if report.Added != 1 {
			t.Errorf("Expected 1 added node, got %d", report.Added)
		}
		if _, ok := svc.Lookup(docID); !ok {
			t.Error("Nested document lost after refresh")
		}
	})

	// Test 3: Lock, edit, save and release over HTTP
	t.Run("EditCycle", func(t *testing.T) {
		if _, err := svc.Open(ctx, docID); err != nil {
			t.Fatalf("Failed to open document: %v", err)
		}
		if err := svc.Edit("too early"); !errors.Is(err, models.ErrLockConflict) {
			t.Errorf("Expected ErrLockConflict before locking, got %v", err)
		}
		if err := svc.RequestLock(ctx); err != nil {
			t.Fatalf("Failed to lock: %v", err)
		}
		if err := svc.Edit("---\ntags: [ops]\n---\nRoll back with the blue switch."); err != nil {
			t.Fatalf("Failed to edit: %v", err)
		}
		if err := svc.ReleaseLock(ctx); err != nil {
			t.Fatalf("Failed to release lock: %v", err)
		}
		if svc.IsDirty() {
			t.Error("Session still dirty after release")
		}

		rec, err := mem.GetDocument(ctx, docID)
		if err != nil {
			t.Fatalf("Failed to read back document: %v", err)
		}
		if !strings.Contains(rec.Content, "blue switch") {
			t.Errorf("Content not saved: %q", rec.Content)
		}
		if rec.Lock.Held {
			t.Error("Lock still held on the server")
		}
	})

	// Test 4: Another user's lock blocks editing
	t.Run("LockConflict", func(t *testing.T) {
		if _, err := mem.AcquireLock(ctx, docID, models.Actor{ID: "u2", DisplayName: "Bo"}); err != nil {
			t.Fatalf("Failed to take lock as other user: %v", err)
		}
		if err := svc.CloseDocument(ctx); err != nil {
			t.Fatalf("Failed to close document: %v", err)
		}
		if _, err := svc.Open(ctx, docID); err != nil {
			t.Fatalf("Failed to open document: %v", err)
		}
		if err := svc.RequestLock(ctx); !errors.Is(err, models.ErrLockConflict) {
			t.Errorf("Expected ErrLockConflict, got %v", err)
		}
		if st := svc.LockStatus(); st.HolderName != "Bo" {
			t.Errorf("Expected holder Bo, got %q", st.HolderName)
		}
	})

	// Test 5: Upload and chat
	t.Run("UploadAndChat", func(t *testing.T) {
		n, err := svc.Upload(ctx, folderID, "notes.txt", "plain notes")
		if err != nil {
			t.Fatalf("Failed to upload: %v", err)
		}
		if service.IsPending(n.ID) {
			t.Errorf("Upload returned pending id %s", n.ID)
		}

		var deltas int
		reply, err := svc.Chat(ctx, "hello there", func(string) { deltas++ })
		if err != nil {
			t.Fatalf("Failed to chat: %v", err)
		}
		if reply != "echo: hello there" || deltas != 3 {
			t.Errorf("Unexpected reply %q in %d deltas", reply, deltas)
		}
	})

	// Test 6: Trash and restore
	t.Run("TrashRestore", func(t *testing.T) {
		if err := svc.Delete(ctx, folderID); err != nil {
			t.Fatalf("Failed to delete folder: %v", err)
		}
		if svc.ActiveDocumentID() != "" {
			t.Error("Deleted document is still open")
		}
		trash, err := svc.Trash(ctx)
		if err != nil {
			t.Fatalf("Failed to list trash: %v", err)
		}
		if len(trash) != 1 || trash[0].ID != folderID {
			t.Errorf("Expected only %s in trash, got %+v", folderID, trash)
		}

		restored, err := svc.Restore(ctx, folderID)
		if err != nil {
			t.Fatalf("Failed to restore: %v", err)
		}
		if len(restored.Children) != 2 {
			t.Errorf("Expected 2 restored children, got %d", len(restored.Children))
		}
	})
}
