package gallery

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pithecene-io/imagine/types"
)

func TestClient_Recent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/api/image/recent-images" {
			http.NotFound(w, req)
			return
		}
		if req.URL.Query().Get("offset") != "4" || req.URL.Query().Get("limit") != "2" {
			t.Errorf("unexpected query %s", req.URL.RawQuery)
		}
		hasMore := true
		_ = json.NewEncoder(w).Encode(pageEnvelope{
			Status:     true,
			Items:      []types.GalleryItem{{ID: "a"}, {ID: "b"}},
			Total:      10,
			HasMore:    &hasMore,
			NextOffset: 6,
		})
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	page, err := client.Recent(t.Context(), 4, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(page.Items) != 2 || page.Total != 10 || page.NextOffset != 6 {
		t.Errorf("unexpected page %+v", page)
	}
	if page.HasMore == nil || !*page.HasMore {
		t.Error("has_more lost")
	}
}

func TestClient_StatusFalseSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(pageEnvelope{Status: false, Message: "no images found"})
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	page, err := client.Recent(t.Context(), 0, 10)
	if err != nil {
		t.Fatalf("sentinel must not be an error, got %v", err)
	}
	if len(page.Items) != 0 || page.Total != 0 {
		t.Errorf("expected empty page, got %+v", page)
	}
	if page.HasMore == nil || *page.HasMore {
		t.Error("sentinel page must stop paging")
	}
}

func TestClient_Related(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/api/image/related-images" || req.Method != http.MethodPost {
			http.NotFound(w, req)
			return
		}
		var q types.RelatedQuery
		if err := json.NewDecoder(req.Body).Decode(&q); err != nil {
			t.Errorf("bad body: %v", err)
		}
		if q.Theme != "halloween" || q.Selections["motif"] != "pumpkins" {
			t.Errorf("unexpected query %+v", q)
		}
		_ = json.NewEncoder(w).Encode(pageEnvelope{
			Status: true,
			Items:  []types.GalleryItem{{ID: "r1"}},
			Total:  1,
		})
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	query := types.RelatedQuery{
		ID:         "img-1",
		Theme:      "halloween",
		Type:       "Low",
		Selections: map[string]string{"motif": "pumpkins"},
	}
	page, err := client.Related(t.Context(), query, 0, 10)
	if err != nil {
		t.Fatalf("Related: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "r1" {
		t.Errorf("unexpected page %+v", page)
	}
}

func TestClient_Delete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodDelete || req.URL.Path != "/api/image/delete" {
			http.NotFound(w, req)
			return
		}
		switch req.URL.Query().Get("imageId") {
		case "img-1":
			_ = json.NewEncoder(w).Encode(deleteEnvelope{Success: true})
		default:
			_ = json.NewEncoder(w).Encode(deleteEnvelope{Success: false, Message: "not found"})
		}
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	if err := client.Delete(t.Context(), "img-1"); err != nil {
		t.Errorf("Delete: %v", err)
	}
	// Delete failures propagate, unlike page fetches.
	if err := client.Delete(t.Context(), "img-2"); err == nil {
		t.Error("expected error for rejected delete")
	}
	if err := client.Delete(t.Context(), ""); err == nil {
		t.Error("expected error for empty ID")
	}
}

func TestClient_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := client.Recent(t.Context(), 0, 10); err == nil {
		t.Error("expected error for HTTP 500")
	}
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	if _, err := NewClient(ClientConfig{}); err == nil {
		t.Error("expected error for missing base URL")
	}
}
