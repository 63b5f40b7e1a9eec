package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// FakeRealtimeDB serves JSON documents over the realtime database REST convention.
type FakeRealtimeDB struct {
	server *httptest.Server

	mu   sync.Mutex
	docs map[string]json.RawMessage
}

// NewFakeRealtimeDB starts a database that is closed when the test ends.
func NewFakeRealtimeDB(t *testing.T) *FakeRealtimeDB {
	t.Helper()
	f := &FakeRealtimeDB{docs: make(map[string]json.RawMessage)}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

// URL is the database root URL.
func (f *FakeRealtimeDB) URL() string { return f.server.URL }

// Doc returns the raw document stored under path, without the .json suffix.
func (f *FakeRealtimeDB) Doc(path string) (json.RawMessage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[path]
	return d, ok
}

// Len returns the number of stored documents.
func (f *FakeRealtimeDB) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs)
}

func (f *FakeRealtimeDB) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("auth") != FakeAPIKey {
		http.Error(w, `{"error":"Permission denied"}`, http.StatusUnauthorized)
		return
	}
	if !strings.HasSuffix(r.URL.Path, ".json") {
		http.Error(w, `{"error":"Invalid path"}`, http.StatusBadRequest)
		return
	}
	key := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/"), ".json")

	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch r.Method {
	case http.MethodPut:
		body, err := io.ReadAll(r.Body)
		if err != nil || !json.Valid(body) {
			http.Error(w, `{"error":"Invalid data"}`, http.StatusBadRequest)
			return
		}
		f.docs[key] = body
		_, _ = w.Write(body)
	case http.MethodGet:
		doc, ok := f.docs[key]
		if !ok {
			_, _ = w.Write([]byte("null"))
			return
		}
		_, _ = w.Write(doc)
	case http.MethodDelete:
		delete(f.docs, key)
		_, _ = w.Write([]byte("null"))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
