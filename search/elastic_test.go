package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/lipolab/postboard/models"
)

type fakeES struct {
	mu        sync.Mutex
	created   bool
	indexed   map[string]models.Post
	lastQuery map[string]any
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/":
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, `{"version":{"number":"8.11.1"}}`)
	case r.Method == http.MethodHead && r.URL.Path == "/posts":
		if f.created {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusNotFound)
		}
	case r.Method == http.MethodPut && r.URL.Path == "/posts":
		f.created = true
		_, _ = io.WriteString(w, `{"acknowledged":true}`)
	case strings.HasPrefix(r.URL.Path, "/posts/_doc/"):
		var p models.Post
		_ = json.NewDecoder(r.Body).Decode(&p)
		f.indexed[strings.TrimPrefix(r.URL.Path, "/posts/_doc/")] = p
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"result":"created"}`)
	case r.URL.Path == "/posts/_search":
		_ = json.NewDecoder(r.Body).Decode(&f.lastQuery)
		hits := []map[string]any{}
		for _, p := range f.indexed {
			hits = append(hits, map[string]any{"_source": p})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"hits": map[string]any{"hits": hits}})
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{}`)
	}
}

func TestElasticSinkIndexAndQuery(t *testing.T) {
	fake := &fakeES{indexed: map[string]models.Post{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ctx := context.Background()
	sink := NewElasticSink(ctx, ElasticOptions{URL: srv.URL, Index: "posts"}, nil)
	if !sink.Available() {
		t.Fatal("sink should be available")
	}
	fake.mu.Lock()
	created := fake.created
	fake.mu.Unlock()
	if !created {
		t.Fatal("index was not created")
	}
	if err := sink.Index(ctx, &models.Post{ID: "abc", Title: "Budget Report"}); err != nil {
		t.Fatalf("Index: %v", err)
	}
	posts, err := sink.Query(ctx, "budget")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(posts) != 1 || posts[0].Title != "Budget Report" {
		t.Fatalf("posts = %+v", posts)
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	mm := fake.lastQuery["query"].(map[string]any)["multi_match"].(map[string]any)
	fields := mm["fields"].([]any)
	if fields[0] != "title^2" {
		t.Fatalf("fields = %v", fields)
	}
}

func TestElasticSinkUnreachableIsDisabled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	sink := NewElasticSink(context.Background(), ElasticOptions{URL: url, Index: "posts"}, nil)
	if sink.Available() {
		t.Fatal("sink should be disabled")
	}
	if _, err := sink.Query(context.Background(), "x"); err == nil {
		t.Fatal("disabled sink should fail queries")
	}
}
