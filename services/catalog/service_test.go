package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"cinelog/internal/querycache"
)

// fakeTMDB serves canned upstream payloads and counts requests per path.
type fakeTMDB struct {
	mu       sync.Mutex
	hits     map[string]int
	status   map[string]int
	payloads map[string]string
}

func newFakeTMDB() *fakeTMDB {
	return &fakeTMDB{
		hits:     make(map[string]int),
		status:   make(map[string]int),
		payloads: make(map[string]string),
	}
}

func (f *fakeTMDB) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.hits[r.URL.Path]++
		status := f.status[r.URL.Path]
		payload := f.payloads[r.URL.Path]
		f.mu.Unlock()

		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if status != 0 {
			w.WriteHeader(status)
			return
		}
		if payload == "" {
			payload = `{"page":1,"results":[],"total_pages":1,"total_results":0}`
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(payload))
	})
}

func (f *fakeTMDB) hitCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

func newTestService(t *testing.T, fake *fakeTMDB) *Service {
	t.Helper()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)
	cache := querycache.New(time.Hour)
	t.Cleanup(cache.Close)
	return NewService("test-token", "en", srv.URL, cache, DefaultTTLs())
}

func TestSearchMultiCachesByQueryAndPage(t *testing.T) {
	fake := newFakeTMDB()
	fake.payloads["/search/multi"] = `{"page":1,"results":[
		{"media_type":"movie","id":603,"title":"The Matrix"},
		{"media_type":"person","id":6384,"name":"Keanu Reeves"},
		{"media_type":"weird","id":1}
	],"total_pages":1,"total_results":3}`
	svc := newTestService(t, fake)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		page, err := svc.SearchMulti(ctx, "matrix", 1)
		if err != nil {
			t.Fatalf("search failed: %v", err)
		}
		if len(page.Items) != 2 {
			t.Fatalf("expected malformed entry filtered, got %d items", len(page.Items))
		}
	}
	if got := fake.hitCount("/search/multi"); got != 1 {
		t.Fatalf("expected 1 upstream fetch for repeated identical query, got %d", got)
	}
}

func TestSearchGatingSkipsUpstream(t *testing.T) {
	fake := newFakeTMDB()
	svc := newTestService(t, fake)
	ctx := context.Background()

	if page, err := svc.SearchMulti(ctx, "   ", 1); err != nil || len(page.Items) != 0 {
		t.Fatalf("blank multi search should resolve empty, got %v / %v", page, err)
	}
	if page, err := svc.SearchPeople(ctx, "k", 1); err != nil || len(page.Items) != 0 {
		t.Fatalf("single-char person search should resolve empty, got %v / %v", page, err)
	}
	if got := fake.hitCount("/search/multi") + fake.hitCount("/search/person"); got != 0 {
		t.Fatalf("gated searches must not reach upstream, got %d hits", got)
	}
}

func TestClientErrorIsNotRetried(t *testing.T) {
	fake := newFakeTMDB()
	fake.status["/movie/999"] = http.StatusNotFound
	svc := newTestService(t, fake)

	_, err := svc.Details(context.Background(), "movie", 999)
	if err == nil {
		t.Fatal("expected upstream error")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected status in error, got %v", err)
	}
	if got := fake.hitCount("/movie/999"); got != 1 {
		t.Fatalf("4xx responses must not be retried, got %d attempts", got)
	}
}

func TestServerErrorIsRetried(t *testing.T) {
	fake := newFakeTMDB()
	fake.status["/trending/movie/week"] = http.StatusBadGateway
	svc := newTestService(t, fake)

	_, err := svc.Trending(context.Background(), "movie", "week")
	if err == nil {
		t.Fatal("expected upstream error")
	}
	if got := fake.hitCount("/trending/movie/week"); got != 3 {
		t.Fatalf("expected 3 attempts for 5xx, got %d", got)
	}
}

func TestHomeSectionsPartialFailure(t *testing.T) {
	fake := newFakeTMDB()
	fake.payloads["/trending/movie/week"] = `{"page":1,"results":[{"media_type":"movie","id":1,"title":"A"}]}`
	fake.status["/movie/upcoming"] = http.StatusInternalServerError
	svc := newTestService(t, fake)

	page, err := svc.HomeSections(context.Background())
	if err != nil {
		t.Fatalf("partial failure must not be critical: %v", err)
	}
	if !page.Partial {
		t.Fatal("expected partial flag")
	}

	var failed, ok int
	for _, sec := range page.Sections {
		if sec.Failed {
			failed++
		} else {
			ok++
		}
	}
	if failed != 1 || ok != 5 {
		t.Fatalf("expected 1 failed / 5 ok sections, got %d / %d", failed, ok)
	}
}

func TestHomeSectionsCriticalFailure(t *testing.T) {
	fake := newFakeTMDB()
	for _, path := range []string{
		"/trending/movie/week", "/trending/tv/week",
		"/movie/popular", "/movie/top_rated", "/movie/upcoming", "/movie/now_playing",
	} {
		fake.status[path] = http.StatusInternalServerError
	}
	svc := newTestService(t, fake)

	_, err := svc.HomeSections(context.Background())
	if err != ErrAllSectionsFailed {
		t.Fatalf("expected ErrAllSectionsFailed, got %v", err)
	}
}

func TestGenresUseReferenceStaleness(t *testing.T) {
	fake := newFakeTMDB()
	fake.payloads["/genre/movie/list"] = `{"genres":[{"id":28,"name":"Action"}]}`
	svc := newTestService(t, fake)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		genres, err := svc.Genres(ctx, "movie")
		if err != nil {
			t.Fatalf("genres failed: %v", err)
		}
		if len(genres) != 1 || genres[0].Name != "Action" {
			t.Fatalf("unexpected genres %#v", genres)
		}
	}
	if got := fake.hitCount("/genre/movie/list"); got != 1 {
		t.Fatalf("genre list should be served from cache, got %d fetches", got)
	}
}
