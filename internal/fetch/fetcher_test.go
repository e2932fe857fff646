package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ppiankov/corroborate/internal/cache"
	"github.com/ppiankov/corroborate/internal/logging"
	"github.com/ppiankov/corroborate/internal/merge"
	"github.com/ppiankov/corroborate/internal/model"
)

var articlePage = `<html><body><nav>Menu</nav><article><h1>Headline</h1><p>` +
	strings.Repeat("Body sentence about the launch. ", 10) + `</p></article></body></html>`

func testConfig(robots bool) model.HTTPConfig {
	return model.HTTPConfig{
		Timeout:       5 * time.Second,
		UserAgent:     "CorroborateTest/1.0",
		MaxBodyBytes:  1 << 20,
		RespectRobots: robots,
	}
}

type site struct {
	robots     string
	robotsCode int
	pageHits   atomic.Int32
}

func (s *site) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		if s.robotsCode != 0 {
			w.WriteHeader(s.robotsCode)
			return
		}
		_, _ = w.Write([]byte(s.robots))
	})
	mux.HandleFunc("/article", func(w http.ResponseWriter, r *http.Request) {
		s.pageHits.Add(1)
		if r.Header.Get("User-Agent") != "CorroborateTest/1.0" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(articlePage))
	})
	mux.HandleFunc("/private/article", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(articlePage))
	})
	mux.HandleFunc("/stub", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<article><p>Too short.</p></article>`))
	})
	mux.HandleFunc("/feed.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF"))
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/busy", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	return mux
}

func TestFetcher_ExtractsAndCaches(t *testing.T) {
	s := &site{robots: "User-agent: *\nDisallow: /private/\n"}
	server := httptest.NewServer(s.handler())
	defer server.Close()

	store := cache.NewArticleStore(cache.NewMemoryCache(time.Minute, time.Minute), time.Minute)
	f := New(testConfig(true), 100, store)

	text, err := f.Fetch(context.Background(), server.URL+"/article")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "Headline\nBody sentence"))
	assert.NotContains(t, text, "Menu")

	again, err := f.Fetch(context.Background(), server.URL+"/article")
	require.NoError(t, err)
	assert.Equal(t, text, again)
	assert.Equal(t, int32(1), s.pageHits.Load(), "second fetch is served from cache")
}

type brokenCache struct{}

func (brokenCache) Get(string) ([]byte, bool)               { return nil, false }
func (brokenCache) Set(string, []byte, time.Duration) error { return errors.New("disk full") }
func (brokenCache) Delete(string) error                     { return nil }
func (brokenCache) Clear() error                            { return nil }

func TestFetcher_CacheWriteFailureIsLogged(t *testing.T) {
	s := &site{robots: "User-agent: *\nAllow: /\n"}
	server := httptest.NewServer(s.handler())
	defer server.Close()

	core, logs := observer.New(zapcore.DebugLevel)
	log := &logging.Logger{SugaredLogger: zap.New(core).Sugar()}
	f := New(testConfig(false), 100, cache.NewArticleStore(brokenCache{}, time.Minute)).WithLogger(log)

	text, err := f.Fetch(context.Background(), server.URL+"/article")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "Headline"))

	entries := logs.FilterMessage("article cache write failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, server.URL+"/article", entries[0].ContextMap()["url"])
}

func TestFetcher_PermanentFailures(t *testing.T) {
	s := &site{robots: "User-agent: *\nDisallow: /private/\n"}
	server := httptest.NewServer(s.handler())
	defer server.Close()

	f := New(testConfig(true), 100, nil)

	tests := []struct {
		path string
		want string
	}{
		{"/private/article", "robots.txt"},
		{"/gone", "404"},
		{"/stub", "too short"},
		{"/feed.pdf", "content type"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			_, err := f.Fetch(context.Background(), server.URL+tt.path)
			require.Error(t, err)
			assert.ErrorIs(t, err, merge.ErrPermanent)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := f.Fetch(context.Background(), server.URL+"/stub")
	assert.True(t, errors.Is(err, ErrTooShort))
}

func TestFetcher_ServerErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer((&site{}).handler())
	defer server.Close()

	f := New(testConfig(false), 100, nil)
	_, err := f.Fetch(context.Background(), server.URL+"/busy")

	require.Error(t, err)
	assert.NotErrorIs(t, err, merge.ErrPermanent)
	assert.Contains(t, err.Error(), "503")
}

func TestRobotsChecker_StatusConventions(t *testing.T) {
	tests := []struct {
		code    int
		allowed bool
	}{
		{http.StatusNotFound, true},
		{http.StatusInternalServerError, false},
	}
	for _, tt := range tests {
		server := httptest.NewServer((&site{robotsCode: tt.code}).handler())

		checker := NewRobotsChecker(server.Client(), "CorroborateTest/1.0")
		allowed, _, err := checker.CanFetch(context.Background(), server.URL+"/article")
		require.NoError(t, err)
		assert.Equal(t, tt.allowed, allowed, "robots status %d", tt.code)

		server.Close()
	}
}

func TestRobotsChecker_CrawlDelay(t *testing.T) {
	server := httptest.NewServer((&site{robots: "User-agent: *\nCrawl-delay: 3\n"}).handler())
	defer server.Close()

	checker := NewRobotsChecker(server.Client(), "CorroborateTest/1.0")
	allowed, delay, err := checker.CanFetch(context.Background(), server.URL+"/article")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 3*time.Second, delay)
}

func TestRobotsChecker_UnreachableAllows(t *testing.T) {
	checker := NewRobotsChecker(&http.Client{Timeout: time.Second}, "CorroborateTest/1.0")
	allowed, _, err := checker.CanFetch(context.Background(), "http://127.0.0.1:1/article")
	require.NoError(t, err)
	assert.True(t, allowed)
}
