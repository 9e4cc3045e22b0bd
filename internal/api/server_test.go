package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdholdren/feedhub/internal/feedhub"
	"github.com/jdholdren/feedhub/internal/sqlite/sqlitetest"
	"github.com/jdholdren/feedhub/internal/subscriptions"
)

type testServer struct {
	*Server

	svc *subscriptions.Service
}

func newTestServer(t *testing.T) testServer {
	t.Helper()

	repo := sqlitetest.NewRepo(t)
	svc := subscriptions.NewService(repo, subscriptions.Options{MaxRetries: 3, RetryBase: time.Millisecond})

	return testServer{
		Server: newServer(ServerConfig{
			CookieHashKey:  securecookie.GenerateRandomKey(32),
			CookieBlockKey: securecookie.GenerateRandomKey(32),
			CorsHeader:     "*",
			DebugEndpoints: true,
		}, svc, repo),
		svc: svc,
	}
}

// login creates the user and returns a cookie carrying their session.
func (s testServer) login(t *testing.T, email string) (feedhub.User, *http.Cookie) {
	t.Helper()

	usr, err := s.svc.EnsureUser(context.Background(), email, nil)
	require.NoError(t, err)
	encoded, err := s.secureCookie.Encode(sessionCookieName, sessionState{UserID: usr.ID})
	require.NoError(t, err)

	return usr, &http.Cookie{Name: sessionCookieName, Value: encoded}
}

func (s testServer) do(t *testing.T, cookie *http.Cookie, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)

	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestRequiresSession(t *testing.T) {
	s := newTestServer(t)

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/feeds"},
		{http.MethodPost, "/api/feeds"},
		{http.MethodGet, "/api/feeds/all"},
		{http.MethodPost, "/api/feeds/abc-fd/follow"},
		{http.MethodDelete, "/api/feeds/abc-fd/follow"},
		{http.MethodPost, "/api/opml/import"},
	} {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			rec := s.do(t, nil, route.method, route.path, nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestPostFeed(t *testing.T) {
	var (
		s         = newTestServer(t)
		_, cookie = s.login(t, "reader@example.com")
	)

	rec := s.do(t, cookie, http.MethodPost, "/api/feeds", strings.NewReader(`{"url":"https://Example.com/rss","name":"Example","description":"Stuff"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	feed := decode[FeedResp](t, rec)
	assert.Equal(t, "https://example.com/rss", feed.URL)
	assert.Equal(t, "Example", feed.Name)

	rec = s.do(t, cookie, http.MethodPost, "/api/feeds", strings.NewReader(`{"url":"https://example.com/rss","name":"Example"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"message":"You are already following a feed with this URL","status":400}`, rec.Body.String())

	rec = s.do(t, cookie, http.MethodGet, "/api/feeds/"+feed.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, feed.ID, decode[FeedResp](t, rec).ID)
}

func TestPostFeed_Invalid(t *testing.T) {
	var (
		s         = newTestServer(t)
		_, cookie = s.login(t, "reader@example.com")
	)

	rec := s.do(t, cookie, http.MethodPost, "/api/feeds", strings.NewReader(`{"url":"not a url","name":"Example"}`))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.JSONEq(t, `{
		"message": "invalid url: must use http or https",
		"status": 422,
		"details": [{"field": "url", "error": "must use http or https"}]
	}`, rec.Body.String())

	rec = s.do(t, cookie, http.MethodPost, "/api/feeds", strings.NewReader(`{"url":`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorMessages(t *testing.T) {
	var (
		s         = newTestServer(t)
		alice, _  = s.login(t, "alice@example.com")
		_, cookie = s.login(t, "bob@example.com")
	)
	feed, err := s.svc.CreateAndFollow(context.Background(), alice.ID, feedhub.FeedInput{URL: "https://example.com/rss", Name: "Example"})
	require.NoError(t, err)

	// A session for a user that's since been removed
	encoded, err := s.secureCookie.Encode(sessionCookieName, sessionState{UserID: "gone-usr"})
	require.NoError(t, err)
	stale := &http.Cookie{Name: sessionCookieName, Value: encoded}

	tests := []struct {
		name         string
		cookie       *http.Cookie
		method       string
		path         string
		body         string
		expectedCode int
		expectedMsg  string
	}{
		{
			name:         "unknown feed",
			cookie:       cookie,
			method:       http.MethodPost,
			path:         "/api/feeds/nope-fd/follow",
			expectedCode: http.StatusNotFound,
			expectedMsg:  "Feed not found",
		},
		{
			name:         "follow with a stale session",
			cookie:       stale,
			method:       http.MethodPost,
			path:         "/api/feeds/" + feed.ID + "/follow",
			expectedCode: http.StatusUnauthorized,
			expectedMsg:  "Your session is no longer valid, please log in again",
		},
		{
			name:         "create with a stale session",
			cookie:       stale,
			method:       http.MethodPost,
			path:         "/api/feeds",
			body:         `{"url":"https://new.example.com/rss","name":"New"}`,
			expectedCode: http.StatusUnauthorized,
			expectedMsg:  "Your session is no longer valid, please log in again",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.cookie, tt.method, tt.path, strings.NewReader(tt.body))

			assert.Equal(t, tt.expectedCode, rec.Code)
			body := decode[map[string]any](t, rec)
			assert.Equal(t, tt.expectedMsg, body["message"])
		})
	}
}

func TestFollowAndUnfollow(t *testing.T) {
	var (
		s         = newTestServer(t)
		alice, _  = s.login(t, "alice@example.com")
		_, cookie = s.login(t, "bob@example.com")
	)
	feed, err := s.svc.CreateAndFollow(context.Background(), alice.ID, feedhub.FeedInput{URL: "https://example.com/rss", Name: "Example"})
	require.NoError(t, err)

	path := "/api/feeds/" + feed.ID + "/follow"
	tests := []struct {
		name         string
		method       string
		path         string
		expectedCode int
	}{
		{name: "follow", method: http.MethodPost, path: path, expectedCode: http.StatusOK},
		{name: "follow again", method: http.MethodPost, path: path, expectedCode: http.StatusBadRequest},
		{name: "unfollow", method: http.MethodDelete, path: path, expectedCode: http.StatusOK},
		{name: "unfollow again", method: http.MethodDelete, path: path, expectedCode: http.StatusBadRequest},
		{name: "follow unknown", method: http.MethodPost, path: "/api/feeds/nope-fd/follow", expectedCode: http.StatusNotFound},
		{name: "unfollow unknown", method: http.MethodDelete, path: "/api/feeds/nope-fd/follow", expectedCode: http.StatusNotFound},
	}

	// Steps build on each other
	for _, tt := range tests {
		rec := s.do(t, cookie, tt.method, tt.path, nil)
		assert.Equal(t, tt.expectedCode, rec.Code, "%s: %s", tt.name, rec.Body.String())
	}
}

func TestGetFeeds(t *testing.T) {
	var (
		ctx         = context.Background()
		s           = newTestServer(t)
		usr, cookie = s.login(t, "reader@example.com")
		other, _    = s.login(t, "other@example.com")
	)
	for _, u := range []string{"https://a.example.com/rss", "https://b.example.com/rss", "https://c.example.com/rss"} {
		_, err := s.svc.CreateAndFollow(ctx, usr.ID, feedhub.FeedInput{URL: u, Name: u})
		require.NoError(t, err)
	}
	_, err := s.svc.CreateAndFollow(ctx, other.ID, feedhub.FeedInput{URL: "https://d.example.com/rss", Name: "D"})
	require.NoError(t, err)

	rec := s.do(t, cookie, http.MethodGet, "/api/feeds?offset=1&limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[FeedsResp](t, rec)
	assert.Equal(t, 3, page.Count)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "https://b.example.com/rss", page.Data[0].URL)
	assert.Equal(t, paginationMeta{Limit: 1, Offset: 1, Total: 3}, page.Pagination)

	rec = s.do(t, cookie, http.MethodGet, "/api/feeds/all", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	all := decode[FeedsResp](t, rec)
	assert.Equal(t, 4, all.Count)
	assert.Len(t, all.Data, 4)
	assert.Equal(t, defaultPageLimit, all.Pagination.Limit)
}

func TestPostOPMLImport(t *testing.T) {
	var (
		s         = newTestServer(t)
		_, cookie = s.login(t, "reader@example.com")
	)
	const doc = `<?xml version="1.0"?>
<opml version="1.0"><head/><body>
  <outline text="News">
    <outline text="One" xmlUrl="https://one.example.com/rss"/>
    <outline text="Two" xmlUrl="https://two.example.com/rss"/>
  </outline>
</body></opml>`

	rec := s.upload(t, cookie, "subs.opml", doc)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, OPMLImportResp{
		Message:       "OPML import completed. 2 feeds imported, 0 feeds skipped.",
		ImportedCount: 2,
	}, decode[OPMLImportResp](t, rec))

	rec = s.upload(t, cookie, "subs.xml", doc)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, OPMLImportResp{
		Message:      "OPML import completed. 0 feeds imported, 2 feeds skipped.",
		SkippedCount: 2,
	}, decode[OPMLImportResp](t, rec))
}

func TestPostOPMLImport_Rejected(t *testing.T) {
	var (
		s         = newTestServer(t)
		_, cookie = s.login(t, "reader@example.com")
	)

	tests := []struct {
		name         string
		filename     string
		doc          string
		expectedCode int
		expectedMsg  string
	}{
		{
			name:         "wrong extension",
			filename:     "subs.txt",
			doc:          `<opml/>`,
			expectedCode: http.StatusBadRequest,
			expectedMsg:  "Invalid file format. Only OPML files are supported.",
		},
		{
			name:         "malformed",
			filename:     "subs.opml",
			doc:          `<opml><body><outline`,
			expectedCode: http.StatusBadRequest,
			expectedMsg:  "Invalid OPML file format. Could not parse XML.",
		},
		{
			name:         "no feeds",
			filename:     "subs.opml",
			doc:          `<opml version="2.0"><body><outline text="Folder"/></body></opml>`,
			expectedCode: http.StatusBadRequest,
			expectedMsg:  "No valid feed entries found in the OPML file.",
		},
		{
			name:         "bad feed url",
			filename:     "subs.opml",
			doc:          `<opml version="2.0"><body><outline text="Bad" xmlUrl="ftp://example.com"/></body></opml>`,
			expectedCode: http.StatusUnprocessableEntity,
			expectedMsg:  "invalid entries[0].url: must use http or https",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.upload(t, cookie, tt.filename, tt.doc)

			assert.Equal(t, tt.expectedCode, rec.Code)
			body := decode[map[string]any](t, rec)
			assert.Equal(t, tt.expectedMsg, body["message"])
		})
	}
}

func (s testServer) upload(t *testing.T, cookie *http.Cookie, filename, doc string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(doc))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/opml/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)

	return rec
}

func TestViewer(t *testing.T) {
	var (
		s           = newTestServer(t)
		usr, cookie = s.login(t, "reader@example.com")
	)
	_, err := s.svc.CreateAndFollow(context.Background(), usr.ID, feedhub.FeedInput{URL: "https://example.com/rss", Name: "Example"})
	require.NoError(t, err)

	rec := s.do(t, nil, http.MethodGet, "/api/viewer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{}`, rec.Body.String())

	rec = s.do(t, cookie, http.MethodGet, "/api/viewer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	viewer := decode[Viewer](t, rec)
	assert.Equal(t, usr.ID, viewer.ID)
	assert.Equal(t, "reader@example.com", viewer.Email)
	assert.Equal(t, 1, viewer.FollowedCount)
}

func TestDebugLogin(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, nil, http.MethodPost, "/api/login", strings.NewReader(`{"email":"new@example.com"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	rec = s.do(t, cookies[0], http.MethodGet, "/api/feeds", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, nil, http.MethodGet, "/api/health-check", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, nil, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestParsePaginationParams(t *testing.T) {
	tests := []struct {
		query          string
		expectedLimit  int
		expectedOffset int
	}{
		{query: "", expectedLimit: 100, expectedOffset: 0},
		{query: "limit=10&offset=20", expectedLimit: 10, expectedOffset: 20},
		{query: "limit=1000", expectedLimit: 500, expectedOffset: 0},
		{query: "limit=-1&offset=-5", expectedLimit: 100, expectedOffset: 0},
		{query: "limit=abc", expectedLimit: 100, expectedOffset: 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
			limit, offset := parsePaginationParams(r, defaultPageLimit, maxPageLimit)
			assert.Equal(t, tt.expectedLimit, limit)
			assert.Equal(t, tt.expectedOffset, offset)
		})
	}
}
