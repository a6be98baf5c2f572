package cloud

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
)

func newTestDriveStore(t *testing.T, handler http.HandlerFunc) *DriveStore {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test"})
	store, err := NewDriveStore(context.Background(), ts,
		option.WithEndpoint(server.URL+"/"),
		option.WithHTTPClient(server.Client()),
	)
	require.NoError(t, err)
	return store
}

func TestFindByName(t *testing.T) {
	store := newTestDriveStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/files"), r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, `name='.youtube_analysis.db' and trashed=false`, q.Get("q"))
		assert.Equal(t, "modifiedTime desc", q.Get("orderBy"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"files": [
			{"id": "newest", "name": ".youtube_analysis.db", "modifiedTime": "2025-06-02T00:00:00Z"},
			{"id": "older", "name": ".youtube_analysis.db", "modifiedTime": "2025-06-01T00:00:00Z"}
		]}`))
	})

	files, err := store.FindByName(context.Background(), ".youtube_analysis.db")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, RemoteFile{ID: "newest", Name: ".youtube_analysis.db", ModifiedTime: "2025-06-02T00:00:00Z"}, files[0])
}

func TestDownload(t *testing.T) {
	payload := bytes.Repeat([]byte("sqlite"), 500000)
	store := newTestDriveStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/files/file-1"), r.URL.Path)
		assert.Equal(t, "media", r.URL.Query().Get("alt"))
		w.Write(payload)
	})

	var buf bytes.Buffer
	n, err := store.Download(context.Background(), "file-1", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), n)
	assert.Equal(t, payload, buf.Bytes())
}

func TestDownloadNotFound(t *testing.T) {
	store := newTestDriveStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error": {"code": 404, "message": "File not found"}}`))
	})

	_, err := store.Download(context.Background(), "gone", io.Discard)
	assert.Error(t, err)
}

func TestUploadSendsContent(t *testing.T) {
	var paths []string
	store := newTestDriveStore(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(body), "database-bytes")

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "created-id"}`))
	})

	id, err := store.Create(context.Background(), "scout.db", strings.NewReader("database-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "created-id", id)

	require.NoError(t, store.Update(context.Background(), "created-id", "scout.db", strings.NewReader("database-bytes")))

	require.Len(t, paths, 2)
	assert.True(t, strings.HasPrefix(paths[0], "POST "), paths[0])
	assert.True(t, strings.HasPrefix(paths[1], "PATCH "), paths[1])
	assert.True(t, strings.HasSuffix(paths[1], "/files/created-id"), paths[1])
}

func TestEscapeQuery(t *testing.T) {
	assert.Equal(t, `it\'s.db`, escapeQuery("it's.db"))
	assert.Equal(t, `a\\b`, escapeQuery(`a\b`))
}
