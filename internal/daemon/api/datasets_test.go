package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carpit680/openbot-go/internal/daemon/hub"
	"github.com/carpit680/openbot-go/pkg/openbot/logging"
)

func newHubMock(t *testing.T, handler http.HandlerFunc) *hub.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := hub.NewClient(logging.New(nil), srv.URL, time.Second)
	require.NoError(t, err)
	return client
}

func TestDatasetsListEndpoint(t *testing.T) {
	c := newTestComponents(t)
	c.Hub = newHubMock(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/datasets", r.URL.Path)
		assert.Equal(t, "alice", r.URL.Query().Get("author"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"id":"alice/set1","author":"alice","downloads":12,"likes":3,"tags":["robotics"]}]`)
	})
	ts := newTestServer(t, c)

	out := getJSON(t, ts, "/datasets?author=alice")
	assert.Equal(t, float64(1), out["count"])
	datasets, ok := out["datasets"].([]any)
	require.True(t, ok)
	require.Len(t, datasets, 1)
	first := datasets[0].(map[string]any)
	assert.Equal(t, "alice/set1", first["id"])
	assert.Equal(t, "set1", first["name"])
	assert.Equal(t, true, first["is_owner"])
}

func TestDatasetsListRequiresAuthor(t *testing.T) {
	ts := newTestServer(t, newTestComponents(t))

	code, out := doJSON(t, ts, http.MethodGet, "/datasets", nil)
	require.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, out["detail"], "author")
}

func TestDatasetsSearchEndpoint(t *testing.T) {
	c := newTestComponents(t)
	c.Hub = newHubMock(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "pick", r.URL.Query().Get("search"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"id":"bob/pick_demo","author":"bob"}]`)
	})
	ts := newTestServer(t, c)

	out := getJSON(t, ts, "/datasets/search?q=pick")
	assert.Equal(t, float64(1), out["count"])

	code, bad := doJSON(t, ts, http.MethodGet, "/datasets/search", nil)
	require.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, bad["detail"], "q query parameter")
}

func TestDatasetDetailsEndpoint(t *testing.T) {
	c := newTestComponents(t)
	c.Hub = newHubMock(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/datasets/alice/set1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"alice/set1","author":"alice","sha":"abc123","private":false}`)
	})
	ts := newTestServer(t, c)

	out := getJSON(t, ts, "/datasets/alice/set1")
	assert.Equal(t, "alice/set1", out["id"])
	assert.Equal(t, "abc123", out["sha"])
}

func TestDatasetDetailsNotFound(t *testing.T) {
	c := newTestComponents(t)
	c.Hub = newHubMock(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	ts := newTestServer(t, c)

	code, out := doJSON(t, ts, http.MethodGet, "/datasets/alice/missing", nil)
	require.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, out["detail"], "Dataset not found")
}

func TestDatasetsUpstreamFailureMapsToBadGateway(t *testing.T) {
	c := newTestComponents(t)
	c.Hub = newHubMock(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	ts := newTestServer(t, c)

	code, out := doJSON(t, ts, http.MethodGet, "/datasets?author=alice", nil)
	require.Equal(t, http.StatusBadGateway, code)
	assert.Contains(t, out["detail"], "Failed to list datasets")
}
