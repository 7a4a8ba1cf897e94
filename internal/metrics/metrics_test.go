package metrics_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/metrics"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.DownloadFinished("x86_64.zip", nil)
	m.DownloadFinished("x86_64.zip", errors.New("boom"))
	m.DownloadFinished("server.zip", nil)
	m.ChecksumMismatch("server.zip")
	m.RunFinished(true, 5*time.Second)
	m.RunFinished(false, 50*time.Millisecond)
	m.ConsoleLine()
	m.ConsoleLine()

	count, err := testutil.GatherAndCount(reg, "cubekeeper_downloads_total")
	require.NoError(t, err)
	require.Equal(t, 3, count)

	count, err = testutil.GatherAndCount(reg, "cubekeeper_runs_total")
	require.NoError(t, err)
	require.Equal(t, 2, count)

	count, err = testutil.GatherAndCount(reg, "cubekeeper_console_lines_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestRoundTripper(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	client := &http.Client{Transport: m.RoundTripper(nil)}

	for _, path := range []string{"/", "/missing", "/"} {
		res, err := client.Get(srv.URL + path)
		require.NoError(t, err)
		res.Body.Close()
	}

	count, err := testutil.GatherAndCount(reg, "cubekeeper_http_requests_total")
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestNoop(t *testing.T) {
	r := metrics.OrNoop(nil)
	r.DownloadFinished("a", nil)
	r.ChecksumMismatch("a")
	r.RunFinished(true, time.Second)
	r.ConsoleLine()
	require.Equal(t, http.DefaultTransport, r.RoundTripper(http.DefaultTransport))
}
