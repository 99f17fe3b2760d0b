package statistic_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"imuslab.com/edgeproxy/mod/database"
	"imuslab.com/edgeproxy/mod/database/dbinc"
	"imuslab.com/edgeproxy/mod/statistic"
)

func newCollector(t *testing.T, db *database.Database) *statistic.Collector {
	t.Helper()
	c, err := statistic.NewStatisticCollector(statistic.CollectorOption{
		Database:     db,
		SaveInterval: time.Hour,
	})
	require.NoError(t, err)
	return c
}

func openDB(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "sys.db"), dbinc.BackendBoltDB)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func TestRecordRequest(t *testing.T) {
	c := newCollector(t, openDB(t))
	defer c.Close()

	c.RecordRequest(statistic.RequestInfo{Listener: "https", Class: "static", StatusCode: 200, Written: 1024, Duration: 20 * time.Millisecond})
	c.RecordRequest(statistic.RequestInfo{Listener: "https", Class: "dynamic", StatusCode: 502})
	c.RecordRequest(statistic.RequestInfo{Listener: "http", Class: "redirect", StatusCode: 301})

	summary := c.TodaySummary()
	assert.EqualValues(t, 3, summary.TotalRequest)
	assert.EqualValues(t, 2, summary.ValidRequest)
	assert.EqualValues(t, 1, summary.ErrorRequest)
	assert.EqualValues(t, 1, summary.ForwardTypes["https:static"])
	assert.EqualValues(t, 1, summary.StatusCodes["502"])

	assert.Equal(t, 1.0, testutil.ToFloat64(c.Metrics.Requests.WithLabelValues("https", "static", "200")))
	assert.Equal(t, 1024.0, testutil.ToFloat64(c.Metrics.ResponseBytes.WithLabelValues("https", "static")))
}

func TestRecordOriginError(t *testing.T) {
	c := newCollector(t, openDB(t))
	defer c.Close()

	c.RecordOriginError("timeout")
	c.RecordOriginError("timeout")
	assert.Equal(t, 2.0, testutil.ToFloat64(c.Metrics.OriginErrors.WithLabelValues("timeout")))
	assert.EqualValues(t, 2, c.TodaySummary().OriginErrors["timeout"])
}

func TestSummarySurvivesRestart(t *testing.T) {
	db := openDB(t)
	c := newCollector(t, db)
	c.RecordRequest(statistic.RequestInfo{Listener: "https", Class: "markup", StatusCode: 200})
	c.Close()

	restarted := newCollector(t, db)
	defer restarted.Close()
	summary := restarted.TodaySummary()
	assert.EqualValues(t, 1, summary.TotalRequest)
	assert.EqualValues(t, 1, summary.ForwardTypes["https:markup"])

	year, month, day := time.Now().Date()
	assert.NotNil(t, restarted.LoadSummaryOfDay(year, month, day))
	assert.Nil(t, restarted.LoadSummaryOfDay(1999, time.January, 1))
}

func TestHandler(t *testing.T) {
	c := newCollector(t, openDB(t))
	defer c.Close()
	c.RecordRequest(statistic.RequestInfo{Listener: "https", Class: "static", StatusCode: 200})

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.True(t, strings.Contains(string(body), `edgeproxy_requests_total{class="static",code="200",listener="https"} 1`))

	resp, err = http.Get(srv.URL + "/stats/today")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Contains(t, string(body), `"TotalRequest":1`)
}

func TestStartServer(t *testing.T) {
	c := newCollector(t, openDB(t))
	defer c.Close()

	srv, err := c.StartServer("127.0.0.1:0")
	require.NoError(t, err)
	defer srv.Close()

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func gaugeValue(t *testing.T, c *statistic.Collector, name string) float64 {
	t.Helper()
	families, err := c.Metrics.Registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			require.Len(t, mf.GetMetric(), 1)
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s not registered", name)
	return 0
}

func TestCertificateExpiryGauge(t *testing.T) {
	c := newCollector(t, openDB(t))
	defer c.Close()

	var notAfter time.Time
	loaded := false
	require.NoError(t, c.Metrics.RegisterCertificateExpiry(func() (time.Time, bool) {
		return notAfter, loaded
	}))
	assert.Equal(t, 0.0, gaugeValue(t, c, "edgeproxy_certificate_expiry_timestamp_seconds"))

	notAfter = time.Unix(1772366400, 0)
	loaded = true
	assert.Equal(t, 1772366400.0, gaugeValue(t, c, "edgeproxy_certificate_expiry_timestamp_seconds"))

	//A second registration is rejected by the registry
	assert.Error(t, c.Metrics.RegisterCertificateExpiry(func() (time.Time, bool) { return time.Time{}, false }))
}
