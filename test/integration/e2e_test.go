// Package integration contains end-to-end integration tests against a
// running trackersyncd process. Run with: go test -v ./test/integration/... -tags=integration
package integration

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseURL = getEnv("TEST_BASE_URL", "http://localhost:3000")

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// TestClient wraps http.Client with the process's base URL.
type TestClient struct {
	*http.Client
	baseURL string
}

func NewTestClient() *TestClient {
	return &TestClient{
		Client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: baseURL,
	}
}

func (c *TestClient) Get(path string) (*http.Response, error) {
	return c.Client.Get(c.baseURL + path)
}

func parseResponse(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "failed to read response body")
	if target != nil {
		require.NoError(t, json.Unmarshal(body, target), "failed to parse response: %s", string(body))
	}
}

// TestHealthCheck verifies the process reports ready once startup (DB +
// Redis connections) has completed.
func TestHealthCheck(t *testing.T) {
	client := NewTestClient()

	resp, err := client.Get("/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var result map[string]any
	parseResponse(t, resp, &result)
	assert.Equal(t, "healthy", result["status"])
}

// TestPollStatus verifies the poll driver's status endpoint reports a
// completed pass within a bounded number of polling intervals and never
// reports a growing consecutiveFailures count on a healthy setup.
func TestPollStatus(t *testing.T) {
	client := NewTestClient()

	var status map[string]any
	for i := 0; i < 30; i++ {
		resp, err := client.Get("/poll/status")
		require.NoError(t, err)
		parseResponse(t, resp, &status)
		if status["last_run_at"] != nil {
			break
		}
		time.Sleep(time.Second)
	}

	require.NotNil(t, status["last_run_at"], "expected at least one completed poll pass")
	assert.Equal(t, float64(0), status["consecutive_failures"], "expected a healthy setup to report zero consecutive failures")
}

// TestMetricsExposesReconcilerCounters verifies the Prometheus endpoint
// serves the reconciler's own counters, not just Go runtime defaults.
func TestMetricsExposesReconcilerCounters(t *testing.T) {
	client := NewTestClient()

	resp, err := client.Get("/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	for _, metric := range []string{
		"trackersync_reconcile_patches_applied_total",
		"trackersync_pairing_mappings_created_total",
		"trackersync_adapter_calls_total",
	} {
		assert.Contains(t, string(body), metric)
	}
}
