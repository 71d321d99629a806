package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parcelmail/internal/workers"
)

type staticStats struct{ stats workers.Stats }

func (s staticStats) Snapshot() workers.Stats { return s.stats }

func TestHealthEndpoint(t *testing.T) {
	ts := httptest.NewServer(routes(staticStats{}))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestStatusEndpoint(t *testing.T) {
	stats := workers.Stats{
		CyclesRun:       3,
		EmailsSeen:      12,
		EmailsProcessed: 9,
		EmailsDiscarded: 3,
		LastCycleAt:     time.Date(2024, 3, 17, 10, 0, 0, 0, time.UTC),
	}
	ts := httptest.NewServer(routes(staticStats{stats: stats}))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got workers.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, int64(3), got.CyclesRun)
	assert.Equal(t, int64(9), got.EmailsProcessed)
	assert.True(t, got.LastCycleAt.Equal(stats.LastCycleAt))
}
