package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDashboardStatsAreCached(t *testing.T) {
	db, logger := newTestDB(t)
	history := NewHistoryService(db, NewProcessingService(logger), logger)
	stats := NewStatsService(db, time.Minute, logger)

	_, _, err := recordSuccessfulSend(history)
	require.NoError(t, err)

	first := stats.GetDashboardStats(false)
	assert.Equal(t, 1, first.TotalSuccess)

	// Nuevos registros no se reflejan mientras la entrada cacheada siga
	// vigente
	_, _, err = recordSuccessfulSend(history)
	require.NoError(t, err)

	cached := stats.GetDashboardStats(false)
	assert.Equal(t, 1, cached.TotalSuccess)

	forced := stats.GetDashboardStats(true)
	assert.Equal(t, 2, forced.TotalSuccess)
}

func TestDashboardStatsInvalidate(t *testing.T) {
	db, logger := newTestDB(t)
	history := NewHistoryService(db, NewProcessingService(logger), logger)
	stats := NewStatsService(db, time.Minute, logger)

	first := stats.GetDashboardStats(false)
	assert.Zero(t, first.TotalSuccess)

	_, _, err := recordSuccessfulSend(history)
	require.NoError(t, err)

	stats.Invalidate()
	refreshed := stats.GetDashboardStats(false)
	assert.Equal(t, 1, refreshed.TotalSuccess)
	assert.Equal(t, 1, refreshed.MonthCount)
}

func TestDashboardStatsExpiredEntryRefreshes(t *testing.T) {
	db, logger := newTestDB(t)
	history := NewHistoryService(db, NewProcessingService(logger), logger)

	// TTL mínimo: cualquier lectura posterior recalcula
	stats := NewStatsService(db, time.Nanosecond, logger)

	first := stats.GetDashboardStats(false)
	assert.Zero(t, first.TotalSuccess)

	_, _, err := recordSuccessfulSend(history)
	require.NoError(t, err)

	time.Sleep(time.Millisecond)
	refreshed := stats.GetDashboardStats(false)
	assert.Equal(t, 1, refreshed.TotalSuccess)
}

// recordSuccessfulSend inserta un resultado de envío exitoso
func recordSuccessfulSend(history *HistoryService) (string, int, error) {
	return history.RecordSendResults([]map[string]any{
		{
			"num_factura": "25001",
			"empresa":     "Empresa SL",
			"cliente":     "Cliente Uno",
			"estado":      "OK",
			"importe":     100.0,
		},
	}, "")
}
