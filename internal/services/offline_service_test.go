package services

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/factunabo/factunabo-service/internal/database"
	"github.com/factunabo/factunabo-service/internal/models"
)

// newTestDB abre una base de datos en memoria con el esquema aplicado
func newTestDB(t *testing.T) (*database.DB, *logrus.Logger) {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.RunMigrations(db, logger))
	return db, logger
}

// mockTransport simula el colaborador de envío remoto; la respuesta se
// decide por número de factura
type mockTransport struct {
	failures map[string]error
	panics   map[string]bool
	sent     []string
}

func (m *mockTransport) Send(_ context.Context, item *models.OfflineQueueItem) error {
	if m.panics[item.InvoiceID] {
		panic("transport roto para " + item.InvoiceID)
	}
	if err, ok := m.failures[item.InvoiceID]; ok {
		return err
	}
	m.sent = append(m.sent, item.InvoiceID)
	return nil
}

func queueItem(invoiceID string) *models.OfflineQueueItem {
	return &models.OfflineQueueItem{
		Payload:   []byte("<factura>" + invoiceID + "</factura>"),
		InvoiceID: invoiceID,
		Company:   "Empresa SL",
	}
}

func TestOfflineEnqueueValidation(t *testing.T) {
	db, logger := newTestDB(t)
	service := NewOfflineService(db, &mockTransport{}, 3, logger)

	_, err := service.Enqueue(&models.OfflineQueueItem{InvoiceID: "1", Company: "E"})
	assert.Error(t, err)

	_, err = service.Enqueue(&models.OfflineQueueItem{Payload: []byte("x")})
	assert.Error(t, err)

	id, err := service.Enqueue(queueItem("25001"))
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))
}

func TestDrainDeliversPendingItems(t *testing.T) {
	db, logger := newTestDB(t)
	transport := &mockTransport{}
	service := NewOfflineService(db, transport, 3, logger)

	for _, id := range []string{"25001", "25002"} {
		_, err := service.Enqueue(queueItem(id))
		require.NoError(t, err)
	}

	result, err := service.Drain(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, models.DrainResult{Processed: 2, Succeeded: 2, Failed: 0}, result)
	assert.Equal(t, []string{"25001", "25002"}, transport.sent)

	pending, err := service.GetTotalPending()
	require.NoError(t, err)
	assert.Equal(t, 0, pending)
}

func TestDrainFailureDoesNotAbortBatch(t *testing.T) {
	db, logger := newTestDB(t)
	transport := &mockTransport{
		failures: map[string]error{"25002": errors.New("api caida")},
	}
	service := NewOfflineService(db, transport, 3, logger)

	for _, id := range []string{"25001", "25002", "25003"} {
		_, err := service.Enqueue(queueItem(id))
		require.NoError(t, err)
	}

	result, err := service.Drain(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, models.DrainResult{Processed: 3, Succeeded: 2, Failed: 1}, result)

	// El fallido sigue pendiente para el siguiente drenado
	pending, err := service.GetTotalPending()
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}

func TestDrainPanicCountsAsFailure(t *testing.T) {
	db, logger := newTestDB(t)
	transport := &mockTransport{
		panics: map[string]bool{"25001": true},
	}
	service := NewOfflineService(db, transport, 3, logger)

	for _, id := range []string{"25001", "25002"} {
		_, err := service.Enqueue(queueItem(id))
		require.NoError(t, err)
	}

	result, err := service.Drain(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, models.DrainResult{Processed: 2, Succeeded: 1, Failed: 1}, result)
	assert.Equal(t, []string{"25002"}, transport.sent)
}

func TestDrainRetriesUntilFailed(t *testing.T) {
	db, logger := newTestDB(t)
	transport := &mockTransport{
		failures: map[string]error{"25001": errors.New("api caida")},
	}
	service := NewOfflineService(db, transport, 3, logger)

	_, err := service.Enqueue(queueItem("25001"))
	require.NoError(t, err)

	// Tres drenados fallidos agotan los reintentos
	for i := 0; i < 3; i++ {
		result, err := service.Drain(context.Background(), 50)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Failed)
	}

	counts, err := service.GetQueueStats()
	require.NoError(t, err)
	assert.Equal(t, 0, counts[models.QueueStatusPending])
	assert.Equal(t, 1, counts[models.QueueStatusFailed])

	// Un cuarto drenado ya no encuentra nada que procesar
	result, err := service.Drain(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, models.DrainResult{}, result)
}

func TestDrainEmptyQueue(t *testing.T) {
	db, logger := newTestDB(t)
	service := NewOfflineService(db, &mockTransport{}, 3, logger)

	result, err := service.Drain(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, models.DrainResult{}, result)
}

func TestDrainStopsOnCancelledContext(t *testing.T) {
	db, logger := newTestDB(t)
	service := NewOfflineService(db, &mockTransport{}, 3, logger)

	_, err := service.Enqueue(queueItem("25001"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = service.Drain(ctx, 50)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClearSentThroughService(t *testing.T) {
	db, logger := newTestDB(t)
	transport := &mockTransport{
		failures: map[string]error{"25003": errors.New("api caida")},
	}
	service := NewOfflineService(db, transport, 1, logger)

	for _, id := range []string{"25001", "25002", "25003"} {
		_, err := service.Enqueue(queueItem(id))
		require.NoError(t, err)
	}

	_, err := service.Drain(context.Background(), 50)
	require.NoError(t, err)

	removed, err := service.ClearSent()
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	counts, err := service.GetQueueStats()
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.QueueStatusFailed])
	assert.Equal(t, 0, counts[models.QueueStatusSent])
}
