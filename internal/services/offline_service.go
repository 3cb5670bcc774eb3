package services

import (
	"context"
	"fmt"

	"github.com/factunabo/factunabo-service/internal/database"
	"github.com/factunabo/factunabo-service/internal/models"
	"github.com/sirupsen/logrus"
)

// Transport es el colaborador externo que entrega un envío pendiente a
// la API remota de facturación. Devuelve nil si la entrega se aceptó.
type Transport interface {
	Send(ctx context.Context, item *models.OfflineQueueItem) error
}

// OfflineService maneja la cola de envíos offline: encolado de envíos
// fallidos y reprocesado con reintentos acotados
type OfflineService struct {
	queueRepo  *database.QueueRepository
	transport  Transport
	maxRetries int
	logger     *logrus.Logger
}

// NewOfflineService crea una nueva instancia del servicio
func NewOfflineService(db *database.DB, transport Transport, maxRetries int, logger *logrus.Logger) *OfflineService {
	if maxRetries <= 0 {
		maxRetries = models.DefaultMaxRetries
	}
	return &OfflineService{
		queueRepo:  database.NewQueueRepository(db, logger),
		transport:  transport,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// Enqueue añade un envío no entregado a la cola offline y devuelve su
// identificador
func (s *OfflineService) Enqueue(item *models.OfflineQueueItem) (int64, error) {
	if len(item.Payload) == 0 {
		return 0, fmt.Errorf("queue item payload is empty")
	}
	if item.InvoiceID == "" || item.Company == "" {
		return 0, fmt.Errorf("queue item requires invoice id and company")
	}
	return s.queueRepo.Enqueue(item)
}

// Drain reprocesa hasta limit elementos pendientes en orden FIFO. Cada
// entrega se delega al transport; el resultado decide la transición de
// estado del elemento. Un fallo de entrega nunca aborta el resto del
// lote. Devuelve los recuentos del procesamiento.
func (s *OfflineService) Drain(ctx context.Context, limit int) (models.DrainResult, error) {
	var result models.DrainResult

	items, err := s.queueRepo.GetPending(limit)
	if err != nil {
		return result, fmt.Errorf("error reading pending items: %w", err)
	}

	if len(items) == 0 {
		s.logger.Info("Offline queue is empty, nothing to drain")
		return result, nil
	}

	for i := range items {
		item := &items[i]

		if err := ctx.Err(); err != nil {
			return result, err
		}

		if err := s.attemptDelivery(ctx, item); err != nil {
			if markErr := s.queueRepo.MarkFailed(item.ID, err.Error(), s.maxRetries); markErr != nil {
				s.logger.Errorf("Error marking queue item %d as failed: %v", item.ID, markErr)
			}
			result.Failed++
		} else {
			if markErr := s.queueRepo.MarkSent(item.ID); markErr != nil {
				s.logger.Errorf("Error marking queue item %d as sent: %v", item.ID, markErr)
			}
			result.Succeeded++
		}
		result.Processed++
	}

	s.logger.WithFields(logrus.Fields{
		"procesados": result.Processed,
		"exitos":     result.Succeeded,
		"fallos":     result.Failed,
	}).Info("Offline queue drained")

	return result, nil
}

// attemptDelivery entrega un elemento al transport conteniendo
// cualquier pánico: para la cola, un transport que revienta es un
// fallo de entrega más
func (s *OfflineService) attemptDelivery(ctx context.Context, item *models.OfflineQueueItem) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("transport panic: %v", p)
		}
	}()

	return s.transport.Send(ctx, item)
}

// ClearSent elimina los elementos enviados de la cola y devuelve
// cuántos se eliminaron; los fallidos se conservan
func (s *OfflineService) ClearSent() (int, error) {
	return s.queueRepo.ClearSent()
}

// GetQueueStats devuelve el número de elementos por estado
func (s *OfflineService) GetQueueStats() (map[models.QueueStatus]int, error) {
	return s.queueRepo.CountByStatus()
}

// GetTotalPending devuelve el número de elementos pendientes
func (s *OfflineService) GetTotalPending() (int, error) {
	return s.queueRepo.TotalPending()
}
