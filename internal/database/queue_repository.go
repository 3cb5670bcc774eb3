package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/factunabo/factunabo-service/internal/models"
	"github.com/sirupsen/logrus"
)

// QueueRepository maneja las operaciones de base de datos para la cola
// de envíos offline. El repositorio es el único propietario de los
// contadores de intentos y del estado de cada elemento.
type QueueRepository struct {
	db     *DB
	logger *logrus.Logger
}

// NewQueueRepository crea una nueva instancia del repositorio
func NewQueueRepository(db *DB, logger *logrus.Logger) *QueueRepository {
	return &QueueRepository{
		db:     db,
		logger: logger,
	}
}

// Enqueue añade un envío fallido a la cola en estado PENDING
func (r *QueueRepository) Enqueue(item *models.OfflineQueueItem) (int64, error) {
	query := `
		INSERT INTO offline_queue
		(xml_content, num_factura, empresa, ejercicio, cliente_doc, api_key, fecha_creacion, estado)
		VALUES (?, ?, ?, ?, ?, ?, ?, 'PENDING')
	`

	createdAt := item.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	result, err := r.db.ExecWithTimeout(query,
		item.Payload,
		item.InvoiceID,
		item.Company,
		item.Exercise,
		item.CustomerDoc,
		item.APIKeyRef,
		createdAt.Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("error enqueuing item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("error getting queue item id: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"queue_id":    id,
		"num_factura": item.InvoiceID,
		"empresa":     item.Company,
	}).Info("Invoice added to offline queue")

	return id, nil
}

// GetPending devuelve hasta limit elementos PENDING en orden FIFO
// por fecha de creación
func (r *QueueRepository) GetPending(limit int) ([]models.OfflineQueueItem, error) {
	query := `
		SELECT id, xml_content, num_factura, empresa, ejercicio, cliente_doc,
			   api_key, fecha_creacion, intentos, ultimo_intento, estado, error_message
		FROM offline_queue
		WHERE estado = 'PENDING'
		ORDER BY fecha_creacion ASC, id ASC
		LIMIT ?
	`

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying pending items: %w", err)
	}
	defer rows.Close()

	var items []models.OfflineQueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

// GetByID devuelve un elemento de la cola por su identificador
func (r *QueueRepository) GetByID(id int64) (*models.OfflineQueueItem, error) {
	query := `
		SELECT id, xml_content, num_factura, empresa, ejercicio, cliente_doc,
			   api_key, fecha_creacion, intentos, ultimo_intento, estado, error_message
		FROM offline_queue
		WHERE id = ?
	`

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("error querying queue item: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, fmt.Errorf("queue item not found: %d", id)
	}

	item, err := scanQueueItem(rows)
	if err != nil {
		return nil, err
	}

	return &item, nil
}

// MarkSent marca un elemento como enviado. La transición solo es
// válida desde PENDING; SENT y FAILED son estados terminales.
func (r *QueueRepository) MarkSent(id int64) error {
	query := `
		UPDATE offline_queue
		SET estado = 'SENT', ultimo_intento = ?
		WHERE id = ? AND estado = 'PENDING'
	`

	result, err := r.db.ExecWithTimeout(query, time.Now().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("error marking item as sent: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("queue item %d is not pending", id)
	}

	r.logger.WithField("queue_id", id).Info("Queue item marked as sent")
	return nil
}

// MarkFailed incrementa el contador de intentos de un elemento y lo
// pasa a FAILED cuando alcanza maxRetries; si no, sigue PENDING a la
// espera de otro reintento. Todo ocurre en una única transacción.
func (r *QueueRepository) MarkFailed(id int64, errMsg string, maxRetries int) error {
	return r.db.WithTransaction(func(tx *sql.Tx) error {
		var attempts int
		err := tx.QueryRow("SELECT intentos FROM offline_queue WHERE id = ?", id).Scan(&attempts)
		if err != nil {
			if err == sql.ErrNoRows {
				return fmt.Errorf("queue item not found: %d", id)
			}
			return fmt.Errorf("error reading attempts: %w", err)
		}

		attempts++
		status := models.QueueStatusPending
		if attempts >= maxRetries {
			status = models.QueueStatusFailed
		}

		_, err = tx.Exec(`
			UPDATE offline_queue
			SET estado = ?, intentos = ?, ultimo_intento = ?, error_message = ?
			WHERE id = ?
		`, string(status), attempts, time.Now().Format(timeLayout), errMsg, id)
		if err != nil {
			return fmt.Errorf("error updating failed item: %w", err)
		}

		r.logger.WithFields(logrus.Fields{
			"queue_id": id,
			"estado":   status,
			"intento":  fmt.Sprintf("%d/%d", attempts, maxRetries),
		}).Warnf("Queue item delivery failed: %s", errMsg)

		return nil
	})
}

// ClearSent elimina los elementos SENT y devuelve cuántos había.
// Los FAILED se conservan para inspección del operador.
func (r *QueueRepository) ClearSent() (int, error) {
	result, err := r.db.ExecWithTimeout("DELETE FROM offline_queue WHERE estado = 'SENT'")
	if err != nil {
		return 0, fmt.Errorf("error clearing sent items: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error getting rows affected: %w", err)
	}

	r.logger.WithField("removed", rowsAffected).Info("Sent items cleared from offline queue")
	return int(rowsAffected), nil
}

// CountByStatus devuelve el número de elementos por estado
func (r *QueueRepository) CountByStatus() (map[models.QueueStatus]int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, "SELECT estado, COUNT(*) FROM offline_queue GROUP BY estado")
	if err != nil {
		return nil, fmt.Errorf("error querying queue stats: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.QueueStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("error scanning queue stats: %w", err)
		}
		counts[models.QueueStatus(status)] = count
	}

	return counts, rows.Err()
}

// TotalPending devuelve el número de elementos pendientes
func (r *QueueRepository) TotalPending() (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM offline_queue WHERE estado = 'PENDING'").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("error counting pending items: %w", err)
	}
	return count, nil
}

// scanQueueItem convierte una fila de offline_queue en un OfflineQueueItem
func scanQueueItem(rows *sql.Rows) (models.OfflineQueueItem, error) {
	var item models.OfflineQueueItem
	var exercise, customerDoc, apiKey sql.NullString
	var createdAt string
	var lastAttempt sql.NullString
	var status string

	err := rows.Scan(
		&item.ID,
		&item.Payload,
		&item.InvoiceID,
		&item.Company,
		&exercise,
		&customerDoc,
		&apiKey,
		&createdAt,
		&item.Attempts,
		&lastAttempt,
		&status,
		&item.ErrorMessage,
	)
	if err != nil {
		return models.OfflineQueueItem{}, fmt.Errorf("error scanning queue item: %w", err)
	}

	item.Exercise = exercise.String
	item.CustomerDoc = customerDoc.String
	item.APIKeyRef = apiKey.String
	item.Status = models.QueueStatus(status)

	parsed, err := time.ParseInLocation(timeLayout, createdAt, time.Local)
	if err != nil {
		return models.OfflineQueueItem{}, fmt.Errorf("error parsing creation date %q: %w", createdAt, err)
	}
	item.CreatedAt = parsed

	if lastAttempt.Valid {
		t, err := time.ParseInLocation(timeLayout, lastAttempt.String, time.Local)
		if err != nil {
			return models.OfflineQueueItem{}, fmt.Errorf("error parsing last attempt %q: %w", lastAttempt.String, err)
		}
		item.LastAttempt = &t
	}

	return item, nil
}
