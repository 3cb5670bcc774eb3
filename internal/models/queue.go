package models

import "time"

// QueueStatus representa el estado de un elemento de la cola offline
type QueueStatus string

const (
	QueueStatusPending QueueStatus = "PENDING"
	QueueStatusSent    QueueStatus = "SENT"
	QueueStatusFailed  QueueStatus = "FAILED"
)

// DefaultMaxRetries es el número máximo de intentos antes de marcar
// un elemento de la cola como FAILED
const DefaultMaxRetries = 3

// OfflineQueueItem representa un envío no entregado pendiente de reintento.
// La cola es la única propietaria de Attempts y Status.
type OfflineQueueItem struct {
	ID           int64       `json:"id"`
	Payload      []byte      `json:"payload"`
	InvoiceID    string      `json:"invoice_id"`
	Company      string      `json:"company"`
	Exercise     string      `json:"exercise"`
	CustomerDoc  string      `json:"customer_doc"`
	APIKeyRef    string      `json:"api_key_ref"`
	CreatedAt    time.Time   `json:"created_at"`
	Attempts     int         `json:"attempts"`
	LastAttempt  *time.Time  `json:"last_attempt,omitempty"`
	Status       QueueStatus `json:"status"`
	ErrorMessage *string     `json:"error_message,omitempty"`
}

// IsPending indica si el elemento está pendiente de envío
func (i OfflineQueueItem) IsPending() bool {
	return i.Status == QueueStatusPending
}

// IsSent indica si el elemento fue enviado con éxito
func (i OfflineQueueItem) IsSent() bool {
	return i.Status == QueueStatusSent
}

// IsFailed indica si el elemento agotó sus reintentos
func (i OfflineQueueItem) IsFailed() bool {
	return i.Status == QueueStatusFailed
}

// ShouldRetry indica si el elemento es elegible para otro intento
func (i OfflineQueueItem) ShouldRetry(maxRetries int) bool {
	return i.IsPending() && i.Attempts < maxRetries
}

// DrainResult representa el resultado de procesar la cola offline
type DrainResult struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}
