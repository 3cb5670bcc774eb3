package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SendStatus representa el resultado de un envío de factura.
// El vocabulario es cerrado: las migraciones reescriben los valores
// heredados ('ÉXITO', 'SUCCESS', 'FALLIDO') a esta forma canónica.
type SendStatus string

const (
	SendStatusOK      SendStatus = "OK"
	SendStatusError   SendStatus = "ERROR"
	SendStatusPending SendStatus = "PENDIENTE"
)

// HistoryEntry representa una entrada en el historial de envíos
type HistoryEntry struct {
	ID           int64           `json:"id"`
	BatchID      string          `json:"batch_id"`
	InvoiceID    string          `json:"invoice_id"`
	Company      string          `json:"company"`
	Customer     string          `json:"customer"`
	Status       SendStatus      `json:"status"`
	SendDate     time.Time       `json:"send_date"`
	Amount       decimal.Decimal `json:"amount"`
	PDFURL       *string         `json:"pdf_url,omitempty"`
	PDFLocalPath *string         `json:"pdf_local_path,omitempty"`
	SourcePath   *string         `json:"source_path,omitempty"`
	Details      *string         `json:"details,omitempty"`
}

// IsSuccessful indica si el envío fue exitoso
func (e HistoryEntry) IsSuccessful() bool {
	return e.Status == SendStatusOK
}

// IsError indica si el envío tuvo error
func (e HistoryEntry) IsError() bool {
	return e.Status == SendStatusError
}

// IsPending indica si el envío está pendiente
func (e HistoryEntry) IsPending() bool {
	return e.Status == SendStatusPending
}

// HistoryFilter representa los filtros opcionales para consultar el
// historial; los predicados se aplican de forma conjuntiva
type HistoryFilter struct {
	Company    string     `json:"company,omitempty" form:"empresa"`
	Customer   string     `json:"customer,omitempty" form:"cliente"`
	Status     string     `json:"status,omitempty" form:"estado"`
	DateFrom   *time.Time `json:"date_from,omitempty" form:"desde" time_format:"2006-01-02"`
	DateTo     *time.Time `json:"date_to,omitempty" form:"hasta" time_format:"2006-01-02"`
	SearchText string     `json:"search_text,omitempty" form:"buscar"`
}

// HistoryStats representa las estadísticas agregadas del historial
type HistoryStats struct {
	TotalInvoices      int             `json:"total_invoices"`
	SuccessfulInvoices int             `json:"successful_invoices"`
	FailedInvoices     int             `json:"failed_invoices"`
	PendingInvoices    int             `json:"pending_invoices"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
}

// SuccessRate calcula el porcentaje de éxito; 0 si no hay envíos
func (s HistoryStats) SuccessRate() float64 {
	if s.TotalInvoices == 0 {
		return 0.0
	}
	return float64(s.SuccessfulInvoices) / float64(s.TotalInvoices) * 100
}

// DashboardStats representa las métricas del panel principal
type DashboardStats struct {
	TotalSuccess int             `json:"total_success"`
	MonthCount   int             `json:"month_count"`
	MonthTotal   decimal.Decimal `json:"month_total"`
}
