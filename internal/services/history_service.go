package services

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/factunabo/factunabo-service/internal/database"
	"github.com/factunabo/factunabo-service/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// HistoryService maneja la lógica de negocio del historial de envíos
type HistoryService struct {
	historyRepo *database.HistoryRepository
	processing  *ProcessingService
	logger      *logrus.Logger
}

// NewHistoryService crea una nueva instancia del servicio
func NewHistoryService(db *database.DB, processing *ProcessingService, logger *logrus.Logger) *HistoryService {
	return &HistoryService{
		historyRepo: database.NewHistoryRepository(db, logger),
		processing:  processing,
		logger:      logger,
	}
}

// RecordSendResults guarda en el historial los resultados de un envío.
// Todas las filas comparten un batch_id generado aquí, que el llamante
// debe conservar para el backfill posterior de rutas de PDF. Devuelve
// el batch_id y el número de registros guardados.
func (s *HistoryService) RecordSendResults(items []map[string]any, sourcePath string) (string, int, error) {
	if len(items) == 0 {
		s.logger.Warn("No send results to record")
		return "", 0, nil
	}

	batchID := uuid.New().String()
	sendDate := time.Now()

	entries := make([]models.HistoryEntry, 0, len(items))
	for _, item := range items {
		invoiceID := s.processing.NormalizeInvoiceID(firstValue(item, "num_factura", "NumFactura"))
		company := stringify(firstValue(item, "empresa", "empresa_emisora"))
		customer := stringify(firstValue(item, "cliente", "cliente_nombre"))
		status := normalizeSendStatus(stringify(firstValue(item, "estado", "status")))
		details := stringify(firstValue(item, "mensaje", "message"))
		amount := s.processing.ParseAmount(firstValue(item, "importe", "total"))

		entry := models.HistoryEntry{
			BatchID:   batchID,
			InvoiceID: invoiceID,
			Company:   company,
			Customer:  customer,
			Status:    status,
			SendDate:  sendDate,
			Amount:    amount,
		}
		if details != "" {
			entry.Details = &details
		}
		if url := s.processing.ExtractPDFURL(item); url != "" {
			entry.PDFURL = &url
		}
		if sourcePath != "" {
			entry.SourcePath = &sourcePath
		}

		entries = append(entries, entry)
	}

	if err := s.historyRepo.Record(entries); err != nil {
		return "", 0, fmt.Errorf("error recording send results: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"batch_id":  batchID,
		"registros": len(entries),
	}).Info("Send results recorded in history")

	return batchID, len(entries), nil
}

// UpdatePDFPaths localiza en pdfDir los PDFs descargados de un lote
// (nombrados <empresa>_<factura>_*.pdf) y actualiza la ruta local de
// las filas correspondientes. Devuelve el número de filas actualizadas.
func (s *HistoryService) UpdatePDFPaths(batchID string, items []map[string]any, pdfDir string) int {
	updated := 0

	for _, item := range items {
		invoiceID := s.processing.NormalizeInvoiceID(firstValue(item, "num_factura", "NumFactura"))
		company := stringify(firstValue(item, "empresa", "empresa_emisora"))
		if invoiceID == "" || company == "" {
			continue
		}

		pattern := filepath.Join(pdfDir, fmt.Sprintf("%s_%s_*.pdf", company, invoiceID))
		matches, err := filepath.Glob(pattern)
		if err != nil || len(matches) == 0 {
			continue
		}

		if err := s.historyRepo.BackfillPDFPath(batchID, invoiceID, company, matches[0]); err != nil {
			s.logger.Warnf("Error backfilling pdf path for %s/%s: %v", company, invoiceID, err)
			continue
		}
		updated++
	}

	s.logger.WithField("actualizados", updated).Info("PDF paths updated in history")
	return updated
}

// LoadHistory carga el historial de envíos aplicando los filtros
func (s *HistoryService) LoadHistory(filter models.HistoryFilter) ([]models.HistoryEntry, error) {
	return s.historyRepo.Search(filter)
}

// GetHistoryStats obtiene las estadísticas del historial
func (s *HistoryService) GetHistoryStats(company string, periodDays int) (models.HistoryStats, error) {
	return s.historyRepo.Stats(company, periodDays)
}

// GetCompanies obtiene la lista de empresas emisoras del historial
func (s *HistoryService) GetCompanies() ([]string, error) {
	return s.historyRepo.Companies()
}

// GetCustomers obtiene la lista de clientes del historial
func (s *HistoryService) GetCustomers() ([]string, error) {
	return s.historyRepo.Customers()
}

// ClearHistory elimina todo el historial de envíos
func (s *HistoryService) ClearHistory() error {
	if err := s.historyRepo.Clear(); err != nil {
		return err
	}
	s.logger.Info("History cleared")
	return nil
}

// normalizeSendStatus traduce los tokens de estado que reporta la API
// remota al vocabulario canónico. Un token desconocido cuenta como
// ERROR: tratarlo como pendiente provocaría reintentos sin fundamento.
func normalizeSendStatus(raw string) models.SendStatus {
	upper := strings.ToUpper(strings.TrimSpace(raw))
	switch {
	case upper == "OK" || upper == "SUCCESS" || strings.HasPrefix(upper, "ÉXITO"):
		return models.SendStatusOK
	case upper == "PENDIENTE" || upper == "PENDING":
		return models.SendStatusPending
	default:
		return models.SendStatusError
	}
}

// firstValue devuelve el primer campo presente de un item; los items
// de la API mezclan claves según la versión del backend
func firstValue(item map[string]any, keys ...string) any {
	for _, key := range keys {
		if value, ok := item[key]; ok && value != nil {
			return value
		}
	}
	return nil
}
