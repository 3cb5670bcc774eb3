package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/factunabo/factunabo-service/internal/models"
	"github.com/factunabo/factunabo-service/internal/services"
	"github.com/sirupsen/logrus"
)

// API maneja todos los endpoints del servicio
type API struct {
	processing     *services.ProcessingService
	historyService *services.HistoryService
	offlineService *services.OfflineService
	statsService   *services.StatsService
	logger         *logrus.Logger
}

// NewAPI crea una nueva instancia de la API
func NewAPI(
	processing *services.ProcessingService,
	historyService *services.HistoryService,
	offlineService *services.OfflineService,
	statsService *services.StatsService,
	logger *logrus.Logger,
) *API {
	return &API{
		processing:     processing,
		historyService: historyService,
		offlineService: offlineService,
		statsService:   statsService,
		logger:         logger,
	}
}

// ValidateBatch valida un lote de facturas y conceptos
func (api *API) ValidateBatch(c *gin.Context) {
	var batch models.InvoiceBatch
	if err := c.ShouldBindJSON(&batch); err != nil {
		api.logger.WithError(err).Error("Error binding batch validation request")
		c.JSON(http.StatusBadRequest, models.NewValidationError("Invalid request format", []models.ErrorDetail{
			{Field: "body", Issue: err.Error()},
		}))
		return
	}

	isValid, validationErrors := api.processing.ValidateInvoiceData(&batch)

	c.JSON(http.StatusOK, gin.H{
		"is_valid": isValid,
		"errors":   validationErrors,
	})
}

// TotalsRequest representa la petición de cálculo de totales
type TotalsRequest struct {
	InvoiceID string       `json:"invoice_id" binding:"required"`
	Lines     []models.Row `json:"lines" binding:"required"`
}

// CalculateTotals calcula los totales de una factura a partir de sus
// conceptos
func (api *API) CalculateTotals(c *gin.Context) {
	var req TotalsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.logger.WithError(err).Error("Error binding totals request")
		c.JSON(http.StatusBadRequest, models.NewValidationError("Invalid request format", []models.ErrorDetail{
			{Field: "body", Issue: err.Error()},
		}))
		return
	}

	totals := api.processing.CalculateInvoiceTotals(req.Lines, req.InvoiceID)
	c.JSON(http.StatusOK, totals)
}

// AssembleInvoices construye las facturas completas de un lote con sus
// importes calculados
func (api *API) AssembleInvoices(c *gin.Context) {
	var batch models.InvoiceBatch
	if err := c.ShouldBindJSON(&batch); err != nil {
		api.logger.WithError(err).Error("Error binding invoice assembly request")
		c.JSON(http.StatusBadRequest, models.NewValidationError("Invalid request format", []models.ErrorDetail{
			{Field: "body", Issue: err.Error()},
		}))
		return
	}

	invoices := api.processing.AssembleInvoices(&batch)

	items := make([]gin.H, 0, len(invoices))
	for _, invoice := range invoices {
		items = append(items, gin.H{
			"invoice":         invoice,
			"subtotal":        invoice.Subtotal(),
			"total_tax":       invoice.TotalTax(),
			"total_retention": invoice.TotalRetention(),
			"total":           invoice.TotalAmount(),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"invoices": items,
		"total":    len(items),
	})
}

// RecordHistoryRequest representa la petición de guardado de resultados:
// los items ya parseados o la ruta de un fichero summary del que leerlos
type RecordHistoryRequest struct {
	Items       []map[string]any `json:"items"`
	SummaryPath string           `json:"summary_path"`
	SourcePath  string           `json:"source_path"`
}

// RecordHistory guarda los resultados de un envío en el historial
func (api *API) RecordHistory(c *gin.Context) {
	var req RecordHistoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.logger.WithError(err).Error("Error binding record history request")
		c.JSON(http.StatusBadRequest, models.NewValidationError("Invalid request format", []models.ErrorDetail{
			{Field: "body", Issue: err.Error()},
		}))
		return
	}

	items := req.Items
	if len(items) == 0 && req.SummaryPath != "" {
		var err error
		items, err = api.processing.ReadSummaryFile(req.SummaryPath)
		if err != nil {
			api.logger.WithError(err).Error("Error reading summary file")
			c.JSON(http.StatusBadRequest, models.NewValidationError("Could not read summary file", []models.ErrorDetail{
				{Field: "summary_path", Issue: err.Error()},
			}))
			return
		}
	}
	if len(items) == 0 {
		c.JSON(http.StatusBadRequest, models.NewValidationError("Nothing to record", []models.ErrorDetail{
			{Field: "items", Issue: "provide items or a summary_path with results"},
		}))
		return
	}

	batchID, recorded, err := api.historyService.RecordSendResults(items, req.SourcePath)
	if err != nil {
		api.logger.WithError(err).Error("Error recording send results")
		c.JSON(http.StatusInternalServerError, models.NewInternalError("Error recording send results"))
		return
	}

	// El historial cambió, las métricas cacheadas ya no valen
	api.statsService.Invalidate()

	c.JSON(http.StatusCreated, gin.H{
		"batch_id": batchID,
		"recorded": recorded,
	})
}

// BackfillPDFPathsRequest representa la petición de backfill de PDFs
type BackfillPDFPathsRequest struct {
	BatchID string           `json:"batch_id" binding:"required"`
	Items   []map[string]any `json:"items" binding:"required"`
	PDFDir  string           `json:"pdf_dir" binding:"required"`
}

// BackfillPDFPaths actualiza las rutas locales de PDF de un lote
func (api *API) BackfillPDFPaths(c *gin.Context) {
	var req BackfillPDFPathsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.logger.WithError(err).Error("Error binding backfill request")
		c.JSON(http.StatusBadRequest, models.NewValidationError("Invalid request format", []models.ErrorDetail{
			{Field: "body", Issue: err.Error()},
		}))
		return
	}

	updated := api.historyService.UpdatePDFPaths(req.BatchID, req.Items, req.PDFDir)
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

// GetHistory devuelve el historial de envíos filtrado
func (api *API) GetHistory(c *gin.Context) {
	var filter models.HistoryFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, models.NewValidationError("Invalid filter parameters", []models.ErrorDetail{
			{Field: "query", Issue: err.Error()},
		}))
		return
	}

	entries, err := api.historyService.LoadHistory(filter)
	if err != nil {
		api.logger.WithError(err).Error("Error loading history")
		c.JSON(http.StatusInternalServerError, models.NewInternalError("Error loading history"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"total":   len(entries),
	})
}

// GetHistoryStats devuelve las estadísticas agregadas del historial
func (api *API) GetHistoryStats(c *gin.Context) {
	company := c.Query("empresa")
	periodDays, _ := strconv.Atoi(c.DefaultQuery("period_days", "0"))

	stats, err := api.historyService.GetHistoryStats(company, periodDays)
	if err != nil {
		api.logger.WithError(err).Error("Error computing history stats")
		c.JSON(http.StatusInternalServerError, models.NewInternalError("Error computing history stats"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total_invoices":      stats.TotalInvoices,
		"successful_invoices": stats.SuccessfulInvoices,
		"failed_invoices":     stats.FailedInvoices,
		"pending_invoices":    stats.PendingInvoices,
		"total_amount":        stats.TotalAmount,
		"success_rate":        stats.SuccessRate(),
	})
}

// GetCompanies devuelve las empresas emisoras del historial
func (api *API) GetCompanies(c *gin.Context) {
	companies, err := api.historyService.GetCompanies()
	if err != nil {
		api.logger.WithError(err).Error("Error loading companies")
		c.JSON(http.StatusInternalServerError, models.NewInternalError("Error loading companies"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"companies": companies})
}

// GetCustomers devuelve los clientes del historial
func (api *API) GetCustomers(c *gin.Context) {
	customers, err := api.historyService.GetCustomers()
	if err != nil {
		api.logger.WithError(err).Error("Error loading customers")
		c.JSON(http.StatusInternalServerError, models.NewInternalError("Error loading customers"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"customers": customers})
}

// ClearHistory elimina todo el historial de envíos
func (api *API) ClearHistory(c *gin.Context) {
	if err := api.historyService.ClearHistory(); err != nil {
		api.logger.WithError(err).Error("Error clearing history")
		c.JSON(http.StatusInternalServerError, models.NewInternalError("Error clearing history"))
		return
	}

	api.statsService.Invalidate()
	c.JSON(http.StatusOK, gin.H{"cleared": true})
}

// GetDashboard devuelve las métricas del panel principal
func (api *API) GetDashboard(c *gin.Context) {
	force := c.Query("force") == "true"
	stats := api.statsService.GetDashboardStats(force)
	c.JSON(http.StatusOK, stats)
}

// EnqueueRequest representa la petición de encolado de un envío fallido
type EnqueueRequest struct {
	Payload     []byte `json:"payload" binding:"required"`
	InvoiceID   string `json:"invoice_id" binding:"required"`
	Company     string `json:"company" binding:"required"`
	Exercise    string `json:"exercise"`
	CustomerDoc string `json:"customer_doc"`
	APIKeyRef   string `json:"api_key_ref"`
}

// EnqueueItem añade un envío no entregado a la cola offline
func (api *API) EnqueueItem(c *gin.Context) {
	var req EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.logger.WithError(err).Error("Error binding enqueue request")
		c.JSON(http.StatusBadRequest, models.NewValidationError("Invalid request format", []models.ErrorDetail{
			{Field: "body", Issue: err.Error()},
		}))
		return
	}

	id, err := api.offlineService.Enqueue(&models.OfflineQueueItem{
		Payload:     req.Payload,
		InvoiceID:   req.InvoiceID,
		Company:     req.Company,
		Exercise:    req.Exercise,
		CustomerDoc: req.CustomerDoc,
		APIKeyRef:   req.APIKeyRef,
	})
	if err != nil {
		api.logger.WithError(err).Error("Error enqueuing item")
		c.JSON(http.StatusInternalServerError, models.NewInternalError("Error enqueuing item"))
		return
	}

	c.JSON(http.StatusCreated, gin.H{"queue_id": id})
}

// DrainQueue reprocesa los elementos pendientes de la cola offline
func (api *API) DrainQueue(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	result, err := api.offlineService.Drain(c.Request.Context(), limit)
	if err != nil {
		api.logger.WithError(err).Error("Error draining offline queue")
		c.JSON(http.StatusInternalServerError, models.NewInternalError("Error draining offline queue"))
		return
	}

	api.statsService.Invalidate()
	c.JSON(http.StatusOK, result)
}

// GetQueueStats devuelve los recuentos por estado de la cola offline
func (api *API) GetQueueStats(c *gin.Context) {
	counts, err := api.offlineService.GetQueueStats()
	if err != nil {
		api.logger.WithError(err).Error("Error reading queue stats")
		c.JSON(http.StatusInternalServerError, models.NewInternalError("Error reading queue stats"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"pending": counts[models.QueueStatusPending],
		"sent":    counts[models.QueueStatusSent],
		"failed":  counts[models.QueueStatusFailed],
	})
}

// ClearSentItems elimina los elementos enviados de la cola offline
func (api *API) ClearSentItems(c *gin.Context) {
	removed, err := api.offlineService.ClearSent()
	if err != nil {
		api.logger.WithError(err).Error("Error clearing sent items")
		c.JSON(http.StatusInternalServerError, models.NewInternalError("Error clearing sent items"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"removed": removed})
}
