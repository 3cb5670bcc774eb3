package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/factunabo/factunabo-service/internal/database"
	"github.com/factunabo/factunabo-service/internal/services"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.RunMigrations(db, logger))

	processing := services.NewProcessingService(logger)
	historyService := services.NewHistoryService(db, processing, logger)
	statsService := services.NewStatsService(db, 0, logger)

	apiHandler := NewAPI(processing, historyService, nil, statsService, logger)

	router := gin.New()
	router.POST("/v1/history", apiHandler.RecordHistory)
	router.GET("/v1/history", apiHandler.GetHistory)
	router.POST("/v1/batches/invoices", apiHandler.AssembleInvoices)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func TestRecordHistoryFromSummaryFile(t *testing.T) {
	router := newTestRouter(t)

	summaryPath := filepath.Join(t.TempDir(), "summary.json")
	require.NoError(t, os.WriteFile(summaryPath, []byte(`{
		"proformas_procesadas": [
			{"num_factura": "25001", "empresa": "Empresa SL", "cliente": "Cliente Uno", "estado": "OK", "importe": "1.234,56"},
			{"num_factura": "25002", "empresa": "Empresa SL", "cliente": "Cliente Dos", "estado": "FALLIDO"}
		]
	}`), 0o644))

	recorder := doJSON(t, router, http.MethodPost, "/v1/history", gin.H{
		"summary_path": summaryPath,
		"source_path":  "/datos/facturas_abril.xlsx",
	})

	require.Equal(t, http.StatusCreated, recorder.Code, recorder.Body.String())

	var created struct {
		BatchID  string `json:"batch_id"`
		Recorded int    `json:"recorded"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &created))
	assert.NotEmpty(t, created.BatchID)
	assert.Equal(t, 2, created.Recorded)

	// Las filas leídas del summary quedan consultables
	recorder = doJSON(t, router, http.MethodGet, "/v1/history", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var listed struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &listed))
	assert.Equal(t, 2, listed.Total)
}

func TestRecordHistoryUnreadableSummaryFile(t *testing.T) {
	router := newTestRouter(t)

	recorder := doJSON(t, router, http.MethodPost, "/v1/history", gin.H{
		"summary_path": filepath.Join(t.TempDir(), "no_existe.json"),
	})

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestRecordHistoryRequiresItemsOrSummary(t *testing.T) {
	router := newTestRouter(t)

	recorder := doJSON(t, router, http.MethodPost, "/v1/history", gin.H{})

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "summary_path")
}

func TestAssembleInvoicesEndpoint(t *testing.T) {
	router := newTestRouter(t)

	recorder := doJSON(t, router, http.MethodPost, "/v1/batches/invoices", gin.H{
		"headers": []gin.H{
			{"NumFactura": "25001", "empresa_emisora": "Empresa SL", "cliente_nombre": "Cliente Uno"},
		},
		"lines": []gin.H{
			{"NumFactura": "25001", "descripcion": "Servicio", "cantidad": "1", "precio_unitario": "500", "iva_porcentaje": "21"},
		},
	})

	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	var resp struct {
		Total    int `json:"total"`
		Invoices []struct {
			Subtotal string `json:"subtotal"`
			TotalTax string `json:"total_tax"`
			Total    string `json:"total"`
		} `json:"invoices"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, "500", resp.Invoices[0].Subtotal)
	assert.Equal(t, "105", resp.Invoices[0].TotalTax)
	assert.Equal(t, "605", resp.Invoices[0].Total)
}
