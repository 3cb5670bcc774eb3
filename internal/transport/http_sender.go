package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/factunabo/factunabo-service/internal/config"
	"github.com/factunabo/factunabo-service/internal/models"
	"github.com/sirupsen/logrus"
)

// HTTPSender entrega envíos de la cola offline a la API remota de
// facturación mediante un POST del payload preparado
type HTTPSender struct {
	client *http.Client
	url    string
	token  string
	logger *logrus.Logger
}

// NewHTTPSender crea una nueva instancia del sender
func NewHTTPSender(cfg *config.APIConfig, logger *logrus.Logger) *HTTPSender {
	return &HTTPSender{
		client: &http.Client{Timeout: cfg.Timeout},
		url:    cfg.URL,
		token:  cfg.Token,
		logger: logger,
	}
}

// Send envía el payload de un elemento de la cola a la API remota.
// Cualquier respuesta fuera del rango 2xx cuenta como fallo de entrega.
func (t *HTTPSender) Send(ctx context.Context, item *models.OfflineQueueItem) error {
	if t.url == "" {
		return fmt.Errorf("invoicing API URL is not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(item.Payload))
	if err != nil {
		return fmt.Errorf("error building request: %w", err)
	}

	req.Header.Set("Content-Type", "application/xml")
	if item.APIKeyRef != "" {
		req.Header.Set("X-API-Key", item.APIKeyRef)
	} else if t.token != "" {
		req.Header.Set("X-API-Key", t.token)
	}

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("error sending invoice %s: %w", item.InvoiceID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("invoicing API returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	t.logger.WithFields(logrus.Fields{
		"num_factura": item.InvoiceID,
		"empresa":     item.Company,
		"duracion":    time.Since(start).String(),
	}).Info("Queued invoice delivered")

	return nil
}
