package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/factunabo/factunabo-service/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// timeLayout es el formato de fecha usado en la base de datos
const timeLayout = "2006-01-02 15:04:05"

// HistoryRepository maneja las operaciones de base de datos para el
// historial de envíos
type HistoryRepository struct {
	db     *DB
	logger *logrus.Logger
}

// NewHistoryRepository crea una nueva instancia del repositorio
func NewHistoryRepository(db *DB, logger *logrus.Logger) *HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Record inserta las entradas del historial en una única transacción.
// Todas las filas comparten la fecha de envío y el batch_id recibidos.
func (r *HistoryRepository) Record(entries []models.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}

	return r.db.WithTransaction(func(tx *sql.Tx) error {
		query := `
			INSERT INTO envios (
				fecha_envio, num_factura, empresa, estado, detalles, pdf_url,
				excel_path, pdf_local_path, importe, cliente, batch_id
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`

		stmt, err := tx.Prepare(query)
		if err != nil {
			return fmt.Errorf("error preparing history insert: %w", err)
		}
		defer stmt.Close()

		for _, entry := range entries {
			amount, _ := entry.Amount.Float64()
			_, err := stmt.Exec(
				entry.SendDate.Format(timeLayout),
				entry.InvoiceID,
				entry.Company,
				string(entry.Status),
				entry.Details,
				entry.PDFURL,
				entry.SourcePath,
				entry.PDFLocalPath,
				amount,
				entry.Customer,
				entry.BatchID,
			)
			if err != nil {
				return fmt.Errorf("error inserting history entry: %w", err)
			}
		}

		return nil
	})
}

// Search devuelve las entradas del historial que cumplen todos los
// filtros, ordenadas de más reciente a más antigua
func (r *HistoryRepository) Search(filter models.HistoryFilter) ([]models.HistoryEntry, error) {
	query := `
		SELECT id, batch_id, num_factura, empresa, cliente, estado, fecha_envio,
			   importe, pdf_url, pdf_local_path, excel_path, detalles
		FROM envios
		WHERE 1=1
	`
	args := []interface{}{}

	if filter.Company != "" {
		query += " AND empresa = ?"
		args = append(args, filter.Company)
	}
	if filter.Customer != "" {
		query += " AND cliente = ?"
		args = append(args, filter.Customer)
	}
	if filter.Status != "" {
		query += " AND estado = ?"
		args = append(args, filter.Status)
	}
	if filter.DateFrom != nil {
		query += " AND fecha_envio >= ?"
		args = append(args, filter.DateFrom.Format(timeLayout))
	}
	if filter.DateTo != nil {
		query += " AND fecha_envio <= ?"
		args = append(args, filter.DateTo.Format(timeLayout))
	}
	if filter.SearchText != "" {
		query += " AND (num_factura LIKE ? OR cliente LIKE ? OR empresa LIKE ?)"
		pattern := "%" + filter.SearchText + "%"
		args = append(args, pattern, pattern, pattern)
	}

	query += " ORDER BY fecha_envio DESC, id DESC"

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying history: %w", err)
	}
	defer rows.Close()

	var entries []models.HistoryEntry
	for rows.Next() {
		entry, err := scanHistoryEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// Stats calcula las estadísticas agregadas del historial, opcionalmente
// filtradas por empresa y por una ventana de días
func (r *HistoryRepository) Stats(company string, periodDays int) (models.HistoryStats, error) {
	query := `
		SELECT
			COUNT(*) as total,
			COALESCE(SUM(CASE WHEN estado = 'OK' THEN 1 ELSE 0 END), 0) as success,
			COALESCE(SUM(CASE WHEN estado = 'ERROR' THEN 1 ELSE 0 END), 0) as failed,
			COALESCE(SUM(CASE WHEN estado = 'PENDIENTE' THEN 1 ELSE 0 END), 0) as pending,
			COALESCE(SUM(importe), 0.0) as total_amount
		FROM envios
		WHERE 1=1
	`
	args := []interface{}{}

	if company != "" {
		query += " AND empresa = ?"
		args = append(args, company)
	}
	if periodDays > 0 {
		dateFrom := time.Now().AddDate(0, 0, -periodDays).Format(timeLayout)
		query += " AND fecha_envio >= ?"
		args = append(args, dateFrom)
	}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	var stats models.HistoryStats
	var totalAmount float64
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&stats.TotalInvoices,
		&stats.SuccessfulInvoices,
		&stats.FailedInvoices,
		&stats.PendingInvoices,
		&totalAmount,
	)
	if err != nil {
		return models.HistoryStats{}, fmt.Errorf("error querying history stats: %w", err)
	}

	stats.TotalAmount = decimal.NewFromFloat(totalAmount)
	return stats, nil
}

// DashboardStats calcula las métricas del panel: envíos correctos
// totales y recuento e importe del mes en curso
func (r *HistoryRepository) DashboardStats() (models.DashboardStats, error) {
	var stats models.DashboardStats

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM envios WHERE estado = 'OK'").Scan(&stats.TotalSuccess)
	if err != nil {
		return models.DashboardStats{}, fmt.Errorf("error counting successful sends: %w", err)
	}

	monthKey := time.Now().Format("2006-01")
	var monthTotal float64
	err = r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(importe), 0.0)
		FROM envios
		WHERE estado = 'OK' AND strftime('%Y-%m', fecha_envio) = ?
	`, monthKey).Scan(&stats.MonthCount, &monthTotal)
	if err != nil {
		return models.DashboardStats{}, fmt.Errorf("error querying month stats: %w", err)
	}

	stats.MonthTotal = decimal.NewFromFloat(monthTotal)
	return stats, nil
}

// BackfillPDFPath actualiza la ruta local del PDF de la fila más
// reciente que coincida con factura, empresa y lote. El batch_id evita
// que lotes concurrentes de la misma factura pisen la fila equivocada.
func (r *HistoryRepository) BackfillPDFPath(batchID, invoiceID, company, localPath string) error {
	query := `
		UPDATE envios
		SET pdf_local_path = ?
		WHERE id = (
			SELECT id FROM envios
			WHERE num_factura = ? AND empresa = ? AND batch_id = ?
			ORDER BY fecha_envio DESC, id DESC
			LIMIT 1
		)
	`

	result, err := r.db.ExecWithTimeout(query, localPath, invoiceID, company, batchID)
	if err != nil {
		return fmt.Errorf("error backfilling pdf path: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("history entry not found: %s/%s", company, invoiceID)
	}

	return nil
}

// Companies devuelve las empresas emisoras únicas del historial
func (r *HistoryRepository) Companies() ([]string, error) {
	return r.distinctColumn("empresa")
}

// Customers devuelve los clientes únicos del historial
func (r *HistoryRepository) Customers() ([]string, error) {
	return r.distinctColumn("cliente")
}

func (r *HistoryRepository) distinctColumn(column string) ([]string, error) {
	query := fmt.Sprintf(
		"SELECT DISTINCT %s FROM envios WHERE %s IS NOT NULL AND %s != '' ORDER BY %s",
		column, column, column, column,
	)

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error querying distinct %s: %w", column, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("error scanning %s: %w", column, err)
		}
		values = append(values, v)
	}

	return values, rows.Err()
}

// Clear elimina todo el historial y compacta la base de datos
func (r *HistoryRepository) Clear() error {
	if _, err := r.db.ExecWithTimeout("DELETE FROM envios"); err != nil {
		return fmt.Errorf("error clearing history: %w", err)
	}

	if _, err := r.db.ExecWithTimeout("VACUUM"); err != nil {
		r.logger.Warnf("Error vacuuming database after clear: %v", err)
	}

	return nil
}

// scanHistoryEntry convierte una fila de envios en un HistoryEntry
func scanHistoryEntry(rows *sql.Rows) (models.HistoryEntry, error) {
	var entry models.HistoryEntry
	// Las filas heredadas pueden traer NULL en las columnas de texto
	var batchID, invoiceID, company, customer, status sql.NullString
	var sendDate string
	var amount float64

	err := rows.Scan(
		&entry.ID,
		&batchID,
		&invoiceID,
		&company,
		&customer,
		&status,
		&sendDate,
		&amount,
		&entry.PDFURL,
		&entry.PDFLocalPath,
		&entry.SourcePath,
		&entry.Details,
	)
	if err != nil {
		return models.HistoryEntry{}, fmt.Errorf("error scanning history entry: %w", err)
	}

	entry.BatchID = batchID.String
	entry.InvoiceID = invoiceID.String
	entry.Company = company.String
	entry.Customer = customer.String
	entry.Status = models.SendStatus(status.String)
	entry.Amount = decimal.NewFromFloat(amount)

	parsed, err := time.ParseInLocation(timeLayout, sendDate, time.Local)
	if err != nil {
		return models.HistoryEntry{}, fmt.Errorf("error parsing send date %q: %w", sendDate, err)
	}
	entry.SendDate = parsed

	return entry, nil
}
