package services

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/factunabo/factunabo-service/internal/models"
	"github.com/sirupsen/logrus"
)

// LoadBatchCSV carga un lote de facturas desde dos ficheros CSV: uno
// con las cabeceras de factura y otro con los conceptos. La primera
// fila de cada fichero declara las columnas del lote.
func (s *ProcessingService) LoadBatchCSV(headersPath, linesPath string) (*models.InvoiceBatch, error) {
	headerColumns, headers, err := readCSVRows(headersPath)
	if err != nil {
		return nil, fmt.Errorf("error loading invoice headers: %w", err)
	}

	lineColumns, lines, err := readCSVRows(linesPath)
	if err != nil {
		return nil, fmt.Errorf("error loading invoice lines: %w", err)
	}

	batch := &models.InvoiceBatch{
		HeaderColumns: headerColumns,
		Headers:       headers,
		LineColumns:   lineColumns,
		Lines:         lines,
	}

	s.logger.WithFields(logrus.Fields{
		"facturas":  len(headers),
		"conceptos": len(lines),
	}).Info("Invoice batch loaded")

	return batch, nil
}

// readCSVRows lee un CSV completo devolviendo sus columnas y sus filas
func readCSVRows(path string) ([]string, []models.Row, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("error opening %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("error parsing %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("file %s is empty", path)
	}

	columns := records[0]
	rows := make([]models.Row, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(models.Row, len(columns))
		for i, col := range columns {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		rows = append(rows, row)
	}

	return columns, rows, nil
}
