package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/factunabo/factunabo-service/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// numericIDPattern reconoce identificadores numéricos con parte
// decimal cero sobrante, p.ej. "25042.0"
var numericIDPattern = regexp.MustCompile(`^\d+(?:\.0+)?$`)

// ProcessingService maneja la lógica de negocio de lotes de facturas:
// normalización, validación y cálculo de totales
type ProcessingService struct {
	logger *logrus.Logger
}

// NewProcessingService crea una nueva instancia del servicio
func NewProcessingService(logger *logrus.Logger) *ProcessingService {
	return &ProcessingService{
		logger: logger,
	}
}

// NormalizeInvoiceID normaliza un ID de factura eliminando decimales
// innecesarios: "25042.0" pasa a "25042", "Int_25003" queda tal cual.
// Nunca falla y es idempotente. Los dígitos se recortan sobre el texto
// original: pasar por float corrompería IDs por encima de 2^53.
func (s *ProcessingService) NormalizeInvoiceID(value any) string {
	str := strings.TrimSpace(stringify(value))
	if numericIDPattern.MatchString(str) {
		if dot := strings.IndexByte(str, '.'); dot >= 0 {
			return str[:dot]
		}
	}
	return str
}

// ParseAmount parsea un importe desde distintos formatos a decimal.
// Acepta formato español ("1.234,56") y estándar ("1234.56"); si no se
// puede parsear devuelve cero, nunca un error: los datos de origen
// llegan con formatos mezclados y abortar el lote no es una opción.
func (s *ProcessingService) ParseAmount(value any) decimal.Decimal {
	switch v := value.(type) {
	case decimal.Decimal:
		return v
	case float64:
		return decimal.NewFromFloat(v)
	case float32:
		return decimal.NewFromFloat32(v)
	case int:
		return decimal.NewFromInt(int64(v))
	case int64:
		return decimal.NewFromInt(v)
	case string:
		cleaned := strings.TrimSpace(strings.NewReplacer("€", "", "$", "").Replace(v))
		if strings.Contains(cleaned, ",") && strings.Contains(cleaned, ".") {
			// Formato: 1.234,56 -> 1234.56
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.ReplaceAll(cleaned, ",", ".")
		} else if strings.Contains(cleaned, ",") {
			// Formato: 1234,56 -> 1234.56
			cleaned = strings.ReplaceAll(cleaned, ",", ".")
		}

		parsed, err := decimal.NewFromString(cleaned)
		if err != nil {
			s.logger.Warnf("Could not parse amount: %v", value)
			return decimal.Zero
		}
		return parsed
	}
	return decimal.Zero
}

// FormatCurrencyEUR formatea un importe en formato español con el
// símbolo de euro: 1234.56 -> "1.234,56€". Devuelve cadena vacía si el
// valor no es numérico.
func (s *ProcessingService) FormatCurrencyEUR(value any) string {
	f, ok := toFloat(value)
	if !ok {
		return ""
	}

	negative := f < 0
	if negative {
		f = -f
	}

	raw := strconv.FormatFloat(f, 'f', 2, 64)
	intPart := raw[:len(raw)-3]
	decPart := raw[len(raw)-2:]

	var groups []string
	for len(intPart) > 3 {
		groups = append([]string{intPart[len(intPart)-3:]}, groups...)
		intPart = intPart[:len(intPart)-3]
	}
	groups = append([]string{intPart}, groups...)

	formatted := strings.Join(groups, ".") + "," + decPart
	if negative {
		formatted = "-" + formatted
	}
	return formatted + "€"
}

// ValidateInvoiceData valida un lote de facturas y conceptos. Los
// errores se devuelven como datos, todos juntos, para que el llamante
// pueda mostrarlos de una vez. Si faltan columnas del esquema se
// devuelven solo esos errores (RowIndex -1) y no se validan las filas.
func (s *ProcessingService) ValidateInvoiceData(batch *models.InvoiceBatch) (bool, []models.InvoiceValidationError) {
	var errors []models.InvoiceValidationError

	for _, col := range models.RequiredHeaderColumns {
		if !batch.HasHeaderColumn(col) {
			errors = append(errors, models.InvoiceValidationError{
				RowIndex:  -1,
				FieldName: col,
				Message:   fmt.Sprintf("Falta la columna requerida: %s", col),
			})
		}
	}

	for _, col := range models.RequiredLineColumns {
		if !batch.HasLineColumn(col) {
			errors = append(errors, models.InvoiceValidationError{
				RowIndex:  -1,
				FieldName: col,
				Message:   fmt.Sprintf("Falta la columna requerida en conceptos: %s", col),
			})
		}
	}

	// Con el esquema roto, los errores por fila serían ruido
	if len(errors) > 0 {
		return false, errors
	}

	// Normalizar una sola vez los IDs de los conceptos
	lineIDs := make([]string, len(batch.Lines))
	for i, line := range batch.Lines {
		lineIDs[i] = s.NormalizeInvoiceID(line[models.ColInvoiceID])
	}

	for idx, row := range batch.Headers {
		invoiceID := s.NormalizeInvoiceID(row[models.ColInvoiceID])

		if invoiceID == "" {
			errors = append(errors, models.InvoiceValidationError{
				RowIndex:  idx,
				FieldName: models.ColInvoiceID,
				Message:   "Número de factura vacío",
			})
		}

		if strings.TrimSpace(stringify(row[models.ColIssuer])) == "" {
			errors = append(errors, models.InvoiceValidationError{
				RowIndex:  idx,
				FieldName: models.ColIssuer,
				Message:   "Empresa emisora vacía",
				InvoiceID: invoiceID,
			})
		}

		if strings.TrimSpace(stringify(row[models.ColCustomer])) == "" {
			errors = append(errors, models.InvoiceValidationError{
				RowIndex:  idx,
				FieldName: models.ColCustomer,
				Message:   "Cliente vacío",
				InvoiceID: invoiceID,
			})
		}

		hasLines := false
		for _, lineID := range lineIDs {
			if lineID == invoiceID {
				hasLines = true
				break
			}
		}
		if !hasLines {
			errors = append(errors, models.InvoiceValidationError{
				RowIndex:  idx,
				FieldName: "conceptos",
				Message:   "La factura no tiene conceptos asociados",
				InvoiceID: invoiceID,
			})
		}
	}

	return len(errors) == 0, errors
}

// CalculateInvoiceTotals calcula base imponible, IVA total y retención
// total de una factura sumando sus conceptos con aritmética decimal
// exacta. Una línea que no se puede convertir se descarta con un aviso,
// nunca invalida el cálculo completo.
func (s *ProcessingService) CalculateInvoiceTotals(lines []models.Row, invoiceID string) models.InvoiceTotals {
	target := s.NormalizeInvoiceID(invoiceID)

	totals := models.InvoiceTotals{
		InvoiceID:      target,
		Base:           decimal.Zero,
		TotalTax:       decimal.Zero,
		TotalRetention: decimal.Zero,
	}

	for _, row := range lines {
		if s.NormalizeInvoiceID(row[models.ColInvoiceID]) != target {
			continue
		}

		line, err := lineFromRow(row)
		if err != nil {
			s.logger.Warnf("Error calculating totals for invoice %s: %v", target, err)
			continue
		}

		totals.Base = totals.Base.Add(line.Subtotal())
		totals.TotalTax = totals.TotalTax.Add(line.TaxAmount())
		totals.TotalRetention = totals.TotalRetention.Add(line.RetentionAmount())
	}

	return totals
}

// AssembleInvoices construye las facturas completas de un lote: cada
// cabecera con sus datos de cliente y sus conceptos convertidos.
// Una línea que no se puede convertir se descarta con un aviso, como
// en el cálculo de totales.
func (s *ProcessingService) AssembleInvoices(batch *models.InvoiceBatch) []models.Invoice {
	invoices := make([]models.Invoice, 0, len(batch.Headers))

	for _, header := range batch.Headers {
		invoiceID := s.NormalizeInvoiceID(header[models.ColInvoiceID])

		invoice := models.Invoice{
			InvoiceID:     invoiceID,
			IssuerCompany: strings.TrimSpace(stringify(header[models.ColIssuer])),
			IssueDate:     strings.TrimSpace(stringify(header[models.ColIssueDate])),
			PaymentMethod: strings.TrimSpace(stringify(header[models.ColPaymentMethod])),
			Exercise:      strings.TrimSpace(stringify(header[models.ColExercise])),
			Customer: models.Customer{
				Name:       strings.TrimSpace(stringify(header[models.ColCustomer])),
				TaxID:      strings.TrimSpace(stringify(header[models.ColCustomerTaxID])),
				Address:    strings.TrimSpace(stringify(header[models.ColCustomerAddress])),
				PostalCode: strings.TrimSpace(stringify(header[models.ColCustomerPostal])),
				City:       strings.TrimSpace(stringify(header[models.ColCustomerCity])),
				Country:    strings.TrimSpace(stringify(header[models.ColCustomerCountry])),
				Email:      strings.TrimSpace(stringify(header[models.ColCustomerEmail])),
			},
		}

		for _, row := range batch.Lines {
			if s.NormalizeInvoiceID(row[models.ColInvoiceID]) != invoiceID {
				continue
			}
			line, err := lineFromRow(row)
			if err != nil {
				s.logger.Warnf("Error assembling invoice %s: %v", invoiceID, err)
				continue
			}
			invoice.Lines = append(invoice.Lines, line)
		}

		invoices = append(invoices, invoice)
	}

	return invoices
}

// lineFromRow convierte una fila de conceptos en una línea de factura;
// los porcentajes ausentes cuentan como cero
func lineFromRow(row models.Row) (models.InvoiceLine, error) {
	quantity, err := fieldAsDecimal(row, models.ColQuantity)
	if err != nil {
		return models.InvoiceLine{}, err
	}
	price, err := fieldAsDecimal(row, models.ColUnitPrice)
	if err != nil {
		return models.InvoiceLine{}, err
	}
	taxPct, err := fieldAsDecimal(row, models.ColTaxRate)
	if err != nil {
		return models.InvoiceLine{}, err
	}
	retPct, err := fieldAsDecimal(row, models.ColRetention)
	if err != nil {
		return models.InvoiceLine{}, err
	}

	return models.InvoiceLine{
		Description:   strings.TrimSpace(stringify(row[models.ColDescription])),
		Quantity:      quantity,
		UnitPrice:     price,
		TaxRate:       taxPct,
		RetentionRate: retPct,
	}, nil
}

// fieldAsDecimal convierte un campo de una fila a decimal; un campo
// ausente o nulo cuenta como cero, un campo con basura es un error
func fieldAsDecimal(row models.Row, column string) (decimal.Decimal, error) {
	value, ok := row[column]
	if !ok || value == nil {
		return decimal.Zero, nil
	}

	switch v := value.(type) {
	case decimal.Decimal:
		return v, nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case float32:
		return decimal.NewFromFloat32(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case string:
		trimmed := strings.TrimSpace(strings.ReplaceAll(v, ",", "."))
		if trimmed == "" {
			return decimal.Zero, nil
		}
		return decimal.NewFromString(trimmed)
	}
	return decimal.Zero, fmt.Errorf("unsupported value for %s: %v", column, value)
}

// stringify convierte un valor de hoja de cálculo a su forma textual
func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case decimal.Decimal:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// toFloat intenta convertir un valor a float64
func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case decimal.Decimal:
		f, _ := v.Float64()
		return f, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
