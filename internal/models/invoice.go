package models

import (
	"github.com/shopspring/decimal"
)

// Columnas requeridas en los datos de entrada
const (
	ColInvoiceID   = "NumFactura"
	ColIssuer      = "empresa_emisora"
	ColCustomer    = "cliente_nombre"
	ColDescription = "descripcion"
	ColQuantity    = "cantidad"
	ColUnitPrice   = "precio_unitario"
	ColTaxRate     = "iva_porcentaje"
	ColRetention   = "retencion_porcentaje"
)

// Columnas opcionales de la hoja de facturas
const (
	ColCustomerTaxID   = "cliente_nif"
	ColCustomerAddress = "cliente_direccion"
	ColCustomerPostal  = "cliente_cp"
	ColCustomerCity    = "cliente_ciudad"
	ColCustomerCountry = "cliente_pais"
	ColCustomerEmail   = "cliente_email"
	ColIssueDate       = "fecha_factura"
	ColPaymentMethod   = "forma_pago"
	ColExercise        = "ejercicio"
)

// RequiredHeaderColumns son las columnas obligatorias de la hoja de facturas
var RequiredHeaderColumns = []string{ColInvoiceID, ColIssuer, ColCustomer}

// RequiredLineColumns son las columnas obligatorias de la hoja de conceptos
var RequiredLineColumns = []string{ColInvoiceID, ColDescription, ColQuantity, ColUnitPrice}

// Row representa una fila de datos importada de una hoja de cálculo
type Row map[string]any

// InvoiceBatch representa un lote de facturas cargado desde un fichero:
// filas de cabecera más filas de conceptos, con sus columnas declaradas
type InvoiceBatch struct {
	HeaderColumns []string `json:"header_columns"`
	Headers       []Row    `json:"headers"`
	LineColumns   []string `json:"line_columns"`
	Lines         []Row    `json:"lines"`
}

// HasHeaderColumn indica si el lote declara una columna de cabecera
func (b *InvoiceBatch) HasHeaderColumn(name string) bool {
	for _, col := range b.HeaderColumns {
		if col == name {
			return true
		}
	}
	return false
}

// HasLineColumn indica si el lote declara una columna de conceptos
func (b *InvoiceBatch) HasLineColumn(name string) bool {
	for _, col := range b.LineColumns {
		if col == name {
			return true
		}
	}
	return false
}

// InvoiceLine representa una línea de concepto en una factura
type InvoiceLine struct {
	Description   string          `json:"description"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	TaxRate       decimal.Decimal `json:"tax_rate"`
	RetentionRate decimal.Decimal `json:"retention_rate"`
}

// Subtotal calcula el subtotal sin impuestos
func (l InvoiceLine) Subtotal() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice)
}

// TaxAmount calcula el importe del IVA
func (l InvoiceLine) TaxAmount() decimal.Decimal {
	return l.Subtotal().Mul(l.TaxRate).Div(decimal.NewFromInt(100))
}

// RetentionAmount calcula el importe de la retención
func (l InvoiceLine) RetentionAmount() decimal.Decimal {
	return l.Subtotal().Mul(l.RetentionRate).Div(decimal.NewFromInt(100))
}

// Total calcula el total de la línea
func (l InvoiceLine) Total() decimal.Decimal {
	return l.Subtotal().Add(l.TaxAmount()).Sub(l.RetentionAmount())
}

// Customer representa un cliente de una factura
type Customer struct {
	Name       string `json:"name"`
	TaxID      string `json:"tax_id"`
	Address    string `json:"address,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	City       string `json:"city,omitempty"`
	Country    string `json:"country"`
	Email      string `json:"email,omitempty"`
}

// Invoice representa una factura completa
type Invoice struct {
	InvoiceID     string        `json:"invoice_id"`
	IssuerCompany string        `json:"issuer_company"`
	Customer      Customer      `json:"customer"`
	IssueDate     string        `json:"issue_date"`
	Lines         []InvoiceLine `json:"lines"`
	PaymentMethod string        `json:"payment_method"`
	Exercise      string        `json:"exercise,omitempty"`
}

// Subtotal calcula la base imponible total de la factura
func (i Invoice) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, line := range i.Lines {
		sum = sum.Add(line.Subtotal())
	}
	return sum
}

// TotalTax calcula el IVA total de la factura
func (i Invoice) TotalTax() decimal.Decimal {
	sum := decimal.Zero
	for _, line := range i.Lines {
		sum = sum.Add(line.TaxAmount())
	}
	return sum
}

// TotalRetention calcula la retención total de la factura
func (i Invoice) TotalRetention() decimal.Decimal {
	sum := decimal.Zero
	for _, line := range i.Lines {
		sum = sum.Add(line.RetentionAmount())
	}
	return sum
}

// TotalAmount calcula el importe total de la factura
func (i Invoice) TotalAmount() decimal.Decimal {
	return i.Subtotal().Add(i.TotalTax()).Sub(i.TotalRetention())
}

// InvoiceValidationError representa un error de validación en un lote.
// RowIndex es -1 para errores de esquema que afectan a todo el lote.
type InvoiceValidationError struct {
	RowIndex  int    `json:"row_index"`
	FieldName string `json:"field_name"`
	Message   string `json:"message"`
	InvoiceID string `json:"invoice_id,omitempty"`
}

// InvoiceTotals representa los totales calculados de una factura
type InvoiceTotals struct {
	InvoiceID      string          `json:"invoice_id"`
	Base           decimal.Decimal `json:"base"`
	TotalTax       decimal.Decimal `json:"total_tax"`
	TotalRetention decimal.Decimal `json:"total_retention"`
}
