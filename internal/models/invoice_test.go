package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestInvoiceLineAmounts(t *testing.T) {
	line := InvoiceLine{
		Description:   "Desarrollo web",
		Quantity:      dec("2"),
		UnitPrice:     dec("150.50"),
		TaxRate:       dec("21"),
		RetentionRate: dec("15"),
	}

	assert.True(t, dec("301").Equal(line.Subtotal()), "subtotal %s", line.Subtotal())
	assert.True(t, dec("63.21").Equal(line.TaxAmount()), "iva %s", line.TaxAmount())
	assert.True(t, dec("45.15").Equal(line.RetentionAmount()), "retencion %s", line.RetentionAmount())
	assert.True(t, dec("319.06").Equal(line.Total()), "total %s", line.Total())
}

func TestInvoiceLineZeroRetentionByDefault(t *testing.T) {
	line := InvoiceLine{
		Quantity:  dec("1"),
		UnitPrice: dec("100"),
		TaxRate:   dec("21"),
	}

	assert.True(t, decimal.Zero.Equal(line.RetentionAmount()))
	assert.True(t, dec("121").Equal(line.Total()))
}

func TestInvoiceTotalsAcrossLines(t *testing.T) {
	invoice := Invoice{
		InvoiceID:     "25001",
		IssuerCompany: "Empresa SL",
		Lines: []InvoiceLine{
			{Quantity: dec("1"), UnitPrice: dec("100"), TaxRate: dec("21")},
			{Quantity: dec("2"), UnitPrice: dec("200"), TaxRate: dec("21")},
		},
	}

	assert.True(t, dec("500").Equal(invoice.Subtotal()))
	assert.True(t, dec("105").Equal(invoice.TotalTax()))
	assert.True(t, decimal.Zero.Equal(invoice.TotalRetention()))
	assert.True(t, dec("605").Equal(invoice.TotalAmount()))
}

func TestHistoryStatsSuccessRate(t *testing.T) {
	empty := HistoryStats{}
	assert.Equal(t, 0.0, empty.SuccessRate())

	stats := HistoryStats{TotalInvoices: 4, SuccessfulInvoices: 3}
	assert.InDelta(t, 75.0, stats.SuccessRate(), 0.001)
}

func TestHistoryEntryStatusHelpers(t *testing.T) {
	assert.True(t, HistoryEntry{Status: SendStatusOK}.IsSuccessful())
	assert.True(t, HistoryEntry{Status: SendStatusError}.IsError())
	assert.True(t, HistoryEntry{Status: SendStatusPending}.IsPending())
	assert.False(t, HistoryEntry{Status: SendStatusError}.IsSuccessful())
}

func TestQueueItemShouldRetry(t *testing.T) {
	item := OfflineQueueItem{Status: QueueStatusPending, Attempts: 2}
	assert.True(t, item.ShouldRetry(3))

	item.Attempts = 3
	assert.False(t, item.ShouldRetry(3))

	item = OfflineQueueItem{Status: QueueStatusFailed, Attempts: 0}
	assert.False(t, item.ShouldRetry(3))
}
