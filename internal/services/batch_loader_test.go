package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadBatchCSV(t *testing.T) {
	service := newTestProcessing()
	dir := t.TempDir()

	headersPath := writeCSV(t, dir, "facturas.csv",
		"NumFactura,empresa_emisora,cliente_nombre\n"+
			"25001,Empresa SL,Cliente Uno\n"+
			"25002,Empresa SL,Cliente Dos\n")
	linesPath := writeCSV(t, dir, "conceptos.csv",
		"NumFactura,descripcion,cantidad,precio_unitario,iva_porcentaje\n"+
			"25001,Servicio,1,\"500\",21\n")

	batch, err := service.LoadBatchCSV(headersPath, linesPath)
	require.NoError(t, err)

	assert.Equal(t, []string{"NumFactura", "empresa_emisora", "cliente_nombre"}, batch.HeaderColumns)
	require.Len(t, batch.Headers, 2)
	assert.Equal(t, "25002", batch.Headers[1]["NumFactura"])
	assert.Equal(t, "Cliente Dos", batch.Headers[1]["cliente_nombre"])

	require.Len(t, batch.Lines, 1)
	assert.Equal(t, "500", batch.Lines[0]["precio_unitario"])
	assert.Equal(t, "21", batch.Lines[0]["iva_porcentaje"])
}

func TestLoadBatchCSVShortRows(t *testing.T) {
	service := newTestProcessing()
	dir := t.TempDir()

	// Una fila con menos campos que columnas declaradas no debe romper
	// la carga; las columnas que faltan simplemente no aparecen
	headersPath := writeCSV(t, dir, "facturas.csv",
		"NumFactura,empresa_emisora,cliente_nombre\n"+
			"25001,Empresa SL\n")
	linesPath := writeCSV(t, dir, "conceptos.csv",
		"NumFactura,descripcion\n")

	batch, err := service.LoadBatchCSV(headersPath, linesPath)
	require.NoError(t, err)

	require.Len(t, batch.Headers, 1)
	assert.Equal(t, "Empresa SL", batch.Headers[0]["empresa_emisora"])
	_, present := batch.Headers[0]["cliente_nombre"]
	assert.False(t, present)

	assert.Empty(t, batch.Lines)
	assert.Equal(t, []string{"NumFactura", "descripcion"}, batch.LineColumns)
}

func TestLoadBatchCSVErrors(t *testing.T) {
	service := newTestProcessing()
	dir := t.TempDir()

	linesPath := writeCSV(t, dir, "conceptos.csv", "NumFactura\n")

	_, err := service.LoadBatchCSV(filepath.Join(dir, "no_existe.csv"), linesPath)
	assert.Error(t, err)

	emptyPath := writeCSV(t, dir, "vacio.csv", "")
	_, err = service.LoadBatchCSV(emptyPath, linesPath)
	assert.Error(t, err)
}
