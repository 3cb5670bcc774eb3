package services

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// urlPattern localiza URLs embebidas en texto libre
var urlPattern = regexp.MustCompile(`https?://[^\s"'>)]+`)

// pdfURLKeys son los campos habituales donde la API remota devuelve el
// enlace al PDF generado
var pdfURLKeys = []string{"pdf_url", "url_pdf", "pdf", "url", "enlace_pdf", "link"}

// pdfURLHints son fragmentos que identifican una URL como enlace a PDF
var pdfURLHints = []string{".pdf", "pdf", "download", "descarga", "ver_afc_api.php"}

// ExtractPDFURL extrae la URL del PDF de un item de respuesta de la
// API. Primero prueba los campos conocidos y después recorre el item
// completo buscando URLs que parezcan enlaces a PDF. Devuelve cadena
// vacía si no encuentra nada.
func (s *ProcessingService) ExtractPDFURL(item map[string]any) string {
	for _, key := range pdfURLKeys {
		if value, ok := item[key]; ok {
			if url, ok := value.(string); ok && strings.HasPrefix(url, "http") {
				return url
			}
		}
	}

	var found string
	walkScalars(item, func(scalar any) bool {
		str, ok := scalar.(string)
		if !ok {
			return true
		}
		match := urlPattern.FindString(str)
		if match == "" {
			return true
		}
		lower := strings.ToLower(match)
		for _, hint := range pdfURLHints {
			if strings.Contains(lower, hint) {
				found = match
				return false
			}
		}
		return true
	})

	return found
}

// walkScalars recorre recursivamente mapas y listas aplicando fn a
// cada valor escalar; fn devuelve false para cortar el recorrido
func walkScalars(value any, fn func(any) bool) bool {
	switch v := value.(type) {
	case map[string]any:
		for _, item := range v {
			if !walkScalars(item, fn) {
				return false
			}
		}
	case []any:
		for _, item := range v {
			if !walkScalars(item, fn) {
				return false
			}
		}
	default:
		return fn(v)
	}
	return true
}

// ReadSummaryFile lee un fichero summary.json generado por un envío y
// extrae la lista de facturas procesadas. Admite tanto un objeto con
// la lista anidada como una lista directa.
func (s *ProcessingService) ReadSummaryFile(path string) ([]map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading summary file %s: %w", path, err)
	}

	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("error parsing summary file %s: %w", path, err)
	}

	switch v := data.(type) {
	case map[string]any:
		for _, key := range []string{"proformas_procesadas", "items"} {
			if list, ok := v[key].([]any); ok {
				return itemsFromList(list), nil
			}
		}
		return []map[string]any{v}, nil
	case []any:
		return itemsFromList(v), nil
	}

	return nil, nil
}

// itemsFromList filtra los elementos de una lista que son objetos
func itemsFromList(list []any) []map[string]any {
	items := make([]map[string]any, 0, len(list))
	for _, element := range list {
		if item, ok := element.(map[string]any); ok {
			items = append(items, item)
		}
	}
	return items
}
