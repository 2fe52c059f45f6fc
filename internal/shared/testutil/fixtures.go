package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/text/encoding/charmap"
)

// SalesHeader is the column layout of the fixed sales schema used across tests
var SalesHeader = []string{"STORE", "DIVISION", "SECTION", "DEPARTMENT", "ARTICLE_NAME", "CONCEPT", "SL_Q", "SL_V"}

// SalesRows is a small sales extract with a mix of stores, departments and currency-formatted values
var SalesRows = [][]string{
	{"S001", "APPAREL", "MENS", "SHIRTS", "Oxford Shirt", "Core", "10", "₹1,000"},
	{"S001", "APPAREL", "WOMENS", "DRESSES", "Wrap Dress", "Core", "4", "₹2,400"},
	{"S002", "APPAREL", "MENS", "SHIRTS", "Oxford Shirt", "Fashion", "7", "₹700"},
	{"S002", "HOME", "KITCHEN", "COOKWARE", "Skillet", "Core", "", "₹1,250"},
	{"S003", "HOME", "DECOR", "LIGHTING", "Café Lamp", "Fashion", "2", "n/a"},
}

// SalesCSV renders SalesHeader and SalesRows joined by delim, one record per line.
// Values containing delim or a comma thousands separator are quoted.
func SalesCSV(delim string) string {
	var b strings.Builder
	writeLine := func(fields []string) {
		for i, f := range fields {
			if i > 0 {
				b.WriteString(delim)
			}
			if strings.Contains(f, delim) || (delim == "," && strings.ContainsAny(f, ",\"")) {
				b.WriteString(`"` + strings.ReplaceAll(f, `"`, `""`) + `"`)
				continue
			}
			b.WriteString(f)
		}
		b.WriteString("\n")
	}
	writeLine(SalesHeader)
	for _, row := range SalesRows {
		writeLine(row)
	}
	return b.String()
}

// EncodeLatin1 converts s to ISO-8859-1 bytes, failing the test on unmappable runes
func EncodeLatin1(t *testing.T, s string) []byte {
	t.Helper()
	out, err := charmap.ISO8859_1.NewEncoder().String(s)
	if err != nil {
		t.Fatalf("encode latin-1: %v", err)
	}
	return []byte(out)
}

// EncodeWindows1252 converts s to Windows-1252 bytes, failing the test on unmappable runes
func EncodeWindows1252(t *testing.T, s string) []byte {
	t.Helper()
	out, err := charmap.Windows1252.NewEncoder().String(s)
	if err != nil {
		t.Fatalf("encode windows-1252: %v", err)
	}
	return []byte(out)
}

// WriteTempFile writes data under t.TempDir and returns the full path
func WriteTempFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write fixture %s: %v", name, err)
	}
	return path
}
