package service

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "products.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestValidateCSVFileHappyPath(t *testing.T) {
	path := writeCSV(t, "sku,name,description,active\nA1,Widget,Small widget,true\nB2,Gadget,,false\n")

	result := ValidateCSVFile(path)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
	assert.Equal(t, int64(2), result.TotalRows)
	assert.Equal(t, 2, result.SampleSize)
}

func TestValidateCSVFileMissingHeaderNamesIt(t *testing.T) {
	path := writeCSV(t, "name,description\nWidget,Small widget\n")

	result := ValidateCSVFile(path)
	assert.False(t, result.Valid)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "missing required headers")
	assert.Contains(t, result.Errors[0], "sku")
}

func TestValidateCSVFileWrongExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.txt")
	require.NoError(t, os.WriteFile(path, []byte("sku,name\nA1,Widget\n"), 0o644))

	result := ValidateCSVFile(path)
	assert.False(t, result.Valid)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], ".csv")
}

func TestValidateCSVFileEmpty(t *testing.T) {
	path := writeCSV(t, "")

	result := ValidateCSVFile(path)
	assert.False(t, result.Valid)
}

func TestValidateCSVFileUnknownHeaderIsWarningOnly(t *testing.T) {
	path := writeCSV(t, "sku,name,price\nA1,Widget,9.99\n")

	result := ValidateCSVFile(path)
	assert.True(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.True(t, strings.HasPrefix(result.Errors[0], "Warning:"))
	assert.Contains(t, result.Errors[0], "price")
}

func TestValidateCSVFileSampleErrorsAreWarnings(t *testing.T) {
	var b strings.Builder
	b.WriteString("sku,name\n")
	// 15 bad rows: empty sku. Only the first 10 should be reported.
	for i := 0; i < 15; i++ {
		b.WriteString(",NoSKU\n")
	}
	b.WriteString("A1,Widget\n")
	path := writeCSV(t, b.String())

	result := ValidateCSVFile(path)
	assert.True(t, result.Valid)
	assert.Len(t, result.Errors, 10)
	assert.Equal(t, int64(16), result.TotalRows)
}

func TestParseProductRow(t *testing.T) {
	p, err := parseProductRow(map[string]string{
		"sku": " A1 ", "name": " Widget ", "description": "Small widget", "active": "yes",
	})
	require.NoError(t, err)
	assert.Equal(t, "A1", p.SKU)
	assert.Equal(t, "Widget", p.Name)
	require.NotNil(t, p.Description)
	assert.Equal(t, "Small widget", *p.Description)
	assert.True(t, p.Active)
}

func TestParseProductRowDefaults(t *testing.T) {
	p, err := parseProductRow(map[string]string{"sku": "A1", "name": "Widget"})
	require.NoError(t, err)
	assert.Nil(t, p.Description)
	assert.True(t, p.Active)
}

func TestParseProductRowRejectsEmptyFields(t *testing.T) {
	_, err := parseProductRow(map[string]string{"sku": "", "name": "Widget"})
	assert.EqualError(t, err, "empty sku")

	_, err = parseProductRow(map[string]string{"sku": "A1", "name": "  "})
	assert.EqualError(t, err, "empty name")
}

func TestParseActiveTokens(t *testing.T) {
	for _, token := range []string{"true", "yes", "1", "t", "y", "TRUE", "Yes", " Y "} {
		got, err := parseActive(token)
		require.NoError(t, err, "token %q", token)
		assert.True(t, got, "token %q", token)
	}
	for _, token := range []string{"false", "no", "0", "f", "n", "FALSE", "No"} {
		got, err := parseActive(token)
		require.NoError(t, err, "token %q", token)
		assert.False(t, got, "token %q", token)
	}
	_, err := parseActive("maybe")
	assert.Error(t, err)
}
