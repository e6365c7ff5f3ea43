package processor_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/payroll-import/pkg/importer/core/domain/model"
	"github.com/tigerroll/payroll-import/pkg/importer/engine/processor"
)

func validRow(n int) model.RawRow {
	return model.RawRow{
		RowNumber: n,
		Cells: []string{
			fmt.Sprintf("E%05d", n), "Ana Torres", "Analyst",
			"$15,000.00", "500", "1,200.50", "14,299.50", "2024-03", "2024-03-31",
		},
	}
}

func TestClassify_ValidRow(t *testing.T) {
	p := processor.NewProcessor()
	rec, rowErr := p.Classify("job", validRow(2))
	require.Nil(t, rowErr)
	require.NotNil(t, rec)
	assert.Equal(t, "E00002", rec.EmployeeNumber)
	assert.Equal(t, model.Money(1500000), rec.BaseSalary)
	assert.Equal(t, model.Money(120050), rec.Deductions)
	assert.Equal(t, "2024-03", rec.PayPeriod)
	assert.Equal(t, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), rec.PayDate)
}

func TestClassify_Rules(t *testing.T) {
	p := processor.NewProcessor()
	tests := []struct {
		name    string
		mutate  func(cells []string)
		message string
	}{
		{"missing employee number", func(c []string) { c[0] = " " }, "Número de empleado es requerido"},
		{"employee number too long", func(c []string) { c[0] = fmt.Sprintf("%051d", 1) }, "Número de empleado muy largo"},
		{"missing name", func(c []string) { c[1] = "" }, "Nombre completo es requerido"},
		{"zero base salary", func(c []string) { c[3] = "0"; c[6] = "0" }, "Salario base debe ser mayor que 0"},
		{"net above base", func(c []string) { c[6] = "20000" }, "Salario neto no puede ser mayor que salario base"},
		{"bad period", func(c []string) { c[7] = "2024-13" }, "Periodo de pago debe tener formato YYYY-MM"},
		{"unparseable money", func(c []string) { c[4] = "abc" }, "Bonos inválido"},
		{"bad date", func(c []string) { c[8] = "yesterday" }, "Fecha de pago inválida"},
		{"missing date", func(c []string) { c[8] = "" }, "Fecha de pago es requerida"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := validRow(5)
			tt.mutate(row.Cells)
			rec, rowErr := p.Classify("job-1", row)
			assert.Nil(t, rec)
			require.NotNil(t, rowErr)
			assert.Contains(t, rowErr.Message, tt.message)
			assert.Equal(t, model.RowErrorValidation, rowErr.Type)
			assert.Equal(t, 5, rowErr.RowNumber)
			assert.Equal(t, "job-1", rowErr.JobID)
			assert.False(t, rowErr.Retryable)
		})
	}
}

func TestClassify_CollectsEveryViolation(t *testing.T) {
	p := processor.NewProcessor()
	row := validRow(9)
	row.Cells[1] = ""
	row.Cells[7] = "marzo"
	_, rowErr := p.Classify("job", row)
	require.NotNil(t, rowErr)
	assert.Contains(t, rowErr.Message, "Nombre completo es requerido")
	assert.Contains(t, rowErr.Message, "Periodo de pago debe tener formato YYYY-MM")
	assert.Equal(t, "", rowErr.RawData["Nombre Completo"])
}

// 1000 rows with one invalid row: 999 records and 1 VALIDATION error.
func TestProcessRows_ThousandRowsOneInvalid(t *testing.T) {
	p := processor.NewProcessor()
	rows := make([]model.RawRow, 0, 1000)
	for i := 1; i <= 1000; i++ {
		rows = append(rows, validRow(i+1))
	}
	rows[499].Cells[3] = "-10"

	res := p.ProcessRows("job", rows)
	assert.Len(t, res.Valid, 999)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 501, res.Errors[0].RowNumber)
	assert.Equal(t, 0, res.Dropped)
}

func TestProcessRows_SkipsBlankRows(t *testing.T) {
	p := processor.NewProcessor()
	res := p.ProcessRows("job", []model.RawRow{validRow(2), {RowNumber: 3, Cells: []string{"", ""}}, validRow(4)})
	assert.Len(t, res.Valid, 2)
	assert.Empty(t, res.Errors)
}

func TestParseDateCell(t *testing.T) {
	d, err := processor.ParseDateCell("45382")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), d)

	d, err = processor.ParseDateCell("03-31-24")
	require.NoError(t, err)
	assert.Equal(t, 2024, d.Year())

	_, err = processor.ParseDateCell("not a date")
	assert.Error(t, err)
}
