package model

import "time"

// PayPeriodLayout is the format of a pay period ("2024-03").
const PayPeriodLayout = "2006-01"

// SalaryRecord is one payroll line, unique by (EmployeeNumber, PayPeriod).
type SalaryRecord struct {
	EmployeeNumber string    `json:"employeeNumber"`
	FullName       string    `json:"fullName"`
	Position       string    `json:"position"`
	BaseSalary     Money     `json:"baseSalary"`
	Bonuses        Money     `json:"bonuses"`
	Deductions     Money     `json:"deductions"`
	NetSalary      Money     `json:"netSalary"`
	PayPeriod      string    `json:"payPeriod"`
	PayDate        time.Time `json:"payDate"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// NaturalKey returns the upsert key of the record.
func (r SalaryRecord) NaturalKey() string {
	return r.EmployeeNumber + "|" + r.PayPeriod
}

// Column headers expected in row 1 of the first sheet, in order.
var ExpectedHeaders = []string{
	"Numero Empleado",
	"Nombre Completo",
	"Puesto",
	"Salario Base",
	"Bonos",
	"Deducciones",
	"Salario Neto",
	"Periodo Pago",
	"Fecha Pago",
}

// RawRow is one spreadsheet row as read from the file, cells in ExpectedHeaders order.
type RawRow struct {
	RowNumber int
	Cells     []string
}

// Cell returns the i-th cell, or "" when the row is shorter.
func (r RawRow) Cell(i int) string {
	if i < 0 || i >= len(r.Cells) {
		return ""
	}
	return r.Cells[i]
}

// IsBlank reports whether every cell is empty.
func (r RawRow) IsBlank() bool {
	for _, c := range r.Cells {
		if c != "" {
			return false
		}
	}
	return true
}

// Snapshot returns the row as a header-keyed map, used as the raw data of a row error.
func (r RawRow) Snapshot() map[string]interface{} {
	snap := make(map[string]interface{}, len(ExpectedHeaders))
	for i, h := range ExpectedHeaders {
		snap[h] = r.Cell(i)
	}
	return snap
}
