// Package processor classifies spreadsheet rows into salary records or row errors.
// It performs no I/O.
package processor

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"

	model "github.com/tigerroll/payroll-import/pkg/importer/core/domain/model"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/logger"
)

var payPeriodPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// payrollRow is the validated shape of one spreadsheet row.
type payrollRow struct {
	EmployeeNumber string      `validate:"required,max=50"`
	FullName       string      `validate:"required,max=200"`
	Position       string      `validate:"required,max=100"`
	BaseSalary     model.Money `validate:"gt=0"`
	Bonuses        model.Money
	Deductions     model.Money
	NetSalary      model.Money
	PayPeriod      string    `validate:"required,max=20,payperiod"`
	PayDate        time.Time `validate:"required"`
}

// fieldMessages maps field and failed tag to the message stored in the row error.
var fieldMessages = map[string]map[string]string{
	"EmployeeNumber": {"required": "Número de empleado es requerido", "max": "Número de empleado muy largo"},
	"FullName":       {"required": "Nombre completo es requerido", "max": "Nombre completo muy largo"},
	"Position":       {"required": "Puesto es requerido", "max": "Puesto muy largo"},
	"BaseSalary":     {"gt": "Salario base debe ser mayor que 0"},
	"PayPeriod": {
		"required":  "Periodo de pago es requerido",
		"max":       "Periodo de pago muy largo",
		"payperiod": "Periodo de pago debe tener formato YYYY-MM",
	},
	"PayDate": {"required": "Fecha de pago es requerida"},
}

// Result is the classification of a chunk of rows. Dropped counts the rows whose
// classification failed unexpectedly; they are also reported in Errors as PROCESSING
// errors so that they still count as processed.
type Result struct {
	Valid   []model.SalaryRecord
	Errors  []model.RowError
	Dropped int
}

// Processor validates rows. It is safe for concurrent use.
type Processor struct {
	validate *validator.Validate
}

// NewProcessor creates a Processor with the payroll validation rules registered.
func NewProcessor() *Processor {
	v := validator.New()
	if err := v.RegisterValidation("payperiod", func(fl validator.FieldLevel) bool {
		return payPeriodPattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return &Processor{validate: v}
}

// Classify turns one row into either a record or a VALIDATION row error.
func (p *Processor) Classify(jobID string, row model.RawRow) (*model.SalaryRecord, *model.RowError) {
	parsed, errs := parseRow(row)
	if err := p.validate.Struct(parsed); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				errs = multierror.Append(errs, errors.New(messageFor(fe)))
			}
		} else {
			errs = multierror.Append(errs, err)
		}
	}
	if parsed.BaseSalary > 0 && parsed.NetSalary > parsed.BaseSalary {
		errs = multierror.Append(errs, errors.New("Salario neto no puede ser mayor que salario base"))
	}

	if errs.ErrorOrNil() != nil {
		rowErr := model.NewValidationRowError(jobID, row, parsed.EmployeeNumber, joinMessages(errs))
		return nil, &rowErr
	}
	return &model.SalaryRecord{
		EmployeeNumber: parsed.EmployeeNumber,
		FullName:       parsed.FullName,
		Position:       parsed.Position,
		BaseSalary:     parsed.BaseSalary,
		Bonuses:        parsed.Bonuses,
		Deductions:     parsed.Deductions,
		NetSalary:      parsed.NetSalary,
		PayPeriod:      parsed.PayPeriod,
		PayDate:        parsed.PayDate,
	}, nil
}

// ProcessRows classifies every row. Blank rows are ignored. A row that panics is
// logged and kept out of the valid set so one bad row never fails the chunk.
func (p *Processor) ProcessRows(jobID string, rows []model.RawRow) Result {
	res := Result{Valid: make([]model.SalaryRecord, 0, len(rows))}
	for _, row := range rows {
		if row.IsBlank() {
			continue
		}
		rec, rowErr, ok := p.safeClassify(jobID, row)
		switch {
		case !ok:
			res.Dropped++
			res.Errors = append(res.Errors, model.NewProcessingRowError(jobID, row, "Error inesperado procesando la fila"))
		case rowErr != nil:
			res.Errors = append(res.Errors, *rowErr)
		default:
			res.Valid = append(res.Valid, *rec)
		}
	}
	return res
}

func (p *Processor) safeClassify(jobID string, row model.RawRow) (rec *model.SalaryRecord, rowErr *model.RowError, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Unexpected failure classifying row %d of job %s: %v", row.RowNumber, jobID, r)
			rec, rowErr, ok = nil, nil, false
		}
	}()
	rec, rowErr = p.Classify(jobID, row)
	return rec, rowErr, true
}

func parseRow(row model.RawRow) (payrollRow, *multierror.Error) {
	var errs *multierror.Error
	parsed := payrollRow{
		EmployeeNumber: strings.TrimSpace(row.Cell(0)),
		FullName:       strings.TrimSpace(row.Cell(1)),
		Position:       strings.TrimSpace(row.Cell(2)),
		PayPeriod:      strings.TrimSpace(row.Cell(7)),
	}

	money := []struct {
		idx    int
		label  string
		target *model.Money
	}{
		{3, "Salario base", &parsed.BaseSalary},
		{4, "Bonos", &parsed.Bonuses},
		{5, "Deducciones", &parsed.Deductions},
		{6, "Salario neto", &parsed.NetSalary},
	}
	for _, m := range money {
		v, err := ParseMoneyCell(row.Cell(m.idx))
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s inválido: %q", m.label, row.Cell(m.idx)))
			continue
		}
		*m.target = v
	}

	if raw := row.Cell(8); strings.TrimSpace(raw) != "" {
		d, err := ParseDateCell(raw)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("Fecha de pago inválida: %q", raw))
		} else {
			parsed.PayDate = d
		}
	}
	return parsed, errs
}

func messageFor(fe validator.FieldError) string {
	if byTag, ok := fieldMessages[fe.Field()]; ok {
		if msg, ok := byTag[fe.Tag()]; ok {
			return msg
		}
	}
	return fmt.Sprintf("%s no cumple la regla %s", fe.Field(), fe.Tag())
}

func joinMessages(errs *multierror.Error) string {
	msgs := make([]string, 0, len(errs.Errors))
	for _, e := range errs.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}
