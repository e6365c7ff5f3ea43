package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// RowErrorType classifies a recorded row failure.
type RowErrorType string

const (
	RowErrorValidation RowErrorType = "VALIDATION"
	RowErrorProcessing RowErrorType = "PROCESSING"
)

// RawData is a JSON snapshot of the offending row.
type RawData map[string]interface{}

// Value implements driver.Valuer, storing the snapshot as JSON text.
func (d RawData) Value() (driver.Value, error) {
	if d == nil {
		return "{}", nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (d *RawData) Scan(value interface{}) error {
	var b []byte
	switch v := value.(type) {
	case nil:
		*d = RawData{}
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported Scan type for RawData: %T", value)
	}
	if len(b) == 0 {
		*d = RawData{}
		return nil
	}
	if err := json.Unmarshal(b, d); err != nil {
		return fmt.Errorf("failed to unmarshal RawData JSON: %w", err)
	}
	return nil
}

// RowError is an append-only record of a row that could not be imported.
type RowError struct {
	ID             int64        `json:"id"`
	JobID          string       `json:"jobId"`
	RowNumber      int          `json:"rowNumber"`
	EmployeeNumber string       `json:"employeeNumber"`
	Message        string       `json:"message"`
	Type           RowErrorType `json:"type"`
	RawData        RawData      `json:"rawData"`
	Retryable      bool         `json:"retryable"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// NewValidationRowError builds a non-retryable VALIDATION error for a row.
func NewValidationRowError(jobID string, row RawRow, employeeNumber, message string) RowError {
	return RowError{
		JobID:          jobID,
		RowNumber:      row.RowNumber,
		EmployeeNumber: employeeNumber,
		Message:        message,
		Type:           RowErrorValidation,
		RawData:        row.Snapshot(),
		CreatedAt:      time.Now().UTC(),
	}
}

// NewProcessingRowError records a row whose classification failed unexpectedly.
func NewProcessingRowError(jobID string, row RawRow, message string) RowError {
	return RowError{
		JobID:     jobID,
		RowNumber: row.RowNumber,
		Message:   message,
		Type:      RowErrorProcessing,
		RawData:   row.Snapshot(),
		CreatedAt: time.Now().UTC(),
	}
}
