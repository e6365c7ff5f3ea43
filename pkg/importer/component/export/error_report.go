// Package export writes the row errors of a job as a Parquet report.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/mapstructure"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/tigerroll/payroll-import/pkg/importer/adapter/storage"
	model "github.com/tigerroll/payroll-import/pkg/importer/core/domain/model"
	"github.com/tigerroll/payroll-import/pkg/importer/core/domain/repository"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/exception"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/logger"
)

const (
	moduleName = "export"

	marshalParallelism = 4
)

// ErrorRow is the Parquet schema of one row error.
type ErrorRow struct {
	JobID          string `parquet:"name=job_id, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	RowNumber      int32  `parquet:"name=row_number, type=INT32"`
	EmployeeNumber string `parquet:"name=employee_number, type=BYTE_ARRAY, convertedtype=UTF8"`
	ErrorType      string `parquet:"name=error_type, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Message        string `parquet:"name=message, type=BYTE_ARRAY, convertedtype=UTF8"`
	RawData        string `parquet:"name=raw_data, type=BYTE_ARRAY, convertedtype=UTF8"`
	Retryable      bool   `parquet:"name=retryable, type=BOOLEAN"`
	CreatedAt      int64  `parquet:"name=created_at, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
}

// NewErrorRow flattens a row error. The raw snapshot is kept as JSON text.
func NewErrorRow(e model.RowError) (ErrorRow, error) {
	raw := "{}"
	if len(e.RawData) > 0 {
		b, err := json.Marshal(e.RawData)
		if err != nil {
			return ErrorRow{}, err
		}
		raw = string(b)
	}
	return ErrorRow{
		JobID:          e.JobID,
		RowNumber:      int32(e.RowNumber),
		EmployeeNumber: e.EmployeeNumber,
		ErrorType:      string(e.Type),
		Message:        e.Message,
		RawData:        raw,
		Retryable:      e.Retryable,
		CreatedAt:      e.CreatedAt.UTC().UnixMilli(),
	}, nil
}

// Config holds the exporter settings.
type Config struct {
	// StorageRef names the storage connection reports are uploaded to.
	StorageRef string `mapstructure:"storageRef"`
	// OutputBaseDir is the object prefix of the reports (e.g. "reports/errors").
	OutputBaseDir string `mapstructure:"outputBaseDir"`
	// CompressionType is SNAPPY, GZIP or NONE.
	CompressionType string `mapstructure:"compressionType"`
}

// DecodeConfig reads a Config from raw properties and applies defaults.
func DecodeConfig(properties map[string]interface{}) (Config, error) {
	var cfg Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return cfg, exception.NewConfigurationError(moduleName, "failed to create decoder", err)
	}
	if err := decoder.Decode(properties); err != nil {
		return cfg, exception.NewConfigurationError(moduleName, "failed to decode export properties", err)
	}
	if cfg.StorageRef == "" {
		return cfg, exception.NewConfigurationError(moduleName, "storageRef is required", nil)
	}
	if cfg.OutputBaseDir == "" {
		cfg.OutputBaseDir = "reports/errors"
	}
	if cfg.CompressionType == "" {
		cfg.CompressionType = "SNAPPY"
	}
	if _, err := compressionCodec(cfg.CompressionType); err != nil {
		return cfg, exception.NewConfigurationError(moduleName, "invalid compressionType", err)
	}
	return cfg, nil
}

// Report describes one written report.
type Report struct {
	JobID      string `json:"jobId"`
	ObjectName string `json:"objectName"`
	Rows       int    `json:"rows"`
	Bytes      int    `json:"bytes"`
}

// ErrorExporter renders the row errors of a job to Parquet.
type ErrorExporter struct {
	cfg      Config
	errors   repository.RowErrorRepository
	resolver storage.StorageConnectionResolver
	now      func() time.Time
}

// NewErrorExporter creates an ErrorExporter.
func NewErrorExporter(cfg Config, errorRepo repository.RowErrorRepository, resolver storage.StorageConnectionResolver) *ErrorExporter {
	return &ErrorExporter{cfg: cfg, errors: errorRepo, resolver: resolver, now: time.Now}
}

// Write renders the errors of jobID to w and returns the number of rows written.
func (x *ErrorExporter) Write(ctx context.Context, jobID string, w io.Writer) (int, error) {
	rowErrors, err := x.errors.FindByJob(ctx, jobID)
	if err != nil {
		return 0, err
	}
	codec, err := compressionCodec(x.cfg.CompressionType)
	if err != nil {
		return 0, exception.NewConfigurationError(moduleName, "invalid compressionType", err)
	}

	pw, err := writer.NewParquetWriterFromWriter(w, new(ErrorRow), marshalParallelism)
	if err != nil {
		return 0, exception.NewConfigurationError(moduleName, fmt.Sprintf("failed to create Parquet writer for job %s", jobID), err)
	}
	pw.CompressionType = codec

	var merr *multierror.Error
	written := 0
	for _, e := range rowErrors {
		row, err := NewErrorRow(e)
		if err != nil {
			merr = multierror.Append(merr, fmt.Errorf("row %d: %w", e.RowNumber, err))
			continue
		}
		if err := pw.Write(row); err != nil {
			merr = multierror.Append(merr, fmt.Errorf("row %d: %w", e.RowNumber, err))
			continue
		}
		written++
	}

	if err := writeStop(pw); err != nil {
		merr = multierror.Append(merr, err)
	}
	if err := merr.ErrorOrNil(); err != nil {
		return written, exception.NewConfigurationError(moduleName, fmt.Sprintf("error report of job %s is incomplete", jobID), err)
	}
	return written, nil
}

// writeStop flushes the footer. The library panics on some schema mismatches.
func writeStop(pw *writer.ParquetWriter) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parquet writer panicked during WriteStop: %v", r)
		}
	}()
	return pw.WriteStop()
}

// Export renders the errors of jobID and uploads the report to the configured storage.
func (x *ErrorExporter) Export(ctx context.Context, jobID string) (*Report, error) {
	buf := new(bytes.Buffer)
	rows, err := x.Write(ctx, jobID, buf)
	if err != nil {
		return nil, err
	}

	conn, err := x.resolver.ResolveStorageConnection(ctx, x.cfg.StorageRef)
	if err != nil {
		return nil, exception.NewTransientError(moduleName, fmt.Sprintf("failed to resolve storage '%s'", x.cfg.StorageRef), err)
	}
	objectName := x.ObjectName(jobID)
	size := buf.Len()
	if err := conn.Upload(ctx, objectName, buf, "application/octet-stream"); err != nil {
		return nil, exception.NewTransientError(moduleName, fmt.Sprintf("failed to upload '%s'", objectName), err)
	}

	logger.Infof("Exported %d row errors of job %s to %s/%s (%d bytes).", rows, jobID, x.cfg.StorageRef, objectName, size)
	return &Report{JobID: jobID, ObjectName: objectName, Rows: rows, Bytes: size}, nil
}

// ObjectName returns a Hive-style report name: {base}/job={jobID}/errors_{ts}_{suffix}.parquet.
func (x *ErrorExporter) ObjectName(jobID string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	fileName := fmt.Sprintf("errors_%s_%s.parquet", x.now().UTC().Format("20060102150405"), suffix)
	return path.Join(x.cfg.OutputBaseDir, "job="+jobID, fileName)
}

func compressionCodec(compressionType string) (parquet.CompressionCodec, error) {
	switch strings.ToUpper(compressionType) {
	case "SNAPPY":
		return parquet.CompressionCodec_SNAPPY, nil
	case "GZIP":
		return parquet.CompressionCodec_GZIP, nil
	case "NONE", "":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	default:
		return 0, fmt.Errorf("unsupported compression type: %s", compressionType)
	}
}
