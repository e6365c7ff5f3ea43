package sql

import (
	model "github.com/tigerroll/payroll-import/pkg/importer/core/domain/model"
)

func fromDomainJob(j *model.Job) *JobEntity {
	if j == nil {
		return nil
	}
	return &JobEntity{
		ID:                  j.ID,
		Filename:            j.Filename,
		RequesterEmail:      j.RequesterEmail,
		Status:              j.Status,
		TotalRows:           j.Total,
		ProcessedRows:       j.Processed,
		SuccessRows:         j.Success,
		ErrorRows:           j.Errors,
		ErrorMessage:        j.ErrorMessage,
		FileSizeBytes:       j.FileSizeBytes,
		FileRef:             j.FileRef,
		CreatedAt:           j.CreatedAt,
		UpdatedAt:           j.UpdatedAt,
		StartedProcessingAt: j.StartedProcessingAt,
		CompletedAt:         j.CompletedAt,
		Version:             j.Version,
	}
}

func toDomainJob(e *JobEntity) *model.Job {
	if e == nil {
		return nil
	}
	return &model.Job{
		ID:                  e.ID,
		Filename:            e.Filename,
		RequesterEmail:      e.RequesterEmail,
		Status:              e.Status,
		Total:               e.TotalRows,
		Processed:           e.ProcessedRows,
		Success:             e.SuccessRows,
		Errors:              e.ErrorRows,
		ErrorMessage:        e.ErrorMessage,
		FileSizeBytes:       e.FileSizeBytes,
		FileRef:             e.FileRef,
		CreatedAt:           e.CreatedAt,
		UpdatedAt:           e.UpdatedAt,
		StartedProcessingAt: e.StartedProcessingAt,
		CompletedAt:         e.CompletedAt,
		Version:             e.Version,
	}
}

func toDomainJobs(entities []JobEntity) []*model.Job {
	jobs := make([]*model.Job, 0, len(entities))
	for i := range entities {
		jobs = append(jobs, toDomainJob(&entities[i]))
	}
	return jobs
}

func fromDomainRowError(e model.RowError) RowErrorEntity {
	return RowErrorEntity{
		ID:             e.ID,
		JobID:          e.JobID,
		RowNum:         e.RowNumber,
		EmployeeNumber: e.EmployeeNumber,
		Message:        e.Message,
		ErrorType:      string(e.Type),
		RawData:        e.RawData,
		Retryable:      e.Retryable,
		CreatedAt:      e.CreatedAt,
	}
}

func toDomainRowError(e RowErrorEntity) model.RowError {
	return model.RowError{
		ID:             e.ID,
		JobID:          e.JobID,
		RowNumber:      e.RowNum,
		EmployeeNumber: e.EmployeeNumber,
		Message:        e.Message,
		Type:           model.RowErrorType(e.ErrorType),
		RawData:        e.RawData,
		Retryable:      e.Retryable,
		CreatedAt:      e.CreatedAt,
	}
}

func fromDomainSalary(r model.SalaryRecord) SalaryEntity {
	return SalaryEntity{
		EmployeeNumber: r.EmployeeNumber,
		FullName:       r.FullName,
		Position:       r.Position,
		BaseSalary:     r.BaseSalary,
		Bonuses:        r.Bonuses,
		Deductions:     r.Deductions,
		NetSalary:      r.NetSalary,
		PayPeriod:      r.PayPeriod,
		PayDate:        r.PayDate,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func toDomainSalary(e SalaryEntity) model.SalaryRecord {
	return model.SalaryRecord{
		EmployeeNumber: e.EmployeeNumber,
		FullName:       e.FullName,
		Position:       e.Position,
		BaseSalary:     e.BaseSalary,
		Bonuses:        e.Bonuses,
		Deductions:     e.Deductions,
		NetSalary:      e.NetSalary,
		PayPeriod:      e.PayPeriod,
		PayDate:        e.PayDate,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}
