package sql

import (
	"time"

	model "github.com/tigerroll/payroll-import/pkg/importer/core/domain/model"
)

// JobEntity is the persistence model of model.Job.
type JobEntity struct {
	ID                  string          `gorm:"primaryKey;size:36"`
	Filename            string          `gorm:"size:255;not null"`
	RequesterEmail      string          `gorm:"size:255;not null;index:idx_jobs_email"`
	Status              model.JobStatus `gorm:"size:20;not null;index:idx_jobs_status"`
	TotalRows           int             `gorm:"not null;default:0"`
	ProcessedRows       int             `gorm:"not null;default:0"`
	SuccessRows         int             `gorm:"not null;default:0"`
	ErrorRows           int             `gorm:"not null;default:0"`
	ErrorMessage        string          `gorm:"type:text"`
	FileSizeBytes       int64
	FileRef             string    `gorm:"size:500"`
	CreatedAt           time.Time `gorm:"not null;index:idx_jobs_created"`
	UpdatedAt           time.Time `gorm:"not null"`
	StartedProcessingAt *time.Time
	CompletedAt         *time.Time
	Version             int `gorm:"not null;default:0"`
}

func (JobEntity) TableName() string {
	return "import_jobs"
}

// RowErrorEntity is the persistence model of model.RowError.
type RowErrorEntity struct {
	ID             int64  `gorm:"primaryKey;autoIncrement"`
	JobID          string `gorm:"size:36;not null;index:idx_errors_job"`
	RowNum         int
	EmployeeNumber string        `gorm:"size:50"`
	Message        string        `gorm:"type:text"`
	ErrorType      string        `gorm:"size:20"`
	RawData        model.RawData `gorm:"type:text"`
	Retryable      bool
	CreatedAt      time.Time
}

func (RowErrorEntity) TableName() string {
	return "import_errors"
}

// SalaryEntity is the persistence model of model.SalaryRecord.
type SalaryEntity struct {
	ID             int64       `gorm:"primaryKey;autoIncrement"`
	EmployeeNumber string      `gorm:"size:50;not null;uniqueIndex:uk_salaries_employee_period"`
	FullName       string      `gorm:"size:200;not null"`
	Position       string      `gorm:"size:100;not null"`
	BaseSalary     model.Money `gorm:"type:decimal(15,2);not null"`
	Bonuses        model.Money `gorm:"type:decimal(15,2);not null"`
	Deductions     model.Money `gorm:"type:decimal(15,2);not null"`
	NetSalary      model.Money `gorm:"type:decimal(15,2);not null"`
	PayPeriod      string      `gorm:"size:20;not null;uniqueIndex:uk_salaries_employee_period"`
	PayDate        time.Time   `gorm:"type:date;not null"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (SalaryEntity) TableName() string {
	return "salaries"
}

// Entities lists every persistence model, in creation order. Tests pass it to AutoMigrate;
// deployments use the SQL migrations instead.
func Entities() []interface{} {
	return []interface{}{&JobEntity{}, &RowErrorEntity{}, &SalaryEntity{}}
}
