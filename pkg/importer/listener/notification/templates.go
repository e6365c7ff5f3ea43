package notification

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	model "github.com/tigerroll/payroll-import/pkg/importer/core/domain/model"
)

const completedHTML = `<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <h2 style="color:#2e7d32;">Import Completed</h2>
  <p><b>Job ID:</b> {{.JobID}}</p>
  <p><b>File:</b> {{.Filename}}</p>
  <p><b>Total rows:</b> {{.Total}}</p>
  <p><b>Succeeded:</b> {{.Success}}</p>
  <p><b>Errors:</b> {{.Errors}}</p>
  <p><b>Success rate:</b> {{printf "%.1f" .SuccessRate}}%</p>
  <p><b>Duration:</b> {{.Duration}}</p>
  <p><b>Speed:</b> {{printf "%.1f" .RowsPerSecond}} rows/s</p>
  <p><b>Status:</b> {{.Status}}</p>
  <hr/>
  <p style="font-size:12px; color:#777;">This is an automated message, please do not reply.</p>
</body>
</html>
`

const failedHTML = `<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <h2 style="color:#c62828;">Import Failed</h2>
  <p><b>Job ID:</b> {{.JobID}}</p>
  <p><b>Error message:</b></p>
  <pre style="background-color:#f8d7da; padding:10px; border-radius:5px; color:#721c24;">{{.Message}}</pre>
  <hr/>
  <p style="font-size:12px; color:#777;">This is an automated message, please do not reply.</p>
</body>
</html>
`

var (
	completedTemplate = template.Must(template.New("completed").Parse(completedHTML))
	failedTemplate    = template.Must(template.New("failed").Parse(failedHTML))
)

// EmailData is the view rendered into notification emails.
type EmailData struct {
	JobID         string
	Filename      string
	Total         int
	Success       int
	Errors        int
	SuccessRate   float64
	RowsPerSecond float64
	Duration      string
	Status        string
	Message       string
}

// CompletedSubject returns the subject of the completion email.
func CompletedSubject(jobID string) string {
	return "Import Completed - " + jobID
}

// FailedSubject returns the subject of the failure email.
func FailedSubject(jobID string) string {
	return "Import Failed - " + jobID
}

// RenderCompleted renders the completion email body for a finished job.
func RenderCompleted(job *model.Job, now time.Time) (string, error) {
	return render(completedTemplate, EmailData{
		JobID:         job.ID,
		Filename:      job.Filename,
		Total:         job.Total,
		Success:       job.Success,
		Errors:        job.Errors,
		SuccessRate:   job.SuccessRate(),
		RowsPerSecond: job.RowsPerSecond(now),
		Duration:      model.FormatDuration(job.Duration(now)),
		Status:        job.Status.Description(),
	})
}

// RenderFailed renders the failure email body. message is escaped.
func RenderFailed(jobID, message string) (string, error) {
	return render(failedTemplate, EmailData{JobID: jobID, Message: message})
}

func render(t *template.Template, data EmailData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s email: %w", t.Name(), err)
	}
	return buf.String(), nil
}
