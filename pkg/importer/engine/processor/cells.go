package processor

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	model "github.com/tigerroll/payroll-import/pkg/importer/core/domain/model"
)

// excelEpoch is day 0 of the 1900 date system as used by spreadsheet serials.
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

var dateLayouts = []string{"2006-01-02", "01-02-06", "2006-01-02T15:04:05Z07:00", "2006/01/02"}

// ParseMoneyCell parses a currency cell. A blank cell is zero.
func ParseMoneyCell(raw string) (model.Money, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	return model.ParseMoney(raw)
}

// ParseDateCell accepts ISO dates, the spreadsheet default short date and serial day numbers.
func ParseDateCell(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	serial, err := strconv.ParseFloat(s, 64)
	if err != nil || serial < 1 || serial > 2958465 {
		return time.Time{}, fmt.Errorf("unrecognised date %q", raw)
	}
	return excelEpoch.AddDate(0, 0, int(math.Floor(serial))), nil
}
