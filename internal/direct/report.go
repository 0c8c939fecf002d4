package direct

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateRangeType is the reporting period. Only CUSTOM_DATE uses the request's
// DateFrom and DateTo.
type DateRangeType string

const (
	DateRangeToday            DateRangeType = "TODAY"
	DateRangeYesterday        DateRangeType = "YESTERDAY"
	DateRangeLast3Days        DateRangeType = "LAST_3_DAYS"
	DateRangeLast5Days        DateRangeType = "LAST_5_DAYS"
	DateRangeLast7Days        DateRangeType = "LAST_7_DAYS"
	DateRangeLast14Days       DateRangeType = "LAST_14_DAYS"
	DateRangeLast30Days       DateRangeType = "LAST_30_DAYS"
	DateRangeLast90Days       DateRangeType = "LAST_90_DAYS"
	DateRangeLast365Days      DateRangeType = "LAST_365_DAYS"
	DateRangeThisWeekMonToday DateRangeType = "THIS_WEEK_MON_TODAY"
	DateRangeThisWeekSunToday DateRangeType = "THIS_WEEK_SUN_TODAY"
	DateRangeLastWeek         DateRangeType = "LAST_WEEK"
	DateRangeLastBusinessWeek DateRangeType = "LAST_BUSINESS_WEEK"
	DateRangeLastWeekSunSat   DateRangeType = "LAST_WEEK_SUN_SAT"
	DateRangeThisMonth        DateRangeType = "THIS_MONTH"
	DateRangeLastMonth        DateRangeType = "LAST_MONTH"
	DateRangeAllTime          DateRangeType = "ALL_TIME"
	DateRangeAuto             DateRangeType = "AUTO"
	DateRangeCustom           DateRangeType = "CUSTOM_DATE"
)

const (
	defaultReportName = "Report1"
	reportFormat      = "TSV"
)

// today returns the current local date. Overridden in tests.
var today = func() string {
	return time.Now().Format(time.DateOnly)
}

// ReportRequest describes one report job. The request body is derived from
// it deterministically, so the same value always resubmits the same job.
type ReportRequest struct {
	ReportType    string
	FieldNames    []string
	DateRangeType DateRangeType
	// DateFrom and DateTo are YYYY-MM-DD and only used with DateRangeCustom.
	DateFrom   string
	DateTo     string
	IncludeVAT bool
	ReportName string
}

// NewReportRequest returns a CUSTOM_DATE request covering the current date,
// with VAT included.
func NewReportRequest(reportType string, fieldNames ...string) ReportRequest {
	date := today()
	return ReportRequest{
		ReportType:    reportType,
		FieldNames:    fieldNames,
		DateRangeType: DateRangeCustom,
		DateFrom:      date,
		DateTo:        date,
		IncludeVAT:    true,
		ReportName:    defaultReportName,
	}
}

// Validate checks the request locally so that obviously broken requests
// never reach the network.
func (r ReportRequest) Validate() error {
	if strings.TrimSpace(r.ReportType) == "" {
		return fmt.Errorf("%w: report type is required", ErrValidation)
	}
	if len(r.FieldNames) == 0 {
		return fmt.Errorf("%w: at least one field name is required", ErrValidation)
	}
	for i, name := range r.FieldNames {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: field name #%d is empty", ErrValidation, i)
		}
	}
	if r.DateRangeType == "" {
		return fmt.Errorf("%w: date range type is required", ErrValidation)
	}
	if r.DateRangeType != DateRangeCustom {
		return nil
	}

	from, err := time.Parse(time.DateOnly, r.DateFrom)
	if err != nil {
		return fmt.Errorf("%w: invalid date from %q", ErrValidation, r.DateFrom)
	}
	to, err := time.Parse(time.DateOnly, r.DateTo)
	if err != nil {
		return fmt.Errorf("%w: invalid date to %q", ErrValidation, r.DateTo)
	}
	if from.After(to) {
		return fmt.Errorf("%w: date from %s is after date to %s", ErrValidation, r.DateFrom, r.DateTo)
	}
	return nil
}

type reportBody struct {
	Params reportParams `json:"params"`
}

type reportParams struct {
	FieldNames        []string          `json:"FieldNames"`
	ReportName        string            `json:"ReportName"`
	ReportType        string            `json:"ReportType"`
	DateRangeType     DateRangeType     `json:"DateRangeType"`
	Format            string            `json:"Format"`
	IncludeVAT        string            `json:"IncludeVAT"`
	IncludeDiscount   string            `json:"IncludeDiscount"`
	SelectionCriteria selectionCriteria `json:"SelectionCriteria"`
}

type selectionCriteria struct {
	DateFrom string `json:"DateFrom,omitempty"`
	DateTo   string `json:"DateTo,omitempty"`
}

// encode builds the UTF-8 JSON body of the report job.
func (r ReportRequest) encode() ([]byte, error) {
	name := r.ReportName
	if name == "" {
		name = defaultReportName
	}

	params := reportParams{
		FieldNames:      r.FieldNames,
		ReportName:      name,
		ReportType:      r.ReportType,
		DateRangeType:   r.DateRangeType,
		Format:          reportFormat,
		IncludeVAT:      yesNo(r.IncludeVAT),
		IncludeDiscount: yesNo(false),
	}
	if r.DateRangeType == DateRangeCustom {
		params.SelectionCriteria = selectionCriteria{
			DateFrom: r.DateFrom,
			DateTo:   r.DateTo,
		}
	}

	return marshalJSON(reportBody{Params: params})
}

func yesNo(b bool) string {
	if b {
		return "YES"
	}
	return "NO"
}

// marshalJSON encodes v without HTML escaping so that non-ASCII and markup
// characters reach the API as-is.
func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
