package caserow

import (
	"time"
)

const (
	CategoryTax     = "TAX"
	CategoryLicense = "LICENSE"
	CategoryPermit  = "PERMIT"
)

const (
	PriorityLow    = "LOW"
	PriorityMedium = "MEDIUM"
	PriorityHigh   = "HIGH"
)

const (
	StatusNew    = "NEW"
	StatusOpen   = "OPEN"
	StatusClosed = "CLOSED"
)

const DateLayout = "2006-01-02"

var (
	// MinDOB is the lower bound for accepted birth dates.
	MinDOB = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)
)

// RawRow is a single record as it came out of the uploaded file: the original
// row number (1-based, header excluded) and cell values keyed by source header.
type RawRow struct {
	RowNumber int               `json:"rowNumber"`
	Cells     map[string]string `json:"cells"`
}

// Row is a normalized record keyed by canonical field. Values are cleaned
// strings; DOB is in DateLayout once normalization succeeds.
type Row struct {
	RowNumber     int    `json:"rowNumber"`
	CaseKey       string `json:"caseId"`
	ApplicantName string `json:"applicantName"`
	DOB           string `json:"dob"`
	Email         string `json:"email,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Category      string `json:"category"`
	Priority      string `json:"priority"`
	Status        string `json:"status"`
}

// FieldError describes one validation failure on one field of one row.
type FieldError struct {
	RowNumber int    `json:"rowNumber"`
	Field     string `json:"field"`
	Message   string `json:"message"`
}

func ValidCategory(v string) bool {
	switch v {
	case CategoryTax, CategoryLicense, CategoryPermit:
		return true
	}
	return false
}

func ValidPriority(v string) bool {
	switch v {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}
