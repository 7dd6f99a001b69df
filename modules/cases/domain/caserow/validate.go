package caserow

import (
	"fmt"
	"regexp"
	"time"
)

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// SeenKeys tracks case keys already observed in the current file so
// duplicates inside one upload are flagged before they hit the server.
type SeenKeys map[string]int

func NewSeenKeys() SeenKeys {
	return make(SeenKeys)
}

// Validate checks one normalized row against the field rules. When seen is
// non-nil the row's case key is recorded and repeats are reported as
// duplicates of the first occurrence.
func Validate(row Row, seen SeenKeys, now time.Time) []FieldError {
	var errs []FieldError
	fail := func(field, message string) {
		errs = append(errs, FieldError{RowNumber: row.RowNumber, Field: field, Message: message})
	}

	if row.CaseKey == "" {
		fail(FieldCaseKey, "caseId is required")
	} else if seen != nil {
		if first, dup := seen[row.CaseKey]; dup {
			fail(FieldCaseKey, fmt.Sprintf("duplicate caseId in file (first seen at row %d)", first))
		} else {
			seen[row.CaseKey] = row.RowNumber
		}
	}

	if row.ApplicantName == "" {
		fail(FieldApplicantName, "applicantName is required")
	}

	if row.DOB == "" {
		fail(FieldDOB, "dob is required")
	} else if dob, err := time.Parse(DateLayout, row.DOB); err != nil {
		fail(FieldDOB, "dob must be a valid date")
	} else if dob.Before(MinDOB) || dob.After(now) {
		fail(FieldDOB, "dob must be between 1900-01-01 and today")
	}

	if row.Email != "" && !emailRe.MatchString(row.Email) {
		fail(FieldEmail, "email must be a valid email address")
	}

	if row.Phone != "" && !e164Re.MatchString(row.Phone) {
		fail(FieldPhone, "phone must be in E.164 format")
	}

	if row.Category == "" {
		fail(FieldCategory, "category is required")
	} else if !ValidCategory(row.Category) {
		fail(FieldCategory, "category must be one of TAX, LICENSE, PERMIT")
	}

	if !ValidPriority(row.Priority) {
		fail(FieldPriority, "priority must be one of LOW, MEDIUM, HIGH")
	}

	return errs
}
