package caserow

import "strings"

// Fixer is a named, pure transformation targeting one field of a row.
// Fixers power the "fix it for me" flow: given a validation error, callers
// look up the fixers registered for the failing field and apply them.
type Fixer struct {
	Name        string
	Field       string
	Description string
	Apply       func(Row) Row
}

// Fixers is the built-in fixer library, in application order.
var Fixers = []Fixer{
	{
		Name:        "trim-case-id",
		Field:       FieldCaseKey,
		Description: "Remove surrounding whitespace from the case id",
		Apply: func(r Row) Row {
			r.CaseKey = strings.TrimSpace(r.CaseKey)
			return r
		},
	},
	{
		Name:        "title-case-name",
		Field:       FieldApplicantName,
		Description: "Collapse whitespace and title-case the applicant name",
		Apply: func(r Row) Row {
			r.ApplicantName = TitleCaseName(r.ApplicantName)
			return r
		},
	},
	{
		Name:        "normalize-dob",
		Field:       FieldDOB,
		Description: "Convert the birth date to YYYY-MM-DD",
		Apply: func(r Row) Row {
			r.DOB = NormalizeDate(r.DOB)
			return r
		},
	},
	{
		Name:        "lowercase-email",
		Field:       FieldEmail,
		Description: "Lowercase and trim the email address",
		Apply: func(r Row) Row {
			r.Email = strings.ToLower(strings.TrimSpace(r.Email))
			return r
		},
	},
	{
		Name:        "normalize-phone",
		Field:       FieldPhone,
		Description: "Strip separators and add a country code",
		Apply: func(r Row) Row {
			r.Phone = NormalizePhone(r.Phone)
			return r
		},
	},
	{
		Name:        "uppercase-category",
		Field:       FieldCategory,
		Description: "Uppercase the category value",
		Apply: func(r Row) Row {
			r.Category = strings.ToUpper(strings.TrimSpace(r.Category))
			return r
		},
	},
	{
		Name:        "default-priority",
		Field:       FieldPriority,
		Description: "Fall back to LOW when priority is missing or unknown",
		Apply: func(r Row) Row {
			r.Priority = strings.ToUpper(strings.TrimSpace(r.Priority))
			if !ValidPriority(r.Priority) {
				r.Priority = PriorityLow
			}
			return r
		},
	},
}

// FixersForField returns the fixers registered for a canonical field.
func FixersForField(field string) []Fixer {
	var out []Fixer
	for _, f := range Fixers {
		if f.Field == field {
			out = append(out, f)
		}
	}
	return out
}

// ApplyFixers runs the fixers for the given fields against the row.
// Unknown fields are ignored.
func ApplyFixers(row Row, fields ...string) Row {
	for _, field := range fields {
		for _, f := range FixersForField(field) {
			row = f.Apply(row)
		}
	}
	return row
}

// AutoFix applies every fixer whose field currently fails validation, then
// returns the fixed row. Fields that have no fixer are left alone.
func AutoFix(row Row, errs []FieldError) Row {
	seen := make(map[string]bool, len(errs))
	for _, e := range errs {
		if e.RowNumber != row.RowNumber || seen[e.Field] {
			continue
		}
		seen[e.Field] = true
		row = ApplyFixers(row, e.Field)
	}
	return row
}
