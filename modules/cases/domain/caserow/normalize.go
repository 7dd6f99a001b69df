package caserow

import (
	"regexp"
	"strings"
	"time"

	"github.com/nyaruka/phonenumbers"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	titleCaser    = cases.Title(language.English)
	spaceRe       = regexp.MustCompile(`\s+`)
	phoneStripRe  = regexp.MustCompile(`[\s\-().]`)
	phoneDigitsRe = regexp.MustCompile(`\D`)
	e164Re        = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)
)

// Accepted input layouts for birth dates, tried in order.
var dateLayouts = []string{
	DateLayout,
	"2006/01/02",
	"02-01-2006",
	"02/01/2006",
	"01/02/2006",
	"Jan 2, 2006",
	"2 Jan 2006",
	time.RFC3339,
}

// NormalizeRow projects a raw record through the header mapping and cleans
// each canonical field. Missing priority and status fall back to their
// defaults; nothing here rejects a row, that is the validator's job.
func NormalizeRow(raw RawRow, mapping map[string]string) Row {
	values := make(map[string]string, len(Schema))
	for header, key := range mapping {
		if cell, ok := raw.Cells[header]; ok {
			values[key] = strings.TrimSpace(cell)
		}
	}

	return Clean(Row{
		RowNumber:     raw.RowNumber,
		CaseKey:       values[FieldCaseKey],
		ApplicantName: values[FieldApplicantName],
		DOB:           values[FieldDOB],
		Email:         values[FieldEmail],
		Phone:         values[FieldPhone],
		Category:      values[FieldCategory],
		Priority:      values[FieldPriority],
		Status:        values[FieldStatus],
	})
}

// Clean normalizes every field of an already mapped row. It is idempotent,
// so it can rerun on rows the client cleaned before submitting.
func Clean(row Row) Row {
	row.CaseKey = strings.TrimSpace(row.CaseKey)
	row.ApplicantName = TitleCaseName(row.ApplicantName)
	row.DOB = NormalizeDate(row.DOB)
	row.Email = strings.ToLower(strings.TrimSpace(row.Email))
	row.Phone = NormalizePhone(row.Phone)
	row.Category = strings.ToUpper(strings.TrimSpace(row.Category))
	row.Priority = strings.ToUpper(strings.TrimSpace(row.Priority))
	row.Status = strings.ToUpper(strings.TrimSpace(row.Status))
	if row.Priority == "" {
		row.Priority = PriorityLow
	}
	if row.Status == "" {
		row.Status = StatusNew
	}
	return row
}

// TitleCaseName collapses inner whitespace and title-cases each word.
func TitleCaseName(name string) string {
	name = spaceRe.ReplaceAllString(strings.TrimSpace(name), " ")
	if name == "" {
		return ""
	}
	return titleCaser.String(strings.ToLower(name))
}

// NormalizeDate converts any accepted layout to DateLayout. Unparseable
// input is returned unchanged so the validator can report it.
func NormalizeDate(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format(DateLayout)
		}
	}
	return value
}

// NormalizePhone tries to coerce messy input into an E.164 number. Separator
// characters are stripped first; numbers without a country code are tried
// with the bare digits and the common default country codes. Only a candidate
// the phone library accepts as a valid number wins; when nothing validates
// the phone is left blank, since the field is optional.
func NormalizePhone(value string) string {
	cleaned := phoneStripRe.ReplaceAllString(strings.TrimSpace(value), "")
	if cleaned == "" {
		return ""
	}

	var candidates []string
	if strings.HasPrefix(cleaned, "+") {
		candidates = []string{"+" + phoneDigitsRe.ReplaceAllString(cleaned, "")}
	} else if digits := phoneDigitsRe.ReplaceAllString(cleaned, ""); digits != "" {
		candidates = []string{"+" + digits, "+91" + digits, "+1" + digits}
	}

	for _, candidate := range candidates {
		num, err := phonenumbers.Parse(candidate, "")
		if err != nil {
			continue
		}
		if phonenumbers.IsValidNumber(num) {
			return phonenumbers.Format(num, phonenumbers.E164)
		}
	}
	return ""
}
