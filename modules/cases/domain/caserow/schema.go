package caserow

import (
	"strings"
)

// Field keys shared between the mapper, validator and error reports.
const (
	FieldCaseKey       = "caseId"
	FieldApplicantName = "applicantName"
	FieldDOB           = "dob"
	FieldEmail         = "email"
	FieldPhone         = "phone"
	FieldCategory      = "category"
	FieldPriority      = "priority"
	FieldStatus        = "status"
)

// Field describes one canonical column of the import schema.
type Field struct {
	Key      string
	Label    string
	Required bool
	// Hints are normalized header fragments that suggest this field.
	Hints []string
}

// Schema lists the canonical fields in report order.
var Schema = []Field{
	{Key: FieldCaseKey, Label: "Case ID", Required: true, Hints: []string{"caseid", "caseno", "casenumber", "casenum", "id"}},
	{Key: FieldApplicantName, Label: "Applicant Name", Required: true, Hints: []string{"applicantname", "applicant", "fullname", "name"}},
	{Key: FieldDOB, Label: "Date of Birth", Required: true, Hints: []string{"dob", "dateofbirth", "birthdate", "birth"}},
	{Key: FieldEmail, Label: "Email", Hints: []string{"email", "emailaddress", "mail"}},
	{Key: FieldPhone, Label: "Phone", Hints: []string{"phone", "phonenumber", "mobile", "contact"}},
	{Key: FieldCategory, Label: "Category", Required: true, Hints: []string{"category", "casetype", "type"}},
	{Key: FieldPriority, Label: "Priority", Hints: []string{"priority", "urgency"}},
	{Key: FieldStatus, Label: "Status", Hints: []string{"status", "state"}},
}

func FieldByKey(key string) (Field, bool) {
	for _, f := range Schema {
		if f.Key == key {
			return f, true
		}
	}
	return Field{}, false
}

func RequiredFields() []string {
	keys := make([]string, 0, len(Schema))
	for _, f := range Schema {
		if f.Required {
			keys = append(keys, f.Key)
		}
	}
	return keys
}

// normalizeHeader lowers a header and strips everything but letters and digits,
// so "Case ID", "case_id" and "CASE-ID" all compare equal.
func normalizeHeader(h string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(h)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SuggestMapping proposes a source-header to canonical-field mapping. Exact
// hint matches win over substring matches, so "Customer Email" still lands
// on email when no header is named exactly that; every header maps to at
// most one field and every field takes at most one header.
func SuggestMapping(headers []string) map[string]string {
	mapping := make(map[string]string, len(headers))
	taken := make(map[string]bool, len(Schema))

	match := func(exact bool) {
		for _, header := range headers {
			if _, done := mapping[header]; done {
				continue
			}
			normalized := normalizeHeader(header)
			if normalized == "" {
				continue
			}
			for _, field := range Schema {
				if taken[field.Key] {
					continue
				}
				for _, hint := range field.Hints {
					ok := normalized == hint
					if !exact {
						ok = strings.Contains(normalized, hint)
					}
					if ok {
						mapping[header] = field.Key
						taken[field.Key] = true
						break
					}
				}
				if taken[field.Key] && mapping[header] == field.Key {
					break
				}
			}
		}
	}

	match(true)
	match(false)
	return mapping
}

// MissingRequired returns canonical fields that the mapping never targets.
func MissingRequired(mapping map[string]string) []string {
	mapped := make(map[string]bool, len(mapping))
	for _, key := range mapping {
		mapped[key] = true
	}
	var missing []string
	for _, key := range RequiredFields() {
		if !mapped[key] {
			missing = append(missing, key)
		}
	}
	return missing
}
