// Package pii walks request parameters and masks sensitive fields before
// they reach the audit log or a non-ALLOW response payload. Grounded on the
// teacher's action.ResponseScanner: a pre-compiled regexp table scanning
// JSON leaves recursively, generalized from detect-only to detect-and-mask.
package pii

import (
	"regexp"
	"strconv"
	"strings"
)

// EntityType names the kind of sensitive data a Finding identifies.
type EntityType string

const (
	EntitySSN        EntityType = "SSN"
	EntityCreditCard EntityType = "CREDIT_CARD"
	EntityEmail      EntityType = "EMAIL"
	EntityPhone      EntityType = "PHONE"
	EntityIPAddress  EntityType = "IP_ADDRESS"
)

// Finding records one masked span, per spec.md §3's PII Finding data model:
// entity_type, a dotted path locating the field within parameters, and the
// start/end offsets of the match within that field's original string value.
type Finding struct {
	EntityType    EntityType `json:"entity_type"`
	Path          string     `json:"path"`
	Start         int        `json:"start"`
	End           int        `json:"end"`
	LowConfidence bool       `json:"low_confidence,omitempty"`
}

type detector struct {
	entityType EntityType
	re         *regexp.Regexp
	// validate, when non-nil, additionally filters regex matches (e.g. Luhn
	// checksum for credit cards) so a match must pass both the shape check
	// and the checksum to count. Skipped entirely in degraded mode.
	validate func(match string) bool
}

// Sanitizer masks PII in request parameters. All patterns are compiled once
// at construction, the same discipline as the teacher's ResponseScanner.
type Sanitizer struct {
	detectors []detector
}

// New constructs a Sanitizer with the required detector set from spec.md
// §4.4: SSN, email, phone, IPv4/IPv6, and Luhn-validated credit card.
func New() *Sanitizer {
	return &Sanitizer{
		detectors: []detector{
			{
				entityType: EntitySSN,
				re:         regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
			},
			{
				entityType: EntityEmail,
				re:         regexp.MustCompile(`\b[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}\b`),
			},
			{
				entityType: EntityPhone,
				re:         regexp.MustCompile(`\b(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]\d{3}[-.\s]\d{4}\b`),
			},
			{
				entityType: EntityIPAddress,
				re:         regexp.MustCompile(`\b(?:(?:[0-9]{1,3}\.){3}[0-9]{1,3}|[0-9a-fA-F:]{2,39}:[0-9a-fA-F:]+)\b`),
			},
			{
				entityType: EntityCreditCard,
				re:         regexp.MustCompile(`\b(?:\d[ -]?){13,19}\b`),
				validate:   luhnValid,
			},
		},
	}
}

// Sanitize walks params recursively, masking every string leaf, and returns
// a deep copy with sensitive spans replaced by "<ENTITY_TYPE>" along with
// the findings produced. Numeric and boolean leaves pass through unchanged.
// degraded, when true, skips the Luhn checksum (cheaper per digit run) and
// flags every surviving credit-card-shaped match as low_confidence,
// matching spec.md §7's SanitizerDegraded fallback.
func (s *Sanitizer) Sanitize(params map[string]interface{}, degraded bool) (map[string]interface{}, []Finding) {
	if params == nil {
		return map[string]interface{}{}, nil
	}

	var findings []Finding
	out := s.sanitizeValue("", params, &findings, degraded)
	return out.(map[string]interface{}), findings
}

func (s *Sanitizer) sanitizeValue(path string, v interface{}, findings *[]Finding, degraded bool) interface{} {
	switch val := v.(type) {
	case string:
		return s.sanitizeString(path, val, findings, degraded)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, inner := range val {
			out[k] = s.sanitizeValue(joinPath(path, k), inner, findings, degraded)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, inner := range val {
			out[i] = s.sanitizeValue(joinPath(path, strconv.Itoa(i)), inner, findings, degraded)
		}
		return out
	default:
		// Numbers, bools, nil pass through unchanged.
		return v
	}
}

// joinPath appends key to parent with a dot separator, per spec.md §3's
// "dotted field locator into parameters" Finding.path definition. Array
// indices join the same way (e.g. "tags.1"), since parameters has no
// separate list-index syntax to borrow.
func joinPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}

// sanitizeString applies every detector in turn, each over the text as left
// by the previous detector's replacements. Start/End are offsets within the
// text as seen by that detector's own pass, not necessarily the original
// leaf value, when an earlier detector already masked part of the same
// string.
func (s *Sanitizer) sanitizeString(path, text string, findings *[]Finding, degraded bool) string {
	for _, d := range s.detectors {
		locs := d.re.FindAllStringIndex(text, -1)
		if len(locs) == 0 {
			continue
		}

		var b strings.Builder
		last := 0
		for _, loc := range locs {
			start, end := loc[0], loc[1]
			match := text[start:end]
			if d.validate != nil && !degraded && !d.validate(match) {
				continue
			}
			lowConfidence := degraded && d.validate != nil
			b.WriteString(text[last:start])
			b.WriteString("<" + string(d.entityType) + ">")
			*findings = append(*findings, Finding{
				EntityType:    d.entityType,
				Path:          path,
				Start:         start,
				End:           end,
				LowConfidence: lowConfidence,
			})
			last = end
		}
		b.WriteString(text[last:])
		text = b.String()
	}
	return text
}

// luhnValid reports whether digits (optionally separated by spaces or
// hyphens) pass the Luhn checksum, avoiding false positives on arbitrary
// 13-19 digit numbers that happen to look like a card number.
func luhnValid(s string) bool {
	var digits []int
	for _, r := range s {
		if r == ' ' || r == '-' {
			continue
		}
		n, err := strconv.Atoi(string(r))
		if err != nil {
			return false
		}
		digits = append(digits, n)
	}
	if len(digits) < 13 {
		return false
	}

	sum := 0
	alt := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := digits[i]
		if alt {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		alt = !alt
	}
	return sum%10 == 0
}
