package policy

import (
	"fmt"
	"strings"
	"time"
)

// HourRange is a half-open [Start, End) UTC hour window used by BlockedHours.
type HourRange struct {
	Start int `json:"start" validate:"gte=0,lte=23"`
	End   int `json:"end" validate:"gte=0,lte=24"`
}

// Contains reports whether hour (0-23) falls inside the half-open range.
func (h HourRange) Contains(hour int) bool {
	if h.Start <= h.End {
		return hour >= h.Start && hour < h.End
	}
	// Wrapping window, e.g. 22-6.
	return hour >= h.Start || hour < h.End
}

// Conditions is the tagged-variant predicate a Rule evaluates against a
// request. Exactly the recognized keys from spec.md §4.3 are modeled as
// typed, optional fields; anything else a caller tries to set must go
// through DecodeConditions, which rejects unknown keys outright rather than
// silently ignoring them.
type Conditions struct {
	MaxAmount           *float64   `json:"max_amount,omitempty"`
	MinAmount           *float64   `json:"min_amount,omitempty"`
	ProtectedResources  []string   `json:"protected_resources,omitempty"`
	ProtectedTables     []string   `json:"protected_tables,omitempty"`
	MaxAffectedRows     *float64   `json:"max_affected_rows,omitempty"`
	RequiresFields      []string   `json:"requires_fields,omitempty"`
	BlockedDays         []string   `json:"blocked_days,omitempty"`
	BlockedHours        *HourRange `json:"blocked_hours,omitempty"`
}

// recognizedConditionKeys lists every condition key DecodeConditions accepts.
var recognizedConditionKeys = map[string]struct{}{
	"max_amount":          {},
	"min_amount":          {},
	"protected_resources": {},
	"protected_tables":    {},
	"max_affected_rows":   {},
	"requires_fields":     {},
	"blocked_days":        {},
	"blocked_hours":       {},
}

// UnknownConditionKeyError is returned by DecodeConditions when the raw
// mapping contains a key outside the recognized vocabulary. Per spec.md
// §4.3 this is fail-safe, not fail-open: the rule is rejected at save time
// rather than silently treated as always-non-matching.
type UnknownConditionKeyError struct {
	Key string
}

func (e *UnknownConditionKeyError) Error() string {
	return fmt.Sprintf("policy: unknown condition key %q", e.Key)
}

// DecodeConditions validates a raw condition mapping (as received from the
// admin API or a policy-seed file) against the recognized vocabulary and
// decodes it into a Conditions value. It fails fast on any unrecognized key.
func DecodeConditions(raw map[string]interface{}) (Conditions, error) {
	var c Conditions
	for key := range raw {
		if _, ok := recognizedConditionKeys[key]; !ok {
			return Conditions{}, &UnknownConditionKeyError{Key: key}
		}
	}

	if v, ok := raw["max_amount"]; ok {
		f, err := toFloat(v)
		if err != nil {
			return Conditions{}, fmt.Errorf("max_amount: %w", err)
		}
		c.MaxAmount = &f
	}
	if v, ok := raw["min_amount"]; ok {
		f, err := toFloat(v)
		if err != nil {
			return Conditions{}, fmt.Errorf("min_amount: %w", err)
		}
		c.MinAmount = &f
	}
	if v, ok := raw["protected_resources"]; ok {
		s, err := toStringSlice(v)
		if err != nil {
			return Conditions{}, fmt.Errorf("protected_resources: %w", err)
		}
		c.ProtectedResources = s
	}
	if v, ok := raw["protected_tables"]; ok {
		s, err := toStringSlice(v)
		if err != nil {
			return Conditions{}, fmt.Errorf("protected_tables: %w", err)
		}
		c.ProtectedTables = s
	}
	if v, ok := raw["max_affected_rows"]; ok {
		f, err := toFloat(v)
		if err != nil {
			return Conditions{}, fmt.Errorf("max_affected_rows: %w", err)
		}
		c.MaxAffectedRows = &f
	}
	if v, ok := raw["requires_fields"]; ok {
		s, err := toStringSlice(v)
		if err != nil {
			return Conditions{}, fmt.Errorf("requires_fields: %w", err)
		}
		c.RequiresFields = s
	}
	if v, ok := raw["blocked_days"]; ok {
		s, err := toStringSlice(v)
		if err != nil {
			return Conditions{}, fmt.Errorf("blocked_days: %w", err)
		}
		c.BlockedDays = s
	}
	if v, ok := raw["blocked_hours"]; ok {
		hr, err := toHourRange(v)
		if err != nil {
			return Conditions{}, fmt.Errorf("blocked_hours: %w", err)
		}
		c.BlockedHours = hr
	}

	return c, nil
}

func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}

func toStringSlice(v interface{}) ([]string, error) {
	switch s := v.(type) {
	case []string:
		return s, nil
	case []interface{}:
		out := make([]string, 0, len(s))
		for _, item := range s {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected a list of strings, got element of type %T", item)
			}
			out = append(out, str)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a list of strings, got %T", v)
	}
}

func toHourRange(v interface{}) (*HourRange, error) {
	switch r := v.(type) {
	case []interface{}:
		if len(r) != 2 {
			return nil, fmt.Errorf("expected a [start,end) pair")
		}
		start, err := toFloat(r[0])
		if err != nil {
			return nil, err
		}
		end, err := toFloat(r[1])
		if err != nil {
			return nil, err
		}
		return &HourRange{Start: int(start), End: int(end)}, nil
	case map[string]interface{}:
		hr := HourRange{}
		if s, ok := r["start"]; ok {
			f, err := toFloat(s)
			if err != nil {
				return nil, err
			}
			hr.Start = int(f)
		}
		if e, ok := r["end"]; ok {
			f, err := toFloat(e)
			if err != nil {
				return nil, err
			}
			hr.End = int(f)
		}
		return &hr, nil
	default:
		return nil, fmt.Errorf("expected a [start,end) pair, got %T", v)
	}
}

// weekdayNames maps time.Weekday to the lowercase name used in BlockedDays.
var weekdayNames = map[time.Weekday]string{
	time.Sunday:    "sunday",
	time.Monday:    "monday",
	time.Tuesday:   "tuesday",
	time.Wednesday: "wednesday",
	time.Thursday:  "thursday",
	time.Friday:    "friday",
	time.Saturday:  "saturday",
}

// Match reports whether every condition key present in c evaluates true
// against the given request shape, per spec.md §4.3: a rule matches iff
// every declared condition key holds. An empty Conditions value always
// matches (the rule is gated purely by ActionTypes). Parameters takes the
// caller's already-unmarshaled JSON value map; a nil map is treated as
// empty, matching spec.md's "missing parameters treated as {}" rule.
func (c Conditions) Match(targetResource string, parameters map[string]interface{}, now time.Time) bool {
	if parameters == nil {
		parameters = map[string]interface{}{}
	}

	if c.MaxAmount != nil {
		amount, ok := numericField(parameters, "amount")
		if !ok || amount <= *c.MaxAmount {
			return false
		}
	}
	if c.MinAmount != nil {
		amount, ok := numericField(parameters, "amount")
		if !ok || amount >= *c.MinAmount {
			return false
		}
	}
	if len(c.ProtectedResources) > 0 {
		if !anyPathSegmentMatches(targetResource, c.ProtectedResources) {
			return false
		}
	}
	if len(c.ProtectedTables) > 0 {
		table, ok := parameters["table"].(string)
		if !ok || !containsString(c.ProtectedTables, table) {
			return false
		}
	}
	if c.MaxAffectedRows != nil {
		rows, ok := numericField(parameters, "affected_rows")
		if !ok || rows <= *c.MaxAffectedRows {
			return false
		}
	}
	if len(c.RequiresFields) > 0 {
		if !anyFieldAbsent(parameters, c.RequiresFields) {
			return false
		}
	}
	if len(c.BlockedDays) > 0 {
		day := weekdayNames[now.UTC().Weekday()]
		if !containsString(c.BlockedDays, day) {
			return false
		}
	}
	if c.BlockedHours != nil {
		if !c.BlockedHours.Contains(now.UTC().Hour()) {
			return false
		}
	}

	return true
}

func numericField(parameters map[string]interface{}, key string) (float64, bool) {
	v, ok := parameters[key]
	if !ok {
		return 0, false
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, false
	}
	return f, true
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// anyPathSegmentMatches reports whether targetResource contains any of
// resources as a "/"-delimited path segment.
func anyPathSegmentMatches(targetResource string, resources []string) bool {
	segments := strings.Split(targetResource, "/")
	for _, resource := range resources {
		for _, seg := range segments {
			if seg == resource {
				return true
			}
		}
	}
	return false
}

// anyFieldAbsent reports whether any of fields is missing from parameters.
func anyFieldAbsent(parameters map[string]interface{}, fields []string) bool {
	for _, f := range fields {
		if _, ok := parameters[f]; !ok {
			return true
		}
	}
	return false
}
