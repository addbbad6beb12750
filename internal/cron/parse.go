package cron

import (
	"fmt"
	"strconv"
	"strings"
)

// FieldName identifies which of the five descriptor fields a
// ParseError refers to.
type FieldName string

const (
	FieldMinute     FieldName = "minute"
	FieldHour       FieldName = "hour"
	FieldDayOfMonth FieldName = "day_of_month"
	FieldMonth      FieldName = "month"
	FieldDayOfWeek  FieldName = "day_of_week"
)

// ParseError reports why a descriptor failed to parse. Per spec.md
// §4.1 and §8, parse never returns a partially-initialized Entry
// alongside a ParseError.
type ParseError struct {
	Field  FieldName
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cron: field %s: %s", e.Field, e.Reason)
}

const (
	reasonStarWithNumeric = "star_with_numeric"
	reasonOutOfDomain     = "value_out_of_domain"
	reasonBadStep         = "invalid_step"
	reasonBadRange        = "invalid_range"
	reasonBadTerm         = "unparseable_term"
	reasonWrongFieldCount = "wrong_field_count"
)

type fieldDomain struct {
	name     FieldName
	min, max int
}

var domains = []fieldDomain{
	{FieldMinute, 0, 59},
	{FieldHour, 0, 23},
	{FieldDayOfMonth, 1, 31},
	{FieldMonth, 1, 12},
	{FieldDayOfWeek, 1, 7},
}

// Parse parses a five-field whitespace-separated AFD time descriptor
// into an Entry. On any syntactic or domain error it returns a non-nil
// *ParseError and a zero Entry (spec.md §4.1, §8).
func Parse(text string) (Entry, error) {
	fields := strings.Fields(text)
	if len(fields) != 5 {
		return Entry{}, &ParseError{Field: FieldMinute, Reason: reasonWrongFieldCount}
	}

	var e Entry

	minuteBits, continuous, warn, err := parseMinuteField(fields[0])
	if err != nil {
		return Entry{}, err
	}
	e.Minute = minuteBits
	e.ContinuousMinute = continuous
	e.Warnings = append(e.Warnings, warn...)

	hourBits, warn, err := parseField32(fields[1], domains[1])
	if err != nil {
		return Entry{}, err
	}
	e.Hour = hourBits
	e.Warnings = append(e.Warnings, warn...)

	domBits, warn, err := parseField32(fields[2], domains[2])
	if err != nil {
		return Entry{}, err
	}
	e.DayOfMonth = domBits
	e.Warnings = append(e.Warnings, warn...)

	monthBits16, warn, err := parseField16(fields[3], domains[3])
	if err != nil {
		return Entry{}, err
	}
	e.Month = monthBits16
	e.Warnings = append(e.Warnings, warn...)

	dowBits, warn, err := parseField8(fields[4], domains[4])
	if err != nil {
		return Entry{}, err
	}
	e.DayOfWeek = dowBits
	e.Warnings = append(e.Warnings, warn...)

	return e, nil
}

// term is one comma-separated piece of a field: "*", a single value, a
// "lo-hi" range, or either with a "/step" suffix.
type term struct {
	isStar   bool
	lo, hi   int
	hasRange bool
	step     int // 0 means "no explicit step" (equivalent to step=1)
}

func splitTerms(field string) []string {
	return strings.Split(field, ",")
}

// parseTerm parses one comma-separated term. domain is used only to
// default a bare "*/step" term's range to the full domain.
func parseTerm(raw string, domain fieldDomain) (term, error) {
	var t term
	body := raw
	if idx := strings.IndexByte(raw, '/'); idx >= 0 {
		body = raw[:idx]
		stepStr := raw[idx+1:]
		step, err := strconv.Atoi(stepStr)
		if err != nil || step < 1 {
			return term{}, &ParseError{Field: domain.name, Reason: reasonBadStep}
		}
		t.step = step
	}

	switch {
	case body == "*":
		t.isStar = true
		t.lo, t.hi = domain.min, domain.max
	case strings.Contains(body, "-"):
		parts := strings.SplitN(body, "-", 2)
		if len(parts) != 2 {
			return term{}, &ParseError{Field: domain.name, Reason: reasonBadRange}
		}
		lo, err1 := strconv.Atoi(parts[0])
		hi, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil || lo > hi {
			return term{}, &ParseError{Field: domain.name, Reason: reasonBadRange}
		}
		t.lo, t.hi = lo, hi
		t.hasRange = true
	default:
		v, err := strconv.Atoi(body)
		if err != nil {
			return term{}, &ParseError{Field: domain.name, Reason: reasonBadTerm}
		}
		t.lo, t.hi = v, v
	}

	if t.lo < domain.min || t.hi > domain.max {
		return term{}, &ParseError{Field: domain.name, Reason: reasonOutOfDomain}
	}
	if t.step > 0 {
		cardinality := domain.max - domain.min + 1
		if t.step > cardinality {
			return term{}, &ParseError{Field: domain.name, Reason: reasonBadStep}
		}
	}
	return t, nil
}

// validateStarCombination enforces spec.md §4.1: "* cannot be combined
// with numeric terms in the same field."
func validateStarCombination(terms []term, domain fieldDomain) error {
	if len(terms) < 2 {
		return nil
	}
	hasStar := false
	hasNumeric := false
	for _, t := range terms {
		if t.isStar {
			hasStar = true
		} else {
			hasNumeric = true
		}
	}
	if hasStar && hasNumeric {
		return &ParseError{Field: domain.name, Reason: reasonStarWithNumeric}
	}
	return nil
}

// warnIfStepAfterNonStar implements the preserved-but-warned behavior
// from spec.md §9: "/step" is only unambiguously meaningful on the
// first term of a field; applying it to a later, non-"*" term is
// accepted (matching the source) but flagged.
func warnIfStepAfterNonStar(rawTerms []string, domain fieldDomain) []string {
	var warnings []string
	for i, raw := range rawTerms {
		if i == 0 {
			continue
		}
		if !strings.Contains(raw, "/") {
			continue
		}
		body := raw
		if idx := strings.IndexByte(raw, '/'); idx >= 0 {
			body = raw[:idx]
		}
		if body != "*" {
			warnings = append(warnings, fmt.Sprintf(
				"field %s: '/step' applied to non-leading, non-'*' term %q; behavior preserved from source but may be unintended",
				domain.name, raw))
		}
	}
	return warnings
}

func parseMinuteField(field string) (bits bitset64, continuous bitset64, warnings []string, err error) {
	rawTerms := splitTerms(field)
	domain := domains[0]
	warnings = warnIfStepAfterNonStar(rawTerms, domain)

	var terms []term
	for _, raw := range rawTerms {
		t, perr := parseTerm(raw, domain)
		if perr != nil {
			return 0, 0, nil, perr
		}
		terms = append(terms, t)
	}
	if verr := validateStarCombination(terms, domain); verr != nil {
		return 0, 0, nil, verr
	}

	for _, t := range terms {
		step := t.step
		if step == 0 {
			step = 1
		}
		if t.isStar && step == 1 {
			for v := t.lo; v <= t.hi; v++ {
				continuous.set(v)
			}
			continue
		}
		for v := t.lo; v <= t.hi; v += step {
			bits.set(v)
		}
	}
	return bits, continuous, warnings, nil
}

func parseField32(field string, domain fieldDomain) (bitset32, []string, error) {
	rawTerms := splitTerms(field)
	warnings := warnIfStepAfterNonStar(rawTerms, domain)

	var terms []term
	for _, raw := range rawTerms {
		t, err := parseTerm(raw, domain)
		if err != nil {
			return 0, nil, err
		}
		terms = append(terms, t)
	}
	if err := validateStarCombination(terms, domain); err != nil {
		return 0, nil, err
	}

	var bits bitset32
	for _, t := range terms {
		step := t.step
		if step == 0 {
			step = 1
		}
		for v := t.lo; v <= t.hi; v += step {
			bits.set(v)
		}
	}
	return bits, warnings, nil
}

func parseField16(field string, domain fieldDomain) (bitset16, []string, error) {
	b32, warnings, err := parseField32(field, domain)
	if err != nil {
		return 0, nil, err
	}
	return bitset16(b32), warnings, nil
}

func parseField8(field string, domain fieldDomain) (bitset8, []string, error) {
	b32, warnings, err := parseField32(field, domain)
	if err != nil {
		return 0, nil, err
	}
	return bitset8(b32), warnings, nil
}
