package domain

import (
	"strconv"
	"strings"
	"unicode"
)

const MaxRequestedOutputs = 8

var supportedFormats = map[string]bool{
	"svf":       true,
	"svf2":      true,
	"thumbnail": true,
	"obj":       true,
	"stl":       true,
	"step":      true,
	"iges":      true,
	"ifc":       true,
	"dwg":       true,
}

var supportedViews = map[string]bool{
	"2d": true,
	"3d": true,
}

// ValidateSourceReference checks that ref looks like an object URN the
// vendor can resolve. The URN itself stays opaque.
func ValidateSourceReference(ref string) error {
	if strings.TrimSpace(ref) == "" {
		return &ValidationError{Field: "sourceReference", Reason: "must not be empty"}
	}
	if ref != strings.TrimSpace(ref) {
		return &ValidationError{Field: "sourceReference", Reason: "must not have surrounding whitespace"}
	}
	if !strings.HasPrefix(ref, "urn:") || len(ref) == len("urn:") {
		return &ValidationError{Field: "sourceReference", Reason: "must be a urn"}
	}
	if len(ref) > 1024 {
		return &ValidationError{Field: "sourceReference", Reason: "too long"}
	}
	for _, r := range ref {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return &ValidationError{Field: "sourceReference", Reason: "contains whitespace or control characters"}
		}
	}
	return nil
}

// ValidateOutputs checks the requested derivative formats. The order is
// preserved; duplicate formats are rejected.
func ValidateOutputs(outputs []OutputFormat) error {
	if len(outputs) == 0 {
		return &ValidationError{Field: "requestedOutputs", Reason: "must not be empty"}
	}
	if len(outputs) > MaxRequestedOutputs {
		return &ValidationError{Field: "requestedOutputs", Reason: "too many outputs"}
	}
	seen := make(map[string]bool, len(outputs))
	for _, o := range outputs {
		format := strings.ToLower(o.Format)
		if !supportedFormats[format] {
			return &ValidationError{Field: "requestedOutputs", Reason: "unsupported format " + strconv.Quote(o.Format)}
		}
		if seen[format] {
			return &ValidationError{Field: "requestedOutputs", Reason: "duplicate format " + strconv.Quote(o.Format)}
		}
		seen[format] = true
		for _, v := range o.Views {
			if !supportedViews[strings.ToLower(v)] {
				return &ValidationError{Field: "requestedOutputs", Reason: "unsupported view " + strconv.Quote(v)}
			}
		}
	}
	return nil
}

// NormalizeOutputs lower-cases formats and views.
func NormalizeOutputs(outputs []OutputFormat) []OutputFormat {
	ret := make([]OutputFormat, len(outputs))
	for i, o := range outputs {
		ret[i].Format = strings.ToLower(o.Format)
		for _, v := range o.Views {
			ret[i].Views = append(ret[i].Views, strings.ToLower(v))
		}
	}
	return ret
}
