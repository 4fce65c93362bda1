// Package domain contains core business entities and types for the radiology
// findings extraction pipeline: ingested reports, matched report pairs,
// persisted finding records and the enumerations shared across layers.
package domain

import "strings"

// YesNo is the string-typed boolean used by the extraction oracle and the
// persisted representation. Logic that branches on these values should go
// through Bool instead of comparing strings.
type YesNo string

const (
	YesNoYes YesNo = "Yes"
	YesNoNo  YesNo = "No"

	// YesNoNone is the fallback sentinel stored when extraction failed and
	// produced no usable answer.
	YesNoNone YesNo = "None"
)

// Bool reports whether the value affirms, comparing case-insensitively and
// ignoring surrounding whitespace.
func (y YesNo) Bool() bool {
	return strings.EqualFold(strings.TrimSpace(string(y)), string(YesNoYes))
}

// IsValid reports whether the value is one of the closed set accepted from
// the oracle boundary.
func (y YesNo) IsValid() bool {
	switch y {
	case YesNoYes, YesNoNo, YesNoNone:
		return true
	default:
		return false
	}
}

// RiskLevel is the three-tier severity classification computed locally from
// the extracted findings. It is never taken verbatim from the oracle.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// IsValid reports whether the risk level is one of the known tiers.
func (r RiskLevel) IsValid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	default:
		return false
	}
}
