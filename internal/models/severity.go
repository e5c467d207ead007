package models

import "strings"

type Severity string

const (
	SeverityLow          Severity = "LOW"
	SeverityMedium       Severity = "MEDIUM"
	SeverityHigh         Severity = "HIGH"
	SeverityCritical     Severity = "CRITICAL"
	SeverityCatastrophic Severity = "CATASTROPHIC"
)

var severityRank = map[Severity]int{
	SeverityLow:          1,
	SeverityMedium:       2,
	SeverityHigh:         3,
	SeverityCritical:     4,
	SeverityCatastrophic: 5,
}

// Rank returns the ordinal position of the tier, 0 for unknown values.
func (s Severity) Rank() int {
	return severityRank[s]
}

func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// ParseSeverity normalizes a severity label. Unknown labels return
// SeverityLow and false.
func ParseSeverity(s string) (Severity, bool) {
	sev := Severity(strings.ToUpper(strings.TrimSpace(s)))
	if sev.Valid() {
		return sev, true
	}
	return SeverityLow, false
}
