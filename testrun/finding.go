package testrun

import (
	"database/sql/driver"
	"encoding/json"
	"strings"
)

// Severity of a finding.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// IsValid checks if the severity is one of the four known levels.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// ParseSeverity normalizes s case-insensitively. Unknown values report false.
func ParseSeverity(s string) (Severity, bool) {
	sev := Severity(strings.ToUpper(strings.TrimSpace(s)))
	return sev, sev.IsValid()
}

// Finding is a reported vulnerability. Title is the dedup key within a run.
type Finding struct {
	Severity    Severity `json:"severity"`
	Type        string   `json:"type"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
}

// Detail renders the finding as event detail.
func (f Finding) Detail() Detail {
	return Detail{
		"severity":    string(f.Severity),
		"type":        f.Type,
		"title":       f.Title,
		"description": f.Description,
	}
}

// FindingList is the ordered finding list stored as a JSON column.
type FindingList []Finding

func (l FindingList) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal([]Finding{})
	}
	return json.Marshal([]Finding(l))
}

func (l *FindingList) Scan(value interface{}) error {
	data, err := jsonBytes(value)
	if err != nil {
		return err
	}
	if data == nil {
		*l = FindingList{}
		return nil
	}
	var findings []Finding
	if err := json.Unmarshal(data, &findings); err != nil {
		return err
	}
	*l = findings
	return nil
}

// CountBySeverity tallies findings per severity.
func (l FindingList) CountBySeverity() map[Severity]int {
	counts := make(map[Severity]int, 4)
	for _, f := range l {
		counts[f.Severity]++
	}
	return counts
}
