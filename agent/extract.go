package agent

import (
	"encoding/json"
	"strings"

	"github.com/hairizuanbinnoorazman/web-pentest/testrun"
	"github.com/hairizuanbinnoorazman/web-pentest/toolset"
)

// Tier names which extraction tier produced the findings.
type Tier string

const (
	TierNone    Tier = "none"
	TierStrict  Tier = "strict_json"
	TierRelaxed Tier = "relaxed_json"
	TierKeyword Tier = "keyword"
)

const defaultFindingType = "Security Vulnerability"

var (
	severityKeys    = []string{"severity", "risk_level", "priority", "risk"}
	typeKeys        = []string{"type", "category", "vulnerability_type"}
	titleKeys       = []string{"title", "name"}
	descriptionKeys = []string{"description", "details", "impact"}
)

// ExtractFindings turns planner output into findings. Tiers are tried in
// order and the first tier that yields at least one finding wins.
func ExtractFindings(output string) ([]testrun.Finding, Tier) {
	if findings := extractStrict(output); len(findings) > 0 {
		return findings, TierStrict
	}
	if findings := extractRelaxed(output); len(findings) > 0 {
		return findings, TierRelaxed
	}
	if findings := extractKeywords(output); len(findings) > 0 {
		return findings, TierKeyword
	}
	return nil, TierNone
}

// extractStrict decodes the first JSON array in output that holds at least
// one usable finding object.
func extractStrict(output string) []testrun.Finding {
	for i := 0; i < len(output); i++ {
		if output[i] != '[' {
			continue
		}
		var items []json.RawMessage
		if err := json.NewDecoder(strings.NewReader(output[i:])).Decode(&items); err != nil {
			continue
		}
		var findings []testrun.Finding
		for _, item := range items {
			var obj map[string]interface{}
			if err := json.Unmarshal(item, &obj); err != nil {
				continue
			}
			if f, ok := normalizeFinding(obj); ok {
				findings = appendUnique(findings, f)
			}
		}
		if len(findings) > 0 {
			return findings
		}
	}
	return nil
}

// extractRelaxed decodes every standalone JSON object in output, which
// tolerates truncated arrays and objects scattered through prose.
func extractRelaxed(output string) []testrun.Finding {
	var findings []testrun.Finding
	for i := 0; i < len(output); {
		if output[i] != '{' {
			i++
			continue
		}
		dec := json.NewDecoder(strings.NewReader(output[i:]))
		var obj map[string]interface{}
		if err := dec.Decode(&obj); err != nil {
			i++
			continue
		}
		if f, ok := normalizeFinding(obj); ok {
			findings = appendUnique(findings, f)
		}
		i += int(dec.InputOffset())
	}
	return findings
}

type keywordClass struct {
	keywords []string
	// requires, when set, must also match for the class to fire.
	requires []string
	finding  testrun.Finding
}

var keywordClasses = []keywordClass{
	{
		keywords: []string{"sql injection", "sqli"},
		requires: []string{"successful", "vulnerab", "bypass"},
		finding: testrun.Finding{
			Severity:    testrun.SeverityHigh,
			Type:        toolset.SQLInjectionType,
			Title:       toolset.SQLInjectionTitle,
			Description: "The login form is vulnerable to SQL injection attacks. The agent was able to bypass authentication using malicious SQL payloads.",
		},
	},
	{
		keywords: []string{"xss", "cross-site scripting", "cross site scripting"},
		finding: testrun.Finding{
			Severity:    testrun.SeverityMedium,
			Type:        toolset.XSSType,
			Title:       toolset.XSSTitle,
			Description: "The application is vulnerable to XSS attacks. User input is not properly sanitized before being reflected in the page.",
		},
	},
	{
		keywords: []string{"csrf", "cross-site request forgery", "cross site request forgery"},
		finding: testrun.Finding{
			Severity:    testrun.SeverityMedium,
			Type:        "CSRF",
			Title:       "Cross-Site Request Forgery",
			Description: "State-changing requests are accepted without an anti-CSRF token.",
		},
	},
	{
		keywords: []string{"broken authentication", "weak password", "default credentials", "session fixation", "weak authentication"},
		finding: testrun.Finding{
			Severity:    testrun.SeverityHigh,
			Type:        "Authentication",
			Title:       "Broken Authentication",
			Description: "The authentication mechanism can be bypassed or abused.",
		},
	},
	{
		keywords: []string{"broken access control", "privilege escalation", "insecure direct object", "authorization bypass", "unauthorized access"},
		finding: testrun.Finding{
			Severity:    testrun.SeverityHigh,
			Type:        "Authorization",
			Title:       "Broken Access Control",
			Description: "Resources are reachable without the required authorization.",
		},
	},
	{
		keywords: []string{"information disclosure", "sensitive data exposure", "stack trace", "directory listing", "verbose error"},
		finding: testrun.Finding{
			Severity:    testrun.SeverityLow,
			Type:        "Information Disclosure",
			Title:       "Information Disclosure",
			Description: "The application exposes internal details that help an attacker.",
		},
	},
}

// extractKeywords synthesizes one generic finding per vulnerability class
// mentioned in output.
func extractKeywords(output string) []testrun.Finding {
	lower := strings.ToLower(output)
	var findings []testrun.Finding
	for _, class := range keywordClasses {
		if !containsAny(lower, class.keywords) {
			continue
		}
		if len(class.requires) > 0 && !containsAny(lower, class.requires) {
			continue
		}
		findings = append(findings, class.finding)
	}
	return findings
}

func normalizeFinding(obj map[string]interface{}) (testrun.Finding, bool) {
	title := firstString(obj, titleKeys)
	if title == "" {
		return testrun.Finding{}, false
	}
	severity, ok := testrun.ParseSeverity(firstString(obj, severityKeys))
	if !ok {
		severity = testrun.SeverityMedium
	}
	typ := firstString(obj, typeKeys)
	if typ == "" {
		typ = defaultFindingType
	}
	return testrun.Finding{
		Severity:    severity,
		Type:        typ,
		Title:       title,
		Description: firstString(obj, descriptionKeys),
	}, true
}

func firstString(obj map[string]interface{}, keys []string) string {
	for _, k := range keys {
		if v, ok := obj[k].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func appendUnique(findings []testrun.Finding, f testrun.Finding) []testrun.Finding {
	for _, existing := range findings {
		if existing.Title == f.Title {
			return findings
		}
	}
	return append(findings, f)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
