package grant

import (
	"regexp"
	"strings"
	"time"

	"github.com/kirillkom/property-vault/internal/core/domain"
)

var (
	ownerPattern        = labeledLine(`(?:owner(?:'s)?\s*name|name\s+of\s+(?:the\s+)?owner|grantee|owner)`)
	addressPattern      = labeledLine(`(?:property\s+address|address\s+of\s+(?:the\s+)?property|address|location)`)
	surveyPattern       = labeledLine(`(?:survey\s*(?:number|no\.?|#)|s\.?\s*no\.?)`)
	areaPattern         = labeledLine(`(?:total\s+area|area|extent)`)
	registrationPattern = labeledLine(`(?:registration\s+date|date\s+of\s+registration|registered\s+on)`)
)

var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"02.01.2006",
	"2 January 2006",
	"2 Jan 2006",
	"January 2, 2006",
	"Jan 2, 2006",
}

// labeledLine matches "<label>: value" or "<label> - value" on one line.
func labeledLine(label string) *regexp.Regexp {
	return regexp.MustCompile(`(?im)^[\s\-*•]*` + label + `\s*[:\-–]\s*(.+?)\s*$`)
}

// Parser pulls property grant fields out of OCR text.
type Parser struct{}

func New() *Parser {
	return &Parser{}
}

// Parse returns nil when no field is recognized.
func (p *Parser) Parse(text string) *domain.PropertyDetails {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	details := domain.PropertyDetails{
		OwnerName:       firstMatch(ownerPattern, text),
		PropertyAddress: firstMatch(addressPattern, text),
		SurveyNumber:    firstMatch(surveyPattern, text),
		Area:            firstMatch(areaPattern, text),
	}
	if raw := firstMatch(registrationPattern, text); raw != "" {
		if date, ok := parseDate(raw); ok {
			details.RegistrationDate = &date
		}
	}
	if details == (domain.PropertyDetails{}) {
		return nil
	}
	return &details
}

func firstMatch(pattern *regexp.Regexp, text string) string {
	m := pattern.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimRight(strings.TrimSpace(m[1]), ".,;")
}

func parseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
