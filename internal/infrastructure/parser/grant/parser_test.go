package grant

import (
	"testing"
	"time"
)

func TestParseExtractsGrantFields(t *testing.T) {
	text := `PROPERTY GRANT CERTIFICATE
Owner Name: Jane Roe
Property Address: 12 Lake View Road, Pune
Survey No.: 42/1A
Area: 2.5 acres
Registration Date: 14/03/2019`

	details := New().Parse(text)
	if details == nil {
		t.Fatalf("expected details")
	}
	if details.OwnerName != "Jane Roe" {
		t.Fatalf("owner = %q", details.OwnerName)
	}
	if details.PropertyAddress != "12 Lake View Road, Pune" {
		t.Fatalf("address = %q", details.PropertyAddress)
	}
	if details.SurveyNumber != "42/1A" {
		t.Fatalf("survey = %q", details.SurveyNumber)
	}
	if details.Area != "2.5 acres" {
		t.Fatalf("area = %q", details.Area)
	}
	want := time.Date(2019, 3, 14, 0, 0, 0, 0, time.UTC)
	if details.RegistrationDate == nil || !details.RegistrationDate.Equal(want) {
		t.Fatalf("registration date = %v", details.RegistrationDate)
	}
}

func TestParseAlternateLabels(t *testing.T) {
	text := "- Grantee - John Smith\n- Extent: 1200 sq ft\n- Date of Registration: March 5, 2021"

	details := New().Parse(text)
	if details == nil || details.OwnerName != "John Smith" || details.Area != "1200 sq ft" {
		t.Fatalf("unexpected details %+v", details)
	}
	if details.RegistrationDate == nil || details.RegistrationDate.Year() != 2021 {
		t.Fatalf("registration date = %v", details.RegistrationDate)
	}
}

func TestParseUnparseableDateKeepsOtherFields(t *testing.T) {
	details := New().Parse("Owner: A. Kumar\nRegistration Date: sometime last year")
	if details == nil || details.OwnerName != "A. Kumar" || details.RegistrationDate != nil {
		t.Fatalf("unexpected details %+v", details)
	}
}

func TestParseReturnsNilWithoutFields(t *testing.T) {
	if got := New().Parse("OCR EXTRACTED TEXT FOR: deed.png\n\nThis is a simulation."); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
	if got := New().Parse("   "); got != nil {
		t.Fatalf("expected nil for blank text, got %+v", got)
	}
}
