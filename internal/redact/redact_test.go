package redact

import (
	"strings"
	"testing"
)

func TestRedactEmailsAndPhones(t *testing.T) {
	in := "Contact analyst.desk@axiscap.com or call +91 98765 43210 for details."
	got := Redact(in, Context{})
	if strings.Contains(got, "axiscap.com") {
		t.Errorf("email survived redaction: %q", got)
	}
	if strings.Contains(got, "98765") {
		t.Errorf("phone survived redaction: %q", got)
	}
	if !strings.Contains(got, EmailPlaceholder) || !strings.Contains(got, PhonePlaceholder) {
		t.Errorf("placeholders missing: %q", got)
	}
}

func TestRedactKeepsYearsAndPercentages(t *testing.T) {
	in := "Revenue grew 12% in 2024 and 15% in 2025."
	got := Redact(in, Context{})
	if strings.Contains(got, PhonePlaceholder) {
		t.Errorf("short numeric run treated as phone: %q", got)
	}
}

func TestRedactHeaderLinesAndBanners(t *testing.T) {
	in := "---------- Forwarded message ----------\n" +
		"From: Rakesh Jhun <rakesh@broker.com>\n" +
		"To: Client Desk\n" +
		"Subject: Reliance Industries Q1\n" +
		"Body stays here."
	got := Redact(in, Context{})
	if strings.Contains(got, "Forwarded message") {
		t.Errorf("banner survived: %q", got)
	}
	if strings.Contains(strings.ToLower(got), "from:") || strings.Contains(strings.ToLower(got), "subject:") {
		t.Errorf("header line survived: %q", got)
	}
	if !strings.Contains(got, "Body stays here.") {
		t.Errorf("body was lost: %q", got)
	}
}

func TestRedactKnownParticipants(t *testing.T) {
	rc := Context{
		SenderName:      "Priya Sharma",
		SenderEmail:     "priya.sharma@broker.example",
		RecipientNames:  []string{"Arun Mehta", "Axis Capital Research"},
		RecipientEmails: []string{"arun@client.example"},
	}
	in := "Priya Sharma recommends this. Arun Mehta was copied. Axis Capital Research desk note."
	got := Redact(in, rc)

	if strings.Contains(got, "Priya Sharma") {
		t.Errorf("sender name survived: %q", got)
	}
	if strings.Contains(got, "Arun Mehta") {
		t.Errorf("recipient name survived: %q", got)
	}
	// Org-like recipient entries must not be blanked.
	if !strings.Contains(got, "Axis Capital Research") {
		t.Errorf("organization name was wrongly redacted: %q", got)
	}
	if strings.Contains(got, "priya.sharma@broker.example") || strings.Contains(got, "arun@client.example") {
		t.Errorf("literal email survived: %q", got)
	}
}

func TestRedactSignOffBlock(t *testing.T) {
	in := "Maintain BUY with target of 3200.\n\nBest regards,\nPriya Sharma\nEquity Research"
	got := Redact(in, Context{})
	if strings.Contains(got, "Priya Sharma") {
		t.Errorf("sign-off name survived: %q", got)
	}
	if !strings.Contains(got, "Maintain BUY") {
		t.Errorf("body content lost: %q", got)
	}
}

func TestIsLikelyPersonName(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"Priya Sharma", true},
		{"Jean-Luc O'Neil", true},
		{"Anil Kumar Gupta Rao", true},
		{"priya sharma", false},      // not capitalized
		{"Priya", false},             // single word
		{"Axis Capital", false},      // org keyword
		{"HDFC Securities Desk", false},
		{"A B C D E", false}, // five words
		{"", false},
	}
	for _, tc := range cases {
		if got := IsLikelyPersonName(tc.in); got != tc.want {
			t.Errorf("IsLikelyPersonName(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestRedactWhitespaceCollapse(t *testing.T) {
	in := "line   one\n\n\n\nline two\t\tend"
	got := Redact(in, Context{})
	if strings.Contains(got, "  ") || strings.Contains(got, "\n\n\n") {
		t.Errorf("whitespace not collapsed: %q", got)
	}
}
