package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestParseModelReport(t *testing.T) {
	content := "```json\n{\"broker\":\"Axis Capital\",\"companyRaw\":\"Reliance Industries Ltd\",\"companyCanonical\":\"Reliance Industries\",\"reportType\":\"results_update\",\"title\":\"Q1 beat\",\"summary\":\"Strong quarter.\",\"keyPoints\":[\"Revenue +12%\"],\"publishedAt\":\"\",\"confidence\":0.9}\n```"
	raw, err := parseModelReport(content)
	if err != nil {
		t.Fatalf("parseModelReport: %v", err)
	}
	if raw.CompanyCanonical != "Reliance Industries" || raw.Confidence != 0.9 {
		t.Errorf("unexpected report: %+v", raw)
	}
}

func TestParseModelReportRejectsGarbage(t *testing.T) {
	for _, content := range []string{"", "no json here", "{\"broker\":\"X\"}"} {
		if _, err := parseModelReport(content); err == nil {
			t.Errorf("expected error for %q", content)
		}
	}
}

func TestModelAdapterHappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"broker\":\"Kotak\",\"companyRaw\":\"Infosys Ltd\",\"companyCanonical\":\"Infosys\",\"reportType\":\"initiation\",\"title\":\"Initiating coverage\",\"summary\":\"Buy.\",\"keyPoints\":[],\"publishedAt\":\"\",\"confidence\":0.8}"}}]}`))
	}))
	defer srv.Close()

	adapter := NewModelAdapter(ModelConfig{Endpoint: srv.URL, Model: "test", Timeout: 5 * time.Second})
	raw, err := adapter.Extract(context.Background(), sampleArchive(), "user-1", "run-1")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if raw.CompanyCanonical != "Infosys" || raw.ReportType != "initiation" {
		t.Errorf("unexpected report: %+v", raw)
	}
}

func TestModelAdapterFallsBackOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	adapter := NewModelAdapter(ModelConfig{Endpoint: srv.URL, Model: "test", Timeout: 5 * time.Second})
	raw, err := adapter.Extract(context.Background(), sampleArchive(), "user-1", "run-1")
	if err != nil {
		t.Fatalf("Extract should have fallen back, got error: %v", err)
	}
	// Fallback output is the deterministic heuristic result.
	if raw.CompanyCanonical != "Reliance Industries" {
		t.Errorf("fallback not used: %+v", raw)
	}
}
