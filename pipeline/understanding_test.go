package pipeline

import (
	"testing"
)

func TestParseIntent(t *testing.T) {
	tests := []struct {
		input string
		want  Intent
		ok    bool
	}{
		{"analytical", IntentAnalytical, true},
		{"factual", IntentFactual, true},
		{"conversational", IntentConversational, true},
		{"transactional", IntentTransactional, true},
		{"Factual", "", false},
		{"question", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseIntent(tt.input)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseIntent(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseDomain(t *testing.T) {
	tests := []struct {
		input string
		want  Domain
		ok    bool
	}{
		{"weather", DomainWeather, true},
		{"transportation", DomainTransportation, true},
		{"finance", DomainFinance, true},
		{"general", DomainGeneral, true},
		{"sports", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseDomain(tt.input)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseDomain(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.want, tt.ok)
		}
	}
}

func TestDomainIsSpecialized(t *testing.T) {
	for _, d := range []Domain{DomainWeather, DomainTransportation, DomainFinance} {
		if !d.IsSpecialized() {
			t.Errorf("%s should be specialized", d)
		}
	}
	if DomainGeneral.IsSpecialized() {
		t.Error("general must not be specialized")
	}
}

func TestDefaultUnderstanding(t *testing.T) {
	uc := UserContext{Location: "Hong Kong", Country: "Hong Kong"}
	u := DefaultUnderstanding("what happened today", uc)

	if u.Intent != IntentFactual {
		t.Errorf("expected factual intent, got %s", u.Intent)
	}
	if u.Domain != DomainGeneral {
		t.Errorf("expected general domain, got %s", u.Domain)
	}
	if !u.NeedsWeb {
		t.Error("conservative default must enable web retrieval")
	}
	if u.Query != "what happened today" {
		t.Errorf("query must be preserved, got %q", u.Query)
	}
	if u.Context.Location != "Hong Kong" {
		t.Errorf("user context must be preserved, got %q", u.Context.Location)
	}
}

func TestEntitiesNormalize(t *testing.T) {
	var e Entities
	e.normalize()

	if e.Locations == nil || e.Organizations == nil || e.StockSymbols == nil ||
		e.Dates == nil || e.Products == nil || e.General == nil ||
		e.Currencies == nil || e.Amounts == nil {
		t.Error("normalize must replace nil slices with empty slices")
	}
}
