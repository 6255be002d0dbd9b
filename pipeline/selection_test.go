package pipeline

import (
	"testing"
)

func TestSelectSourcesWeatherWithWeb(t *testing.T) {
	u := Understanding{
		Query:    "weather in Hong Kong tomorrow",
		Intent:   IntentFactual,
		Domain:   DomainWeather,
		NeedsWeb: true,
		Entities: EmptyEntities(),
	}

	sel := SelectSources(u)

	if sel.DomainHandler != DomainWeather {
		t.Errorf("expected domain handler weather, got %s", sel.DomainHandler)
	}
	wantSources := []Source{SourceDomainAPI, SourceWebSearch, SourceLocalKB}
	if len(sel.Sources) != len(wantSources) {
		t.Fatalf("expected %d sources, got %d", len(wantSources), len(sel.Sources))
	}
	for i, src := range wantSources {
		if sel.Sources[i] != src {
			t.Errorf("sources[%d]: expected %s, got %s", i, src, sel.Sources[i])
		}
	}
	// 专用领域优先级最前，web 追加而非置顶
	wantPriority := []Source{SourceDomainAPI, SourceWebSearch, SourceLocalKB}
	for i, src := range wantPriority {
		if sel.Priority[i] != src {
			t.Errorf("priority[%d]: expected %s, got %s", i, src, sel.Priority[i])
		}
	}
}

func TestSelectSourcesGeneralNeedsWeb(t *testing.T) {
	u := Understanding{
		Intent:   IntentFactual,
		Domain:   DomainGeneral,
		NeedsWeb: true,
		Entities: EmptyEntities(),
	}

	sel := SelectSources(u)

	if sel.DomainHandler != "" {
		t.Errorf("expected empty domain handler, got %s", sel.DomainHandler)
	}
	if sel.Has(SourceDomainAPI) {
		t.Error("general domain must not select domain_api")
	}
	if sel.Priority[0] != SourceWebSearch {
		t.Errorf("general+web query must prioritize web_search, got %s", sel.Priority[0])
	}
}

func TestSelectSourcesConversational(t *testing.T) {
	u := Understanding{
		Intent:   IntentConversational,
		Domain:   DomainGeneral,
		NeedsWeb: false,
		Entities: EmptyEntities(),
	}

	sel := SelectSources(u)

	if len(sel.Sources) != 1 || sel.Sources[0] != SourceLocalKB {
		t.Fatalf("conversational query should only use local_kb, got %v", sel.Sources)
	}
	if sel.Priority[0] != SourceLocalKB {
		t.Errorf("local_kb must lead priority, got %s", sel.Priority[0])
	}
}

func TestSelectSourcesFinanceNoWeb(t *testing.T) {
	u := Understanding{
		Intent:   IntentFactual,
		Domain:   DomainFinance,
		NeedsWeb: false,
		Entities: EmptyEntities(),
	}

	sel := SelectSources(u)

	if sel.DomainHandler != DomainFinance {
		t.Errorf("expected finance handler, got %s", sel.DomainHandler)
	}
	if sel.Has(SourceWebSearch) {
		t.Error("web_search must not be selected when needs_web is false")
	}
	if sel.Priority[0] != SourceDomainAPI {
		t.Errorf("domain_api must lead priority, got %s", sel.Priority[0])
	}
}

// Priority 必须恒为 Sources 的完整排列。
func TestSelectSourcesPriorityIsPermutation(t *testing.T) {
	intents := []Intent{IntentAnalytical, IntentFactual, IntentConversational, IntentTransactional}
	domains := []Domain{DomainWeather, DomainTransportation, DomainFinance, DomainGeneral}

	for _, intent := range intents {
		for _, domain := range domains {
			for _, needsWeb := range []bool{true, false} {
				u := Understanding{
					Intent:   intent,
					Domain:   domain,
					NeedsWeb: needsWeb,
					Entities: EmptyEntities(),
				}
				sel := SelectSources(u)

				if len(sel.Priority) != len(sel.Sources) {
					t.Fatalf("%s/%s/web=%v: priority length %d != sources length %d",
						intent, domain, needsWeb, len(sel.Priority), len(sel.Sources))
				}
				seen := map[Source]bool{}
				for _, p := range sel.Priority {
					if seen[p] {
						t.Errorf("%s/%s/web=%v: duplicate %s in priority", intent, domain, needsWeb, p)
					}
					seen[p] = true
					if !sel.Has(p) {
						t.Errorf("%s/%s/web=%v: priority contains %s not in sources", intent, domain, needsWeb, p)
					}
				}
				if !sel.Has(SourceLocalKB) {
					t.Errorf("%s/%s/web=%v: local_kb must always be selected", intent, domain, needsWeb)
				}
			}
		}
	}
}
