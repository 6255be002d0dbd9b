package transport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/queryflow/pipeline"
	"github.com/BaSui01/queryflow/testutil/mocks"
)

func TestExtractRoute(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		locations []string
		wantStart string
		wantEnd   string
	}{
		{"two_locations", "how do I get there", []string{"Central", "Mong Kok"}, "Central", "Mong Kok"},
		{"many_locations_first_last", "", []string{"Central", "Admiralty", "Tsim Sha Tsui"}, "Central", "Tsim Sha Tsui"},
		{"single_location_is_destination", "how to get to the airport", []string{"Hong Kong Airport"}, "", "Hong Kong Airport"},
		{"regex_english", "how to get from Central to Mong Kok", nil, "Central", "Mong Kok"},
		{"regex_chinese", "從 中環 去 旺角", nil, "中環", "旺角"},
		{"regex_multiword", "directions from Hong Kong Station to Disneyland please", nil, "Hong Kong Station", "Disneyland please"},
		{"no_route", "what is the MTR", nil, "", ""},
		{"blank_locations_ignored", "from A to B", []string{"  ", ""}, "A", "B"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := extractRoute(tt.query, tt.locations)
			assert.Equal(t, tt.wantStart, start)
			assert.Equal(t, tt.wantEnd, end)
		})
	}
}

func TestBuildSearchQuery(t *testing.T) {
	assert.Equal(t,
		"how to get from Central to Mong Kok Hong Kong public transport MTR bus",
		buildSearchQuery("ignored", "Central", "Mong Kok"))
	assert.Equal(t,
		"how to get to Disneyland Hong Kong public transport directions",
		buildSearchQuery("ignored", "", "Disneyland"))
	assert.Equal(t,
		"best MTR line Hong Kong transport directions",
		buildSearchQuery("best MTR line", "", ""))
}

func TestFetchReturnsWebResults(t *testing.T) {
	web := &mocks.MockWebSearcher{Results: []pipeline.WebResult{
		{Title: "MTR Journey Planner", Link: "https://mtr.com.hk", Snippet: "Take the Tsuen Wan line."},
		{Title: "Bus routes", Link: "https://kmb.hk", Snippet: "Route 1A."},
	}}

	client := NewClient(web, nil)
	payload := client.Fetch(context.Background(), "how do I get there", pipeline.Entities{
		Locations: []string{"Central", "Mong Kok"},
	})

	assert.Equal(t, "transportation", payload["topic"])
	assert.Equal(t, "Central", payload["start"])
	assert.Equal(t, "Mong Kok", payload["end"])
	assert.Equal(t, "web_search", payload["method"])
	assert.Contains(t, payload["search_query"], "from Central to Mong Kok")

	results, ok := payload["results"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, results, 2)
	assert.Equal(t, "MTR Journey Planner", results[0]["title"])
	assert.Equal(t, "https://mtr.com.hk", results[0]["link"])

	queries := web.Queries()
	require.Len(t, queries, 1)
	assert.Contains(t, queries[0], "Hong Kong public transport MTR bus")
}

func TestFetchNoResults(t *testing.T) {
	web := &mocks.MockWebSearcher{}

	client := NewClient(web, nil)
	payload := client.Fetch(context.Background(), "from A to B", pipeline.Entities{})

	assert.Equal(t, "No transportation results found", payload["error"])
	assert.Equal(t, string(pipeline.DomainTransportation), payload["domain"])
}

func TestFetchSearchError(t *testing.T) {
	web := &mocks.MockWebSearcher{Err: assert.AnError}

	client := NewClient(web, nil)
	payload := client.Fetch(context.Background(), "from Central to Mong Kok", pipeline.Entities{})

	errMsg, ok := payload["error"].(string)
	require.True(t, ok)
	assert.Contains(t, errMsg, "Transportation search failed")
}
