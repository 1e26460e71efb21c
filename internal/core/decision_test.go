package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSearchDecision(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want SearchDecision
		err  bool
	}{
		{
			"search with query",
			`{"action": "search", "query": "btc price"}`,
			SearchDecision{Search: true, Query: "btc price"},
			false,
		},
		{
			"done",
			`{"action": "done"}`,
			SearchDecision{},
			false,
		},
		{
			"object wrapped in prose",
			"Sure, here is the decision: {\"action\": \"search\", \"query\": \"f1 results\"} hope that helps",
			SearchDecision{Search: true, Query: "f1 results"},
			false,
		},
		{
			"query whitespace trimmed",
			`{"action": "search", "query": "  oslo weather "}`,
			SearchDecision{Search: true, Query: "oslo weather"},
			false,
		},
		{
			"no json at all",
			"I think we should search",
			SearchDecision{},
			true,
		},
		{
			"unknown action",
			`{"action": "think"}`,
			SearchDecision{},
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSearchDecision(tt.raw)
			if tt.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseScrapeDecision(t *testing.T) {
	got, err := ParseScrapeDecision(`{"action": "scrape", "url": "https://example.com/page"}`)
	require.NoError(t, err)
	assert.Equal(t, ScrapeDecision{Scrape: true, URL: "https://example.com/page"}, got)

	got, err = ParseScrapeDecision(`{"action": "done"}`)
	require.NoError(t, err)
	assert.False(t, got.Scrape)

	_, err = ParseScrapeDecision("nope")
	assert.ErrorIs(t, err, ErrNoJSON)
}
