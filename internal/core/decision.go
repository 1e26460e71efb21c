package core

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var ErrNoJSON = errors.New("no JSON object in response")

// Decision envelopes are parsed once at the provider boundary and carried as
// tagged values afterwards, never as raw JSON maps.

// SearchDecision is the outcome of asking the model whether a web search is
// needed for the current turn.
type SearchDecision struct {
	Search bool
	Query  string
}

// ScrapeDecision is the outcome of asking the model whether a found page
// must be fetched in full.
type ScrapeDecision struct {
	Scrape bool
	URL    string
}

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// DecodeLoose unmarshals a strict-JSON object, tolerating models that wrap
// the object in prose.
func DecodeLoose(raw string, v any) error {
	raw = strings.TrimSpace(raw)
	if err := json.Unmarshal([]byte(raw), v); err == nil {
		return nil
	}
	match := jsonObjectPattern.FindString(raw)
	if match == "" {
		return ErrNoJSON
	}
	return json.Unmarshal([]byte(match), v)
}

func ParseSearchDecision(raw string) (SearchDecision, error) {
	var envelope struct {
		Action string `json:"action"`
		Query  string `json:"query"`
	}
	if err := DecodeLoose(raw, &envelope); err != nil {
		return SearchDecision{}, err
	}
	if envelope.Action != "search" {
		return SearchDecision{}, nil
	}
	return SearchDecision{Search: true, Query: strings.TrimSpace(envelope.Query)}, nil
}

func ParseScrapeDecision(raw string) (ScrapeDecision, error) {
	var envelope struct {
		Action string `json:"action"`
		URL    string `json:"url"`
	}
	if err := DecodeLoose(raw, &envelope); err != nil {
		return ScrapeDecision{}, err
	}
	if envelope.Action != "scrape" {
		return ScrapeDecision{}, nil
	}
	return ScrapeDecision{Scrape: true, URL: strings.TrimSpace(envelope.URL)}, nil
}
