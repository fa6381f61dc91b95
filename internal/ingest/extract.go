package ingest

import (
	"encoding/json"
	"strings"

	"github.com/sakif/intake-tracker/internal/apperror"
)

// Stage names which step of the pipeline produced (or rejected) a candidate.
type Stage string

const (
	StageParse            Stage = "parse"
	StageCodeBlockParse   Stage = "code-block-parse"
	StageJSONExtraction   Stage = "json-extraction"
	StageSchemaValidation Stage = "schema-validation"
)

// Candidate is a piece of completion text that is probably JSON.
type Candidate struct {
	Text   string
	Source Stage
}

// Extract locates a JSON object in raw completion text.
//
// Strategies, first success wins:
//  1. the whole text parses as JSON: returned unchanged;
//  2. a ``` fenced block (optionally tagged json) whose content parses;
//  3. the greedy span from the first '{' to the last '}', NOT parsed here.
//
// Only when none of the three yields a candidate does Extract fail, with
// apperror.ErrNoJSONFound. A strategy-3 candidate that does not parse is
// reported later by ValidateFragment, so callers can tell "no JSON at all"
// from "JSON-ish text that failed".
func Extract(raw string) (Candidate, error) {
	if json.Valid([]byte(raw)) {
		return Candidate{Text: raw, Source: StageParse}, nil
	}

	if block, ok := fencedBlock(raw); ok && json.Valid([]byte(block)) {
		return Candidate{Text: block, Source: StageCodeBlockParse}, nil
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return Candidate{Text: raw[start : end+1], Source: StageJSONExtraction}, nil
	}

	return Candidate{}, apperror.NoJSONFound()
}

// fencedBlock returns the trimmed content of the first ``` block. An
// optional language tag on the opening fence ("json", "JSON") is skipped.
func fencedBlock(raw string) (string, bool) {
	open := strings.Index(raw, "```")
	if open < 0 {
		return "", false
	}
	body := raw[open+3:]

	// Skip the language tag: everything up to the first newline, as long as it
	// looks like a tag and not like content.
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		tag := strings.TrimSpace(body[:nl])
		if tag == "" || isFenceTag(tag) {
			body = body[nl+1:]
		}
	} else if strings.HasPrefix(strings.ToLower(body), "json") {
		body = body[len("json"):]
	}

	closing := strings.Index(body, "```")
	if closing < 0 {
		return "", false
	}
	return strings.TrimSpace(body[:closing]), true
}

func isFenceTag(s string) bool {
	if len(s) > 20 {
		return false
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			return false
		}
	}
	return true
}
