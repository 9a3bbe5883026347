package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// RunRecord is the persisted summary of one run.
type RunRecord struct {
	RunID     string
	RulesHash string
	// Outcome is "consistent" or "inconsistent".
	Outcome string
	// Added counts the facts the run derived.
	Added int64
	Usage []RuleUsage
	Seq   int64
}

// RuleUsage is one rule's line of a run's usage report.
type RuleUsage struct {
	Rule       string `json:"rule"`
	Executions int    `json:"executions"`
	Hits       int64  `json:"hits"`
	Matches    int64  `json:"matches,omitempty"`
	Nanos      int64  `json:"nanos"`
}

// marshalUsage encodes a usage report as compact JSON TEXT. Rules keep
// their report order.
func marshalUsage(usage []RuleUsage) (string, error) {
	if usage == nil {
		usage = []RuleUsage{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(usage); err != nil {
		return "", fmt.Errorf("marshal usage: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

func unmarshalUsage(data string) ([]RuleUsage, error) {
	if data == "" || data == "[]" {
		return []RuleUsage{}, nil
	}
	var usage []RuleUsage
	if err := json.Unmarshal([]byte(data), &usage); err != nil {
		return nil, fmt.Errorf("unmarshal usage: %w", err)
	}
	return usage, nil
}
