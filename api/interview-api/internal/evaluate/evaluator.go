// Copyright (c) 2024-2025 Potential Labs
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

// Package internal_evaluate scores a finished interview. The primary
// evaluator asks a Gemini model for a structured review of the transcript;
// a heuristic fallback keeps conclusion working without an API key.
package internal_evaluate

import (
	"context"
	"fmt"
	"strings"
)

// Input is everything the evaluator may consider.
type Input struct {
	CandidateName string
	JobTitle      string
	Transcript    []Turn
	TrustScore    int
	FlagCount     int
}

// Turn is one coalesced conversation turn.
type Turn struct {
	Speaker string
	Text    string
}

// Evaluation is the structured outcome. Scores are 0-100.
type Evaluation struct {
	ClarityScore    int    `json:"clarity_score"`
	ConfidenceScore int    `json:"confidence_score"`
	Summary         string `json:"summary"`
}

// Evaluator produces an evaluation for a concluded interview.
type Evaluator interface {
	Evaluate(ctx context.Context, input Input) (*Evaluation, error)
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// renderTranscript flattens the conversation for prompting.
func renderTranscript(turns []Turn) string {
	var sb strings.Builder
	for _, turn := range turns {
		fmt.Fprintf(&sb, "%s: %s\n", strings.ToUpper(turn.Speaker), strings.TrimSpace(turn.Text))
	}
	return sb.String()
}
