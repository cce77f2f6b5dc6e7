// Copyright (c) 2024-2025 Potential Labs
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.
package internal_evaluate

import (
	"context"
	"fmt"
	"strings"
)

// fillerWords drag the clarity score down when they dominate answers.
var fillerWords = map[string]struct{}{
	"um": {}, "uh": {}, "like": {}, "basically": {}, "actually": {},
}

type heuristicEvaluator struct{}

// NewHeuristicEvaluator creates the offline fallback evaluator. It scores
// from transcript statistics only and never fails on a non-empty transcript.
func NewHeuristicEvaluator() Evaluator {
	return &heuristicEvaluator{}
}

func (evaluator *heuristicEvaluator) Evaluate(_ context.Context, input Input) (*Evaluation, error) {
	if len(input.Transcript) == 0 {
		return nil, fmt.Errorf("cannot evaluate an empty transcript")
	}

	var candidateTurns, candidateWords, fillerCount int
	for _, turn := range input.Transcript {
		if turn.Speaker != "candidate" {
			continue
		}
		candidateTurns++
		for _, word := range strings.Fields(strings.ToLower(turn.Text)) {
			candidateWords++
			if _, ok := fillerWords[strings.Trim(word, ".,!?")]; ok {
				fillerCount++
			}
		}
	}

	if candidateTurns == 0 {
		return &Evaluation{
			ClarityScore:    0,
			ConfidenceScore: 0,
			Summary:         "The candidate did not respond during the interview.",
		}, nil
	}

	// Clarity: start high, lose ground to filler density.
	clarity := 90
	if candidateWords > 0 {
		clarity -= (fillerCount * 200) / candidateWords
	}

	// Confidence: reward substantive answers, average ~20 words per turn
	// earns full marks.
	avgWords := candidateWords / candidateTurns
	confidence := 50 + avgWords*2
	confidence -= input.FlagCount * 5

	return &Evaluation{
		ClarityScore:    clampScore(clarity),
		ConfidenceScore: clampScore(confidence),
		Summary: fmt.Sprintf(
			"%s answered %d questions with an average of %d words per answer. Trust score ended at %d with %d flagged events.",
			input.CandidateName, candidateTurns, avgWords, input.TrustScore, input.FlagCount,
		),
	}, nil
}
