// Copyright (c) 2024-2025 Potential Labs
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.
package internal_evaluate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/potentialai/pkg/commons"
)

// DefaultEvaluationModel is the Gemini model used for post-session review.
const DefaultEvaluationModel = "gemini-2.5-flash"

const evaluationPrompt = `You are reviewing a completed screening interview.

Candidate: %s
Role: %s
Integrity: trust score %d with %d flagged events.

Transcript:
%s

Return a JSON object with exactly these fields:
  clarity_score: integer 0-100 for how clearly the candidate communicated
  confidence_score: integer 0-100 for how confidently they handled questions
  summary: 2-3 sentence hiring-relevant summary

Respond with JSON only.`

type geminiEvaluator struct {
	logger commons.Logger
	client *genai.Client
	model  string
}

// NewGeminiEvaluator creates an evaluator backed by the Gemini API.
func NewGeminiEvaluator(ctx context.Context, logger commons.Logger, apiKey string, model string) (Evaluator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	if model == "" {
		model = DefaultEvaluationModel
	}
	return &geminiEvaluator{logger: logger, client: client, model: model}, nil
}

func (evaluator *geminiEvaluator) Evaluate(ctx context.Context, input Input) (*Evaluation, error) {
	start := time.Now()
	if len(input.Transcript) == 0 {
		return nil, fmt.Errorf("cannot evaluate an empty transcript")
	}

	prompt := fmt.Sprintf(evaluationPrompt,
		input.CandidateName,
		input.JobTitle,
		input.TrustScore,
		input.FlagCount,
		renderTranscript(input.Transcript),
	)

	resp, err := evaluator.client.Models.GenerateContent(
		ctx,
		evaluator.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
	)
	if err != nil {
		return nil, fmt.Errorf("generate evaluation: %w", err)
	}

	evaluation, err := parseEvaluation(resp.Text())
	if err != nil {
		return nil, err
	}

	evaluator.logger.Benchmark("GeminiEvaluator.Evaluate", time.Since(start))
	return evaluation, nil
}

// parseEvaluation tolerates a fenced code block around the JSON body.
func parseEvaluation(text string) (*Evaluation, error) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var evaluation Evaluation
	if err := json.Unmarshal([]byte(cleaned), &evaluation); err != nil {
		return nil, fmt.Errorf("parse evaluation response: %w", err)
	}
	evaluation.ClarityScore = clampScore(evaluation.ClarityScore)
	evaluation.ConfidenceScore = clampScore(evaluation.ConfidenceScore)
	return &evaluation, nil
}
