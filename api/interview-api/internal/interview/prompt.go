// Copyright (c) 2024-2025 Potential Labs
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.
package internal_interview

import (
	"fmt"
	"strings"

	"github.com/potentialai/pkg/utils"
)

// SystemInstruction builds the evaluator persona prompt for a session.
func SystemInstruction(candidate Candidate, job Job) string {
	jobContext := "You are interviewing for a generic high-potential role."
	if job.Title != "" {
		jobContext = fmt.Sprintf(
			"You are interviewing for %q at %q. Requirements: High %d%% potential match.",
			job.Title, job.Company, job.PotentialMatch,
		)
	}

	candidateContext := fmt.Sprintf(
		"The candidate is %s. Headline: %s. Skills: %s. Potential Score: %d.",
		candidate.Name, candidate.Headline, strings.Join(candidate.Skills, ", "), candidate.PotentialScore,
	)

	return fmt.Sprintf(`You are Aria, lead AI HR Evaluator. Conduct a professional 5-question interview.
CONTEXT: %s
CANDIDATE: %s

PHASES: 1. Introduction. 2. Technical Challenge. 3. Adaptability/Behavioral. 4. Growth Mindset. 5. Conclusion.
Ask ONLY one question at a time. Keep it brief and high-impact.`, jobContext, candidateContext)
}

// Greeting builds the opening line the agent speaks once the session is
// live.
func Greeting(candidate Candidate, job Job) string {
	position := job.Title
	if position == "" {
		position = "position"
	}
	return fmt.Sprintf(
		"[START INTERVIEW] Hello %s. I am Aria. I've accessed your potential profile and am ready to discuss the %s. Let's begin.",
		utils.FirstName(candidate.Name), position,
	)
}
