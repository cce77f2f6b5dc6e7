// Copyright (c) 2024-2025 Potential Labs
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.
package internal_interview

// Candidate is the interviewee profile pulled from the hiring platform.
type Candidate struct {
	ID             string
	Name           string
	Headline       string
	Skills         []string
	PotentialScore int
}

// Job is the role the candidate is screened for. A zero Job means a generic
// high-potential screening.
type Job struct {
	Title          string
	Company        string
	PotentialMatch int
}
