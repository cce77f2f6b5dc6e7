// Copyright (c) 2024-2025 Potential Labs
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.
package internal_record

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Audited carries the identity and timestamp columns shared by all records.
type Audited struct {
	Id          uint64    `json:"id" gorm:"primaryKey;autoIncrement"`
	CreatedDate time.Time `json:"createdDate" gorm:"autoCreateTime"`
	UpdatedDate time.Time `json:"updatedDate" gorm:"autoUpdateTime"`
}

// TranscriptEntry is one coalesced turn as persisted.
type TranscriptEntry struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// Transcript is the ordered conversation stored as a JSON column.
type Transcript []TranscriptEntry

func (t Transcript) Value() (driver.Value, error) {
	if t == nil {
		t = Transcript{}
	}
	return json.Marshal(t)
}

func (t *Transcript) Scan(value interface{}) error {
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, t)
	case string:
		return json.Unmarshal([]byte(v), t)
	case nil:
		*t = Transcript{}
		return nil
	default:
		return fmt.Errorf("unsupported transcript column type %T", value)
	}
}

// InterviewRecord is the durable outcome of one interview session.
type InterviewRecord struct {
	Audited
	SessionId       string     `json:"sessionId" gorm:"type:string;size:64;not null;uniqueIndex"`
	CandidateId     string     `json:"candidateId" gorm:"type:string;size:64;not null;index"`
	CandidateName   string     `json:"candidateName" gorm:"type:string;size:255"`
	JobTitle        string     `json:"jobTitle" gorm:"type:string;size:255"`
	Transcript      Transcript `json:"transcript" gorm:"type:text"`
	ClarityScore    int        `json:"clarityScore" gorm:"type:int"`
	ConfidenceScore int        `json:"confidenceScore" gorm:"type:int"`
	TrustScore      int        `json:"trustScore" gorm:"type:int;not null;default:100"`
	FlagCount       int        `json:"flagCount" gorm:"type:int;not null;default:0"`
	Summary         string     `json:"summary" gorm:"type:text"`
	ArtifactPath    string     `json:"artifactPath" gorm:"type:string;size:512"`
	DurationMs      uint64     `json:"durationMs" gorm:"type:bigint"`
}
