// Package types provides the records and résumé document model shared by the
// store, the enrichment pipeline and the task engine.
//
//nolint:revive // types is a standard Go package name pattern
package types

import "time"

// JobStatus marks how far a job posting has been processed.
type JobStatus string

const (
	// JobStatusRaw is a job created from posting text that has not been parsed yet.
	JobStatusRaw JobStatus = "raw"
	// JobStatusParsed is a job whose metadata was extracted by the enrichment pipeline.
	JobStatusParsed JobStatus = "parsed"
)

// Job is a job posting a résumé is tailored to.
type Job struct {
	ID        string     `json:"id"`
	RawText   string     `json:"raw_text"`
	Title     string     `json:"title"`
	Company   string     `json:"company"`
	Link      string     `json:"link,omitempty"`
	Status    JobStatus  `json:"status"`
	Parsed    *ParsedJob `json:"parsed,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ParsedJob represents a structured job posting extracted from raw text
type ParsedJob struct {
	Company          string        `json:"company"`
	JobTitle         string        `json:"job_title"`
	Location         string        `json:"location,omitempty"`
	Responsibilities []string      `json:"responsibilities"`
	Requirements     []Requirement `json:"requirements"`
	NiceToHaves      []Requirement `json:"nice_to_haves,omitempty"`
	Keywords         []string      `json:"keywords"`
}

// Requirement represents a skill requirement with evidence
type Requirement struct {
	Skill    string `json:"skill"`
	Level    string `json:"level,omitempty"`
	Evidence string `json:"evidence,omitempty"`
}

// Description renders the posting for prompts: the title line followed by the raw text.
func (j *Job) Description() string {
	switch {
	case j.Title != "" && j.RawText != "":
		return j.Title + "\n\n" + j.RawText
	case j.RawText != "":
		return j.RawText
	default:
		return j.Title
	}
}
