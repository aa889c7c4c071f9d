package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Resume is a stored résumé. Raw resumes are user supplied; derived resumes
// are enrichment output and point back at their raw ancestor and the job.
type Resume struct {
	ID        string    `json:"id"`
	Content   Document  `json:"content"`
	IsRaw     bool      `json:"is_raw"`
	RawID     string    `json:"raw_id,omitempty"`
	JobID     string    `json:"job_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Well-known document sections.
const (
	SectionBasics     = "basics"
	SectionWork       = "work"
	SectionSkills     = "skills"
	SectionActivities = "activities"
	SectionEducation  = "education"
)

// Document is a résumé as a set of named JSON sections. Sections the engine
// does not rewrite are carried through byte for byte.
type Document map[string]json.RawMessage

// ParseDocument decodes a JSON object into a Document.
func ParseDocument(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("resume content must be a JSON object: %w", err)
	}
	if doc == nil {
		doc = Document{}
	}
	return doc, nil
}

// Clone returns a copy that shares no section buffers with d.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// Section decodes the named section into v. It reports false when the
// section is absent.
func (d Document) Section(name string, v any) (bool, error) {
	raw, ok := d[name]
	if !ok || len(raw) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("decode section %q: %w", name, err)
	}
	return true, nil
}

// SetSection encodes v into the named section.
func (d Document) SetSection(name string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode section %q: %w", name, err)
	}
	d[name] = raw
	return nil
}

// Basics returns the basics object as raw fields.
func (d Document) Basics() (map[string]json.RawMessage, error) {
	basics := map[string]json.RawMessage{}
	if _, err := d.Section(SectionBasics, &basics); err != nil {
		return nil, err
	}
	return basics, nil
}

// Name returns basics.name, or "" when unset.
func (d Document) Name() string {
	basics, err := d.Basics()
	if err != nil {
		return ""
	}
	var name string
	_ = json.Unmarshal(basics["name"], &name)
	return name
}

// Summary returns basics.summary, or "" when unset.
func (d Document) Summary() string {
	basics, err := d.Basics()
	if err != nil {
		return ""
	}
	var summary string
	_ = json.Unmarshal(basics["summary"], &summary)
	return summary
}

// SetSummary writes basics.summary, keeping the other basics fields.
func (d Document) SetSummary(summary string) error {
	basics, err := d.Basics()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	basics["summary"] = raw
	return d.SetSection(SectionBasics, basics)
}

// Work returns the work experiences.
func (d Document) Work() ([]Experience, error) {
	var work []Experience
	_, err := d.Section(SectionWork, &work)
	return work, err
}

// Skills returns the skill categories.
func (d Document) Skills() (SkillSet, error) {
	skills := SkillSet{}
	_, err := d.Section(SectionSkills, &skills)
	return skills, err
}

// Projects returns activities.projects.
func (d Document) Projects() ([]Project, error) {
	activities := map[string]json.RawMessage{}
	if _, err := d.Section(SectionActivities, &activities); err != nil {
		return nil, err
	}
	var projects []Project
	if raw, ok := activities["projects"]; ok {
		if err := json.Unmarshal(raw, &projects); err != nil {
			return nil, fmt.Errorf("decode section %q: %w", "activities.projects", err)
		}
	}
	return projects, nil
}

// SetProjects writes activities.projects, keeping the other activity fields.
// A project whose name matches an existing entry keeps that entry's fields
// that Project does not model.
func (d Document) SetProjects(projects []Project) error {
	activities := map[string]json.RawMessage{}
	if _, err := d.Section(SectionActivities, &activities); err != nil {
		return err
	}
	raw, err := overlayEntries(activities["projects"], projects, byName)
	if err != nil {
		return fmt.Errorf("encode section %q: %w", "activities.projects", err)
	}
	activities["projects"] = raw
	return d.SetSection(SectionActivities, activities)
}

// Experience is one entry of the work section.
type Experience struct {
	ID            string   `json:"id,omitempty"`
	Name          string   `json:"name"`
	Position      string   `json:"position"`
	URL           string   `json:"url,omitempty"`
	IsWorkingHere bool     `json:"isWorkingHere,omitempty"`
	StartDate     string   `json:"startDate,omitempty"`
	EndDate       string   `json:"endDate,omitempty"`
	Years         string   `json:"years,omitempty"`
	Highlights    []string `json:"highlights"`
	Summary       string   `json:"summary,omitempty"`
}

// Project is one entry of activities.projects.
type Project struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Highlights  []string `json:"highlights,omitempty"`
	URL         string   `json:"url,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
}

// Skill is a named skill with a 1-5 proficiency level.
type Skill struct {
	Name  string `json:"name"`
	Level int    `json:"level,omitempty"`
}

// SkillSet groups skills by category (languages, frameworks, tools, ...).
type SkillSet map[string][]Skill
