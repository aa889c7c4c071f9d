package types

import (
	"errors"
	"fmt"
	"strings"
)

// ResumeUpdate is the output of one enrichment run. It is a closed set:
// ExperiencesUpdate, SummaryUpdate and FullResumeUpdate.
type ResumeUpdate interface {
	// Mode is the content mode that produces this update.
	Mode() ContentMode
	// Validate rejects payloads that must not be merged.
	Validate() error
	// Apply returns a new document with the update merged over base.
	Apply(base Document) (Document, error)

	sealed()
}

// ExperiencesUpdate rewrites the work section. Entries are matched to the base
// work list by position; fields Experience does not model are kept.
type ExperiencesUpdate struct {
	Work []Experience `json:"work"`
}

// SummaryUpdate replaces basics.summary.
type SummaryUpdate struct {
	Summary string `json:"summary"`
}

// FullResumeUpdate replaces every tailorable section. Nil sections are kept
// from the base document.
type FullResumeUpdate struct {
	Summary  string       `json:"summary"`
	Work     []Experience `json:"work"`
	Projects []Project    `json:"projects,omitempty"`
	Skills   SkillSet     `json:"skills,omitempty"`
}

var errEmptyUpdate = errors.New("update carries no content")

func (ExperiencesUpdate) Mode() ContentMode { return ModeExperiences }
func (SummaryUpdate) Mode() ContentMode     { return ModeSummary }
func (FullResumeUpdate) Mode() ContentMode  { return ModeResume }

func (ExperiencesUpdate) sealed() {}
func (SummaryUpdate) sealed()     {}
func (FullResumeUpdate) sealed()  {}

func (u ExperiencesUpdate) Validate() error {
	if len(u.Work) == 0 {
		return fmt.Errorf("experiences: %w", errEmptyUpdate)
	}
	return validateWork(u.Work)
}

func (u SummaryUpdate) Validate() error {
	if strings.TrimSpace(u.Summary) == "" {
		return fmt.Errorf("summary: %w", errEmptyUpdate)
	}
	return nil
}

func (u FullResumeUpdate) Validate() error {
	if strings.TrimSpace(u.Summary) == "" && u.Work == nil && u.Projects == nil && u.Skills == nil {
		return fmt.Errorf("resume: %w", errEmptyUpdate)
	}
	if u.Work != nil {
		if err := validateWork(u.Work); err != nil {
			return err
		}
	}
	for i, p := range u.Projects {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("projects[%d]: name is required", i)
		}
	}
	return nil
}

func (u ExperiencesUpdate) Apply(base Document) (Document, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}
	doc := base.Clone()
	if err := doc.setWork(u.Work); err != nil {
		return nil, err
	}
	return doc, nil
}

func (u SummaryUpdate) Apply(base Document) (Document, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}
	doc := base.Clone()
	if err := doc.SetSummary(u.Summary); err != nil {
		return nil, err
	}
	return doc, nil
}

func (u FullResumeUpdate) Apply(base Document) (Document, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}
	doc := base.Clone()
	if strings.TrimSpace(u.Summary) != "" {
		if err := doc.SetSummary(u.Summary); err != nil {
			return nil, err
		}
	}
	if u.Work != nil {
		if err := doc.setWork(u.Work); err != nil {
			return nil, err
		}
	}
	if u.Projects != nil {
		if err := doc.SetProjects(u.Projects); err != nil {
			return nil, err
		}
	}
	if u.Skills != nil {
		if err := doc.SetSection(SectionSkills, u.Skills); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func validateWork(work []Experience) error {
	for i, w := range work {
		if strings.TrimSpace(w.Name) == "" && strings.TrimSpace(w.Position) == "" {
			return fmt.Errorf("work[%d]: name or position is required", i)
		}
	}
	return nil
}
