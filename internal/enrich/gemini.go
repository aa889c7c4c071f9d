package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonathan/resume-tailor/internal/llm"
	"github.com/jonathan/resume-tailor/internal/prompts"
	"github.com/jonathan/resume-tailor/internal/schemas"
	"github.com/jonathan/resume-tailor/internal/types"
)

// JobFetcher downloads the text of a posting submitted by link.
type JobFetcher interface {
	JobText(ctx context.Context, url string) (string, error)
}

// Tiers picks the model tier for each stage.
type Tiers struct {
	Parse   llm.ModelTier `mapstructure:"parse"`
	Rewrite llm.ModelTier `mapstructure:"rewrite"`
	Skills  llm.ModelTier `mapstructure:"skills"`
	Summary llm.ModelTier `mapstructure:"summary"`
}

// DefaultTiers returns the tiers used when none are configured.
func DefaultTiers() Tiers {
	return Tiers{
		Parse:   llm.TierStandard,
		Rewrite: llm.TierAdvanced,
		Skills:  llm.TierStandard,
		Summary: llm.TierStandard,
	}
}

// Gemini is the model-backed Pipeline. It parses the posting once per job,
// then rewrites the sections the content mode asks for.
type Gemini struct {
	client  llm.Client
	fetcher JobFetcher
	tiers   Tiers
	logger  *slog.Logger
}

// NewGemini creates the pipeline. fetcher may be nil, in which case jobs
// without text fail permanently.
func NewGemini(client llm.Client, fetcher JobFetcher, tiers Tiers, logger *slog.Logger) *Gemini {
	def := DefaultTiers()
	if tiers.Parse == "" {
		tiers.Parse = def.Parse
	}
	if tiers.Rewrite == "" {
		tiers.Rewrite = def.Rewrite
	}
	if tiers.Skills == "" {
		tiers.Skills = def.Skills
	}
	if tiers.Summary == "" {
		tiers.Summary = def.Summary
	}
	return &Gemini{
		client:  client,
		fetcher: fetcher,
		tiers:   tiers,
		logger:  logger.With("component", "enrich"),
	}
}

var _ Pipeline = (*Gemini)(nil)

// Enrich implements Pipeline.
func (g *Gemini) Enrich(ctx context.Context, job *types.Job, resume *types.Resume, mode types.ContentMode) (*Result, error) {
	if job == nil || resume == nil || len(resume.Content) == 0 {
		return nil, Permanent("input", errors.New("job and a non-empty resume are required"))
	}
	logger := g.logger.With("job_id", job.ID, "resume_id", resume.ID, "mode", string(mode))

	description, fetched, err := g.jobText(ctx, job)
	if err != nil {
		return nil, err
	}
	parsed, err := g.parsedJob(ctx, job, description, logger)
	if err != nil {
		return nil, err
	}

	var update types.ResumeUpdate
	switch mode {
	case types.ModeExperiences:
		work, err := g.rewriteWork(ctx, parsed, resume.Content, logger)
		if err != nil {
			return nil, err
		}
		update = types.ExperiencesUpdate{Work: work}
	case types.ModeSummary:
		summary, err := g.writeSummary(ctx, parsed, resume.Content, logger)
		if err != nil {
			return nil, err
		}
		update = types.SummaryUpdate{Summary: summary}
	case types.ModeResume:
		full, err := g.fullResume(ctx, parsed, resume.Content, logger)
		if err != nil {
			return nil, err
		}
		update = full
	default:
		return nil, Permanent("input", fmt.Errorf("unknown content mode %q", mode))
	}

	if err := update.Validate(); err != nil {
		return nil, Permanent("validate", err)
	}
	return &Result{Update: update, Job: *parsed, JobText: fetched}, nil
}

// jobText returns the posting text used for parsing and, when it had to be
// downloaded, the fetched text.
func (g *Gemini) jobText(ctx context.Context, job *types.Job) (string, string, error) {
	if strings.TrimSpace(job.RawText) != "" {
		return job.Description(), "", nil
	}
	if job.Link == "" {
		if job.Title != "" {
			return job.Title, "", nil
		}
		return "", "", Permanent("fetch", errors.New("job has neither text nor link"))
	}
	if g.fetcher == nil {
		return "", "", Permanent("fetch", errors.New("job has only a link and fetching is disabled"))
	}
	text, err := g.fetcher.JobText(ctx, job.Link)
	if err != nil {
		return "", "", classify("fetch", err)
	}
	if job.Title != "" {
		return job.Title + "\n\n" + text, text, nil
	}
	return text, text, nil
}

// parsedJob reuses metadata attached by an earlier run; job metadata does
// not change once parsed.
func (g *Gemini) parsedJob(ctx context.Context, job *types.Job, text string, logger *slog.Logger) (*types.ParsedJob, error) {
	if job.Status == types.JobStatusParsed && job.Parsed != nil {
		parsed := *job.Parsed
		return &parsed, nil
	}

	var parsed types.ParsedJob
	err := g.generateJSON(ctx, "parse job", g.tiers.Parse, "parse-job", promptData{JobText: text}, schemas.ParsedJob, &parsed, logger)
	if err != nil {
		return nil, err
	}
	normalizeParsedJob(&parsed)
	if parsed.JobTitle == "" {
		parsed.JobTitle = job.Title
	}
	if parsed.Company == "" {
		parsed.Company = job.Company
	}
	return &parsed, nil
}

func (g *Gemini) rewriteWork(ctx context.Context, job *types.ParsedJob, doc types.Document, logger *slog.Logger) ([]types.Experience, error) {
	base, err := doc.Work()
	if err != nil {
		return nil, Permanent("rewrite experiences", err)
	}
	if len(base) == 0 {
		return nil, Permanent("rewrite experiences", errors.New("resume has no work experience"))
	}

	data := jobPromptData(job)
	data.Work = indentJSON(base)

	var out struct {
		Work []types.Experience `json:"work"`
	}
	if err := g.generateJSON(ctx, "rewrite experiences", g.tiers.Rewrite, "rewrite-experiences", data, schemas.Work, &out, logger); err != nil {
		return nil, err
	}
	if len(out.Work) != len(base) {
		return nil, Permanent("rewrite experiences",
			fmt.Errorf("model returned %d experiences for %d in the resume", len(out.Work), len(base)))
	}

	// Only the wording changes; identity and dates come from the input.
	merged := make([]types.Experience, len(base))
	for i, b := range base {
		merged[i] = b
		merged[i].Highlights = out.Work[i].Highlights
		if s := strings.TrimSpace(out.Work[i].Summary); s != "" {
			merged[i].Summary = s
		}
	}
	return merged, nil
}

func (g *Gemini) rewriteProjects(ctx context.Context, job *types.ParsedJob, doc types.Document, logger *slog.Logger) ([]types.Project, error) {
	base, err := doc.Projects()
	if err != nil {
		return nil, Permanent("rewrite projects", err)
	}
	if len(base) == 0 {
		return nil, nil
	}

	data := jobPromptData(job)
	data.Projects = indentJSON(base)

	var out struct {
		Projects []types.Project `json:"projects"`
	}
	if err := g.generateJSON(ctx, "rewrite projects", g.tiers.Rewrite, "rewrite-projects", data, schemas.Projects, &out, logger); err != nil {
		return nil, err
	}

	rewritten := make(map[string]types.Project, len(out.Projects))
	for _, p := range out.Projects {
		rewritten[strings.ToLower(strings.TrimSpace(p.Name))] = p
	}
	merged := make([]types.Project, len(base))
	for i, b := range base {
		merged[i] = b
		if p, ok := rewritten[strings.ToLower(strings.TrimSpace(b.Name))]; ok {
			merged[i].Description = p.Description
			merged[i].Highlights = p.Highlights
			if len(p.Keywords) > 0 {
				merged[i].Keywords = p.Keywords
			}
		}
	}
	return merged, nil
}

func (g *Gemini) matchSkills(ctx context.Context, job *types.ParsedJob, doc types.Document, logger *slog.Logger) (types.SkillSet, error) {
	data := jobPromptData(job)
	data.Skills = rawSection(doc, types.SectionSkills)
	data.Work = rawSection(doc, types.SectionWork)

	var out struct {
		Skills types.SkillSet `json:"skills"`
	}
	if err := g.generateJSON(ctx, "match skills", g.tiers.Skills, "match-skills", data, schemas.Skills, &out, logger); err != nil {
		return nil, err
	}
	for category, skills := range out.Skills {
		for i := range skills {
			skills[i].Name = NormalizeSkillName(skills[i].Name)
		}
		if len(skills) == 0 {
			delete(out.Skills, category)
		}
	}
	return out.Skills, nil
}

func (g *Gemini) writeSummary(ctx context.Context, job *types.ParsedJob, doc types.Document, logger *slog.Logger) (string, error) {
	data := jobPromptData(job)
	data.Name = doc.Name()
	data.Work = rawSection(doc, types.SectionWork)
	data.Skills = rawSection(doc, types.SectionSkills)

	prompt, err := prompts.Render(prompts.Tailoring, "write-summary", data)
	if err != nil {
		return "", Permanent("write summary", err)
	}
	start := time.Now()
	text, err := g.client.GenerateContent(ctx, prompt, g.tiers.Summary)
	if err != nil {
		return "", classify("write summary", err)
	}
	logger.Debug("stage complete", "stage", "write summary", "duration_ms", time.Since(start).Milliseconds())

	summary := strings.Trim(strings.TrimSpace(text), `"`)
	if summary == "" {
		return "", Permanent("write summary", llm.ErrEmptyResponse)
	}
	return summary, nil
}

// fullResume rewrites work, projects and skills concurrently, then writes
// the summary from the rewritten content.
func (g *Gemini) fullResume(ctx context.Context, job *types.ParsedJob, doc types.Document, logger *slog.Logger) (types.FullResumeUpdate, error) {
	var update types.FullResumeUpdate

	work, err := doc.Work()
	hasWork := err != nil || len(work) > 0
	eg, egctx := errgroup.WithContext(ctx)
	if hasWork {
		eg.Go(func() error {
			work, err := g.rewriteWork(egctx, job, doc, logger)
			update.Work = work
			return err
		})
	}
	eg.Go(func() error {
		projects, err := g.rewriteProjects(egctx, job, doc, logger)
		update.Projects = projects
		return err
	})
	eg.Go(func() error {
		skills, err := g.matchSkills(egctx, job, doc, logger)
		update.Skills = skills
		return err
	})
	if err := eg.Wait(); err != nil {
		return types.FullResumeUpdate{}, err
	}

	preview := doc.Clone()
	if update.Work != nil {
		if err := preview.SetSection(types.SectionWork, update.Work); err != nil {
			return types.FullResumeUpdate{}, Permanent("merge", err)
		}
	}
	if update.Skills != nil {
		if err := preview.SetSection(types.SectionSkills, update.Skills); err != nil {
			return types.FullResumeUpdate{}, Permanent("merge", err)
		}
	}
	summary, err := g.writeSummary(ctx, job, preview, logger)
	if err != nil {
		return types.FullResumeUpdate{}, err
	}
	update.Summary = summary
	return update, nil
}

// generateJSON renders a prompt, calls the model in JSON mode, validates
// the answer against schema and decodes it into out.
func (g *Gemini) generateJSON(ctx context.Context, stage string, tier llm.ModelTier, key string, data promptData, schema string, out any, logger *slog.Logger) error {
	prompt, err := prompts.Render(prompts.Tailoring, key, data)
	if err != nil {
		return Permanent(stage, err)
	}

	start := time.Now()
	raw, err := g.client.GenerateJSON(ctx, prompt, tier)
	if err != nil {
		return classify(stage, err)
	}
	raw = llm.CleanJSONBlock(raw)
	if err := schemas.Validate(schema, []byte(raw)); err != nil {
		return Permanent(stage, err)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return Permanent(stage, fmt.Errorf("decode model output: %w", err))
	}
	logger.Debug("stage complete", "stage", stage, "tier", string(tier), "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// classify wraps a collaborator error as transient or permanent.
func classify(stage string, err error) error {
	var temp interface{ Temporary() bool }
	if llm.IsTransient(err) || (errors.As(err, &temp) && temp.Temporary()) {
		return Transient(stage, err)
	}
	return Permanent(stage, err)
}

type promptData struct {
	JobText      string
	JobTitle     string
	Company      string
	Requirements string
	Keywords     string
	Name         string
	Work         string
	Projects     string
	Skills       string
}

func jobPromptData(job *types.ParsedJob) promptData {
	reqs := make([]string, 0, len(job.Requirements))
	for _, r := range job.Requirements {
		line := "- " + r.Skill
		if r.Level != "" {
			line += " (" + r.Level + ")"
		}
		reqs = append(reqs, line)
	}
	company := job.Company
	if company == "" {
		company = "the hiring company"
	}
	return promptData{
		JobTitle:     job.JobTitle,
		Company:      company,
		Requirements: strings.Join(reqs, "\n"),
		Keywords:     strings.Join(job.Keywords, ", "),
	}
}

func rawSection(doc types.Document, name string) string {
	raw, ok := doc[name]
	if !ok || len(raw) == 0 {
		return "(none)"
	}
	return string(raw)
}

func indentJSON(v any) string {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "(unavailable)"
	}
	return string(out)
}
