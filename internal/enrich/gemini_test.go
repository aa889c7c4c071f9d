package enrich

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jonathan/resume-tailor/internal/llm"
	"github.com/jonathan/resume-tailor/internal/types"
)

const (
	parsedJobJSON = `{"company":"Acme","job_title":"Backend Engineer","requirements":[{"skill":"golang","level":"senior"},{"skill":"Go"},{"skill":"k8s"}],"keywords":["Go","go","Kubernetes"]}`
	workJSON      = "```json\n" + `{"work":[{"name":"Wrong Co","position":"Wrong","highlights":["Built Go services on Kubernetes"]}]}` + "\n```"
	projectsJSON  = `{"projects":[{"name":"tracer","description":"Distributed tracing in Go","highlights":["Used by 40 teams"]}]}`
	skillsJSON    = `{"skills":{"languages":[{"name":"golang","level":5}],"empty":[]}}`
)

// fakeClient answers prompts by matching a substring of the prompt.
type fakeClient struct {
	mu      sync.Mutex
	replies map[string]string
	errs    map[string]error
	prompts []string
}

func (f *fakeClient) reply(prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	for marker, err := range f.errs {
		if strings.Contains(prompt, marker) {
			return "", err
		}
	}
	for marker, out := range f.replies {
		if strings.Contains(prompt, marker) {
			return out, nil
		}
	}
	return "", errors.New("unexpected prompt")
}

func (f *fakeClient) GenerateContent(_ context.Context, prompt string, _ llm.ModelTier) (string, error) {
	return f.reply(prompt)
}

func (f *fakeClient) GenerateJSON(_ context.Context, prompt string, _ llm.ModelTier) (string, error) {
	return f.reply(prompt)
}

func (f *fakeClient) Close() error { return nil }

func (f *fakeClient) count(marker string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.prompts {
		if strings.Contains(p, marker) {
			n++
		}
	}
	return n
}

const (
	markParse    = "Extract structured information"
	markWork     = "Rewrite the highlights"
	markProjects = "Rewrite the description and highlights"
	markSkills   = "produce the skills section"
	markSummary  = "Write a professional summary"
)

func newFakeClient() *fakeClient {
	return &fakeClient{
		replies: map[string]string{
			markParse:    parsedJobJSON,
			markWork:     workJSON,
			markProjects: projectsJSON,
			markSkills:   skillsJSON,
			markSummary:  `"Backend engineer with eight years of Go."`,
		},
		errs: map[string]error{},
	}
}

type fakeFetcher struct {
	text string
	err  error
	urls []string
}

func (f *fakeFetcher) JobText(_ context.Context, url string) (string, error) {
	f.urls = append(f.urls, url)
	return f.text, f.err
}

type temporaryError struct{}

func (temporaryError) Error() string   { return "connection reset" }
func (temporaryError) Temporary() bool { return true }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testResume(t *testing.T) *types.Resume {
	t.Helper()
	doc, err := types.ParseDocument([]byte(`{
		"basics": {"name": "Jane Doe", "summary": "old"},
		"work": [{"id": "w1", "name": "Initech", "position": "Engineer", "startDate": "2019-01", "highlights": ["Wrote code"]}],
		"skills": {"languages": [{"name": "Go", "level": 4}]},
		"activities": {"projects": [{"name": "Tracer", "description": "old"}], "awards": ["x"]},
		"education": [{"institution": "MIT"}]
	}`))
	require.NoError(t, err)
	return &types.Resume{ID: "r1", Content: doc, IsRaw: true}
}

func textJob() *types.Job {
	return &types.Job{ID: "j1", Title: "Backend Engineer", Company: "Acme", RawText: "We need Go and Kubernetes.", Status: types.JobStatusRaw}
}

func TestGemini_Experiences(t *testing.T) {
	client := newFakeClient()
	g := NewGemini(client, nil, Tiers{}, testLogger())

	res, err := g.Enrich(context.Background(), textJob(), testResume(t), types.ModeExperiences)
	require.NoError(t, err)

	update, ok := res.Update.(types.ExperiencesUpdate)
	require.True(t, ok)
	require.Len(t, update.Work, 1)
	assert.Equal(t, "w1", update.Work[0].ID)
	assert.Equal(t, "Initech", update.Work[0].Name)
	assert.Equal(t, "Engineer", update.Work[0].Position)
	assert.Equal(t, "2019-01", update.Work[0].StartDate)
	assert.Equal(t, []string{"Built Go services on Kubernetes"}, update.Work[0].Highlights)

	assert.Equal(t, "Backend Engineer", res.Job.JobTitle)
	assert.Equal(t, []string{"go", "kubernetes"}, res.Job.Keywords)
	require.Len(t, res.Job.Requirements, 2)
	assert.Equal(t, "Go", res.Job.Requirements[0].Skill)
	assert.Equal(t, "senior", res.Job.Requirements[0].Level)
	assert.Equal(t, "Kubernetes", res.Job.Requirements[1].Skill)
	assert.Empty(t, res.JobText)

	assert.Equal(t, 0, client.count(markSummary))
}

func TestGemini_Summary(t *testing.T) {
	client := newFakeClient()
	g := NewGemini(client, nil, Tiers{}, testLogger())

	res, err := g.Enrich(context.Background(), textJob(), testResume(t), types.ModeSummary)
	require.NoError(t, err)

	update, ok := res.Update.(types.SummaryUpdate)
	require.True(t, ok)
	assert.Equal(t, "Backend engineer with eight years of Go.", update.Summary)
	assert.Equal(t, 0, client.count(markWork))
}

func TestGemini_FullResume(t *testing.T) {
	client := newFakeClient()
	g := NewGemini(client, nil, Tiers{}, testLogger())
	resume := testResume(t)

	res, err := g.Enrich(context.Background(), textJob(), resume, types.ModeResume)
	require.NoError(t, err)

	update, ok := res.Update.(types.FullResumeUpdate)
	require.True(t, ok)
	assert.NotEmpty(t, update.Summary)
	require.Len(t, update.Work, 1)
	require.Len(t, update.Projects, 1)
	assert.Equal(t, "Tracer", update.Projects[0].Name)
	assert.Equal(t, "Distributed tracing in Go", update.Projects[0].Description)
	assert.Equal(t, types.SkillSet{"languages": {{Name: "Go", Level: 5}}}, update.Skills)

	doc, err := update.Apply(resume.Content)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"institution": "MIT"}]`, string(doc[types.SectionEducation]))
	assert.Contains(t, string(doc[types.SectionActivities]), `"awards"`)

	// The summary is written from the rewritten experience.
	client.mu.Lock()
	defer client.mu.Unlock()
	var summaryPrompt string
	for _, p := range client.prompts {
		if strings.Contains(p, markSummary) {
			summaryPrompt = p
		}
	}
	assert.Contains(t, summaryPrompt, "Built Go services on Kubernetes")
	assert.Contains(t, summaryPrompt, "Jane Doe")
}

func TestGemini_ReusesParsedJob(t *testing.T) {
	client := newFakeClient()
	g := NewGemini(client, nil, Tiers{}, testLogger())

	job := textJob()
	job.Status = types.JobStatusParsed
	job.Parsed = &types.ParsedJob{JobTitle: "Staff Engineer", Company: "Acme", Keywords: []string{"go"}}

	res, err := g.Enrich(context.Background(), job, testResume(t), types.ModeSummary)
	require.NoError(t, err)
	assert.Equal(t, "Staff Engineer", res.Job.JobTitle)
	assert.Equal(t, 0, client.count(markParse))
}

func TestGemini_FetchesLinkedJob(t *testing.T) {
	client := newFakeClient()
	fetcher := &fakeFetcher{text: "Senior Go role, remote."}
	g := NewGemini(client, fetcher, Tiers{}, testLogger())

	job := &types.Job{ID: "j2", Link: "https://boards.greenhouse.io/acme/jobs/1", Status: types.JobStatusRaw}
	res, err := g.Enrich(context.Background(), job, testResume(t), types.ModeSummary)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://boards.greenhouse.io/acme/jobs/1"}, fetcher.urls)
	assert.Equal(t, "Senior Go role, remote.", res.JobText)
}

func TestGemini_Errors(t *testing.T) {
	tests := []struct {
		name      string
		job       *types.Job
		fetcher   JobFetcher
		mode      types.ContentMode
		setup     func(c *fakeClient)
		transient bool
		stage     string
	}{
		{
			name:  "job without text or link",
			job:   &types.Job{ID: "j"},
			mode:  types.ModeSummary,
			stage: "fetch",
		},
		{
			name:  "link without fetcher",
			job:   &types.Job{ID: "j", Link: "https://example.com/job"},
			mode:  types.ModeSummary,
			stage: "fetch",
		},
		{
			name:      "temporary fetch failure",
			job:       &types.Job{ID: "j", Link: "https://example.com/job"},
			fetcher:   &fakeFetcher{err: temporaryError{}},
			mode:      types.ModeSummary,
			transient: true,
			stage:     "fetch",
		},
		{
			name: "model unavailable",
			job:  textJob(),
			mode: types.ModeSummary,
			setup: func(c *fakeClient) {
				c.errs[markParse] = status.Error(codes.Unavailable, "overloaded")
			},
			transient: true,
			stage:     "parse job",
		},
		{
			name: "parse output fails schema",
			job:  textJob(),
			mode: types.ModeSummary,
			setup: func(c *fakeClient) {
				c.replies[markParse] = `{"company":"Acme"}`
			},
			stage: "parse job",
		},
		{
			name: "experience count mismatch",
			job:  textJob(),
			mode: types.ModeExperiences,
			setup: func(c *fakeClient) {
				c.replies[markWork] = `{"work":[{"name":"A","highlights":[]},{"name":"B","highlights":[]}]}`
			},
			stage: "rewrite experiences",
		},
		{
			name: "empty summary",
			job:  textJob(),
			mode: types.ModeSummary,
			setup: func(c *fakeClient) {
				c.replies[markSummary] = "  "
			},
			stage: "write summary",
		},
		{
			name:  "unknown mode",
			job:   textJob(),
			mode:  types.ContentMode("cover_letter"),
			stage: "input",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newFakeClient()
			if tt.setup != nil {
				tt.setup(client)
			}
			g := NewGemini(client, tt.fetcher, Tiers{}, testLogger())

			_, err := g.Enrich(context.Background(), tt.job, testResume(t), tt.mode)
			require.Error(t, err)

			var pe *PipelineError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.stage, pe.Stage)
			assert.Equal(t, tt.transient, IsTransient(err))
		})
	}
}

func TestGemini_EmptyResume(t *testing.T) {
	g := NewGemini(newFakeClient(), nil, Tiers{}, testLogger())
	_, err := g.Enrich(context.Background(), textJob(), &types.Resume{ID: "r"}, types.ModeSummary)
	require.Error(t, err)
	assert.False(t, IsTransient(err))
}

func TestNormalizeSkillName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"golang", "Go"},
		{" K8s ", "Kubernetes"},
		{"postgres", "PostgreSQL"},
		{"terraform", "Terraform"},
		{"machine learning", "machine learning"},
		{"gRPC", "gRPC"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeSkillName(tt.in))
		})
	}
}
