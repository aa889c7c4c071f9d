package enrich

import (
	"strings"

	"github.com/jonathan/resume-tailor/internal/types"
)

// skillAliases maps common spellings to one canonical skill name.
var skillAliases = map[string]string{
	"golang":     "Go",
	"go lang":    "Go",
	"javascript": "JavaScript",
	"js":         "JavaScript",
	"typescript": "TypeScript",
	"ts":         "TypeScript",
	"k8s":        "Kubernetes",
	"kubernetes": "Kubernetes",
	"postgres":   "PostgreSQL",
	"postgresql": "PostgreSQL",
	"react.js":   "React",
	"reactjs":    "React",
	"vue.js":     "Vue",
	"vuejs":      "Vue",
	"node.js":    "Node.js",
	"nodejs":     "Node.js",
}

// NormalizeSkillName returns the canonical spelling of a skill. Unknown
// lowercase single words get an initial capital; anything else is kept.
func NormalizeSkillName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if canonical, ok := skillAliases[strings.ToLower(name)]; ok {
		return canonical
	}
	if name == strings.ToLower(name) && !strings.Contains(name, " ") {
		return strings.ToUpper(name[:1]) + name[1:]
	}
	return name
}

func normalizeParsedJob(job *types.ParsedJob) {
	job.Company = strings.TrimSpace(job.Company)
	job.JobTitle = strings.TrimSpace(job.JobTitle)
	job.Requirements = normalizeRequirements(job.Requirements)
	job.NiceToHaves = normalizeRequirements(job.NiceToHaves)

	seen := make(map[string]bool, len(job.Keywords))
	keywords := make([]string, 0, len(job.Keywords))
	for _, k := range job.Keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" && !seen[k] {
			seen[k] = true
			keywords = append(keywords, k)
		}
	}
	job.Keywords = keywords
}

// normalizeRequirements canonicalizes skill names and merges duplicates,
// keeping the first level and evidence seen.
func normalizeRequirements(reqs []types.Requirement) []types.Requirement {
	out := make([]types.Requirement, 0, len(reqs))
	index := make(map[string]int, len(reqs))
	for _, r := range reqs {
		r.Skill = NormalizeSkillName(r.Skill)
		if r.Skill == "" {
			continue
		}
		key := strings.ToLower(r.Skill)
		if i, ok := index[key]; ok {
			if out[i].Level == "" {
				out[i].Level = r.Level
			}
			if out[i].Evidence == "" {
				out[i].Evidence = r.Evidence
			}
			continue
		}
		index[key] = len(out)
		out = append(out, r)
	}
	return out
}
