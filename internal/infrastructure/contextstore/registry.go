// Package contextstore implements L5: a compile-time context-source
// registry plus two retrieval strategies over it — a basic variant that
// concatenates whole files, and a semantic variant that chunks, embeds, and
// ranks by cosine similarity. Grounded on the Python reference's
// Layer5ContextRetriever (original_source pipeline/layer5_context.py), with
// the registry optionally augmented from a YAML override file per the
// domain stack's gopkg.in/yaml.v3 wiring.
package contextstore

import (
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/kellogg/sentrychat/internal/domain/entity"
)

// defaultSources is the compile-time registry, ported from the Python
// reference's CONTEXT_SOURCES tuple and genericized away from any single
// deployment's literal file tree.
var defaultSources = []entity.ContextSourceSpec{
	{Name: "skills", Label: "Skills", Path: "professional/skills.md", Domain: entity.DomainProfessional, Required: true, Priority: 10},
	{Name: "resume", Label: "Resume", Path: "professional/resume.md", Domain: entity.DomainProfessional, Required: true, Priority: 8},
	{Name: "achievements", Label: "Achievements", Path: "professional/achievements.md", Domain: entity.DomainProfessional, Required: false, Priority: 3},

	{Name: "projects_overview", Label: "Projects Overview", Path: "projects/overview.md", Domain: entity.DomainProjects, Required: true, Priority: 10},
	{Name: "flagship_project", Label: "Flagship Project", Path: "projects/flagship_summary.md", Domain: entity.DomainProjects, Required: false, Priority: 5},
	{Name: "research_project", Label: "Research Project", Path: "projects/research_summary.md", Domain: entity.DomainProjects, Required: false, Priority: 4},
	{Name: "side_project", Label: "Side Project", Path: "projects/side_project_summary.md", Domain: entity.DomainProjects, Required: false, Priority: 4},

	{Name: "primary_hobby", Label: "Primary Hobby", Path: "hobbies/primary.md", Domain: entity.DomainHobbies, Required: true, Priority: 10},
	{Name: "hobbies", Label: "Hobbies & Interests", Path: "hobbies/hobbies.md", Domain: entity.DomainHobbies, Required: false, Priority: 5},

	{Name: "problem_solving", Label: "Problem Solving Ethos", Path: "philosophy/professional_ethos.md", Domain: entity.DomainPhilosophy, Required: true, Priority: 10},
	{Name: "values", Label: "Professional Philosophy", Path: "philosophy/professional_philosophy.md", Domain: entity.DomainPhilosophy, Required: false, Priority: 5},

	{Name: "contact", Label: "Contact Info", Path: "meta/contact.md", Domain: entity.DomainLinkedIn, Required: true, Priority: 10},
	{Name: "resume_linkedin", Label: "Resume", Path: "professional/resume.md", Domain: entity.DomainLinkedIn, Required: false, Priority: 5},

	{Name: "about_chat", Label: "About Chat", Path: "meta/about_chat.md", Domain: entity.DomainMeta, Required: true, Priority: 10},
	{Name: "portfolio_overview", Label: "Portfolio Overview", Path: "meta/portfolio_overview.md", Domain: entity.DomainMeta, Required: false, Priority: 5},
}

// overrideFile is the YAML shape an operator can drop beside the context
// root to add registry entries without a recompile.
type overrideFile struct {
	Sources []entity.ContextSourceSpec `yaml:"sources"`
}

// Registry groups the context-source table by domain, required sources
// first, then by descending priority, matching the Python reference's
// _get_sources_for_domain ordering.
type Registry struct {
	byDomain map[entity.Domain][]entity.ContextSourceSpec
}

// NewRegistry builds a Registry from the compile-time table. overridePath,
// if non-empty and present on disk, is parsed as YAML and its sources are
// appended before grouping.
func NewRegistry(overridePath string) (*Registry, error) {
	sources := append([]entity.ContextSourceSpec(nil), defaultSources...)

	if overridePath != "" {
		if data, err := os.ReadFile(overridePath); err == nil {
			var ov overrideFile
			if err := yaml.Unmarshal(data, &ov); err != nil {
				return nil, err
			}
			sources = append(sources, ov.Sources...)
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	r := &Registry{byDomain: make(map[entity.Domain][]entity.ContextSourceSpec)}
	for _, s := range sources {
		r.byDomain[s.Domain] = append(r.byDomain[s.Domain], s)
	}
	for d := range r.byDomain {
		group := r.byDomain[d]
		sort.SliceStable(group, func(i, j int) bool {
			if group[i].Required != group[j].Required {
				return group[i].Required
			}
			return group[i].Priority > group[j].Priority
		})
		r.byDomain[d] = group
	}
	return r, nil
}

// SourcesFor returns the ordered source list for a domain (required first,
// descending priority within each group).
func (r *Registry) SourcesFor(domain entity.Domain) []entity.ContextSourceSpec {
	return r.byDomain[domain]
}

// AvailableSources reports every registered source name grouped by domain,
// used by the health endpoint.
func (r *Registry) AvailableSources() map[entity.Domain][]string {
	out := make(map[entity.Domain][]string, len(r.byDomain))
	for d, sources := range r.byDomain {
		names := make([]string, len(sources))
		for i, s := range sources {
			names[i] = s.Name
		}
		out[d] = names
	}
	return out
}
