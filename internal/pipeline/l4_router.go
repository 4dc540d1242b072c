package pipeline

import (
	"strings"

	"github.com/kellogg/sentrychat/internal/domain/entity"
	"github.com/kellogg/sentrychat/internal/domain/stage"
)

// topicDomainMap is the fixed topic -> domain table (§4.5 step 2). Keys are
// already normalized (lowercase, spaces replaced with underscores).
var topicDomainMap = map[string]entity.Domain{
	"work_experience": entity.DomainProfessional,
	"skills":          entity.DomainProfessional,
	"education":       entity.DomainProfessional,
	"achievements":    entity.DomainProfessional,
	"career":          entity.DomainProfessional,
	"resume":          entity.DomainProfessional,
	"experience":      entity.DomainProfessional,

	"projects":  entity.DomainProjects,
	"portfolio": entity.DomainProjects,
	"github":    entity.DomainProjects,
	"code":      entity.DomainProjects,
	"technical": entity.DomainProjects,

	"hobbies":        entity.DomainHobbies,
	"volunteering":   entity.DomainHobbies,
	"first_robotics": entity.DomainHobbies,
	"interests":      entity.DomainHobbies,
	"personal":       entity.DomainHobbies,

	"philosophy":      entity.DomainPhilosophy,
	"approach":        entity.DomainPhilosophy,
	"values":          entity.DomainPhilosophy,
	"working_style":   entity.DomainPhilosophy,
	"problem_solving": entity.DomainPhilosophy,

	"contact":      entity.DomainLinkedIn,
	"linkedin":     entity.DomainLinkedIn,
	"networking":   entity.DomainLinkedIn,
	"connect":      entity.DomainLinkedIn,
	"hire":         entity.DomainLinkedIn,
	"hiring":       entity.DomainLinkedIn,
	"message":      entity.DomainLinkedIn,
	"email":        entity.DomainLinkedIn,
	"reach_out":    entity.DomainLinkedIn,
	"leave_message": entity.DomainLinkedIn,
	"send_message":  entity.DomainLinkedIn,

	"chat_system":        entity.DomainMeta,
	"about_chat":          entity.DomainMeta,
	"how_does_this_work":  entity.DomainMeta,
}

// baseKeywordHints is the fixed keyword -> domain table (§4.5 step 3),
// scanned as case-insensitive substrings against entities and the original
// message. The configured project names are not part of this table: Route
// checks them separately, ahead of the topic table, so the invariant in §4.5
// holds regardless of what the topic classifier assigned.
var baseKeywordHints = []struct {
	keyword string
	domain  entity.Domain
}{
	{"kohler", entity.DomainProfessional},
	{"work", entity.DomainProfessional},
	{"job", entity.DomainProfessional},
	{"python", entity.DomainProfessional},
	{"programming", entity.DomainProfessional},
	{"engineer", entity.DomainProfessional},

	{"project", entity.DomainProjects},
	{"github", entity.DomainProjects},
	{"portfolio", entity.DomainProjects},
	{"built", entity.DomainProjects},
	{"created", entity.DomainProjects},

	{"robot", entity.DomainHobbies},
	{"first", entity.DomainHobbies},
	{"lego", entity.DomainHobbies},
	{"volunteer", entity.DomainHobbies},
	{"food bank", entity.DomainHobbies},

	{"approach", entity.DomainPhilosophy},
	{"think", entity.DomainPhilosophy},
	{"philosophy", entity.DomainPhilosophy},
	{"values", entity.DomainPhilosophy},

	{"linkedin", entity.DomainLinkedIn},
	{"contact", entity.DomainLinkedIn},
	{"reach", entity.DomainLinkedIn},
	{"connect", entity.DomainLinkedIn},
	{"message", entity.DomainLinkedIn},
	{"email", entity.DomainLinkedIn},
	{"tell kellogg", entity.DomainLinkedIn},
	{"tell kel", entity.DomainLinkedIn},
	{"leave a message", entity.DomainLinkedIn},
	{"send", entity.DomainLinkedIn},

	{"chat", entity.DomainMeta},
	{"system", entity.DomainMeta},
	{"ai", entity.DomainMeta},
	{"bot", entity.DomainMeta},
}

// Router is L4: deterministic mapping from intent to domain (§4.5). Grounded
// on layer4_route.py.
type Router struct {
	projectNames []string
	hints        []struct {
		keyword string
		domain  entity.Domain
	}
}

// NewRouter builds a router from the configured project names and the fixed
// base keyword table. Project names are checked ahead of the topic table so
// a specific project name always routes to "projects" even when the topic
// classifier assigns something else, e.g. "chat_system" (§4.5's invariant).
func NewRouter(projectNames []string) *Router {
	names := make([]string, 0, len(projectNames))
	for _, name := range projectNames {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" {
			names = append(names, name)
		}
	}
	return &Router{projectNames: names, hints: baseKeywordHints}
}

// matchesProjectName reports whether any configured project name appears as
// a substring of text (case-insensitive).
func (r *Router) matchesProjectName(text string) bool {
	lower := strings.ToLower(text)
	for _, name := range r.projectNames {
		if strings.Contains(lower, name) {
			return true
		}
	}
	return false
}

func normalizeTopic(topic entity.Topic) string {
	return strings.ReplaceAll(strings.ToLower(string(topic)), " ", "_")
}

func anyEntityMatchesProjectName(r *Router, entities []string) bool {
	for _, e := range entities {
		if r.matchesProjectName(e) {
			return true
		}
	}
	return false
}

// Route maps intent (and, as keyword fallback, the original message) to a
// domain. Always passes: out-of-scope is a routed outcome, not a failure
// (§4.5 step 5).
func (r *Router) Route(intent entity.Intent, originalMessage string) L4Result {
	if intent.QuestionType == entity.QuestionGreeting {
		return L4Result{Result: stage.Passed(StatusL4Routed), Domain: entity.DomainMeta, Confidence: 1.0}
	}

	if r.matchesProjectName(originalMessage) || anyEntityMatchesProjectName(r, intent.Entities) {
		confidence := intent.Confidence + 0.1
		if confidence > 0.8 {
			confidence = 0.8
		}
		return L4Result{Result: stage.Passed(StatusL4Routed), Domain: entity.DomainProjects, Confidence: confidence}
	}

	if domain, ok := topicDomainMap[normalizeTopic(intent.Topic)]; ok {
		return L4Result{Result: stage.Passed(StatusL4Routed), Domain: domain, Confidence: intent.Confidence}
	}

	matches := make(map[entity.Domain]int)
	order := make([]entity.Domain, 0, 4)
	record := func(domain entity.Domain) {
		if _, seen := matches[domain]; !seen {
			order = append(order, domain)
		}
		matches[domain]++
	}

	for _, e := range intent.Entities {
		lower := strings.ToLower(e)
		for _, h := range r.hints {
			if strings.Contains(lower, h.keyword) {
				record(h.domain)
			}
		}
	}
	if originalMessage != "" {
		lower := strings.ToLower(originalMessage)
		for _, h := range r.hints {
			if strings.Contains(lower, h.keyword) {
				record(h.domain)
			}
		}
	}

	if len(matches) > 0 {
		best := order[0]
		for _, d := range order {
			if matches[d] > matches[best] {
				best = d
			}
		}
		confidence := intent.Confidence + float64(matches[best])*0.1
		if confidence > 0.8 {
			confidence = 0.8
		}
		return L4Result{Result: stage.Passed(StatusL4Routed), Domain: best, Confidence: confidence}
	}

	if intent.Topic == entity.TopicGeneral && intent.Confidence >= 0.5 {
		return L4Result{Result: stage.Passed(StatusL4Routed), Domain: entity.DomainProfessional, Confidence: 0.5}
	}

	return L4Result{
		Result: stage.Result{
			Passed: true,
			Status: StatusL4OutOfScope,
			ErrorMessage: "I'm designed to answer questions about Kellogg's work and projects. " +
				"For other topics, I'd recommend a general AI assistant.",
		},
		Domain:     entity.DomainOutOfScope,
		Confidence: 0,
	}
}
