package scheduler

import (
	"strings"

	"coordline/internal/domain"
)

// Classifier infers work types for an item. Swap it to change how items are
// read without touching window scoring.
type Classifier interface {
	Classify(item domain.WorkItem) []WorkType
}

// KeywordRule maps any of its keywords to a work type.
type KeywordRule struct {
	Keywords []string
	Type     WorkType
}

// KeywordClassifier matches lowercase substrings of title and description.
type KeywordClassifier struct {
	Rules []KeywordRule
}

func DefaultClassifier() KeywordClassifier {
	return KeywordClassifier{Rules: []KeywordRule{
		{Keywords: []string{"plan", "design"}, Type: WorkPlanning},
		{Keywords: []string{"create", "build"}, Type: WorkCreation},
		{Keywords: []string{"review", "analyze"}, Type: WorkReview},
		{Keywords: []string{"collaborate", "team"}, Type: WorkTeamwork},
	}}
}

func (k KeywordClassifier) Classify(item domain.WorkItem) []WorkType {
	text := strings.ToLower(item.Title + " " + item.Description)
	var out []WorkType
	for _, rule := range k.Rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(text, kw) {
				out = append(out, rule.Type)
				break
			}
		}
	}
	return out
}
