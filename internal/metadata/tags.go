package metadata

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// confidenceDivisor normalizes an accumulated tag score into [0,1]:
	// confidence = min(score/8, 1).
	confidenceDivisor = 8.0

	// confidenceFloor is the lowest acceptance bar regardless of how
	// permissive the configured threshold is.
	confidenceFloor = 0.2

	// thresholdScale relaxes the configured threshold: a tag passes at
	// 60% of it (but never below the floor).
	thresholdScale = 0.6

	// minTagScore rejects high-confidence-but-trivial matches: however
	// the confidence works out, a tag needs strictly more than 0.5
	// accumulated weight.
	minTagScore = 0.5
)

// Rule maps a set of text patterns to a tag. Each occurrence of a
// pattern in the document text adds the rule's weight to the tag score.
type Rule struct {
	Tag      string   `yaml:"tag"`
	Patterns []string `yaml:"patterns"`
	Weight   float64  `yaml:"weight"`
}

// Vocabulary is the tag rule set loaded from the YAML rules file.
type Vocabulary struct {
	Rules []Rule `yaml:"rules"`
}

// Suggestion is an accepted tag with its raw score and normalized
// confidence.
type Suggestion struct {
	Tag        string  `json:"tag"`
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
}

// LoadVocabulary reads tag rules from a YAML file.
func LoadVocabulary(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tag rules: %w", err)
	}

	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parsing tag rules: %w", err)
	}

	for i, r := range v.Rules {
		if r.Tag == "" {
			return nil, fmt.Errorf("tag rule %d has no tag name", i+1)
		}

		if r.Weight <= 0 {
			return nil, fmt.Errorf("tag rule %q has non-positive weight", r.Tag)
		}
	}

	return &v, nil
}

// Suggest scores every rule against the text and returns accepted tags,
// highest score first, capped at max. threshold is the configured
// confidence threshold in [0,1].
//
// Acceptance is a two-part gate: confidence must reach
// max(confidenceFloor, thresholdScale*threshold) AND the raw score must
// exceed minTagScore. The second clause rejects tags whose confidence
// clears a permissive threshold on a single trivial match.
func (v *Vocabulary) Suggest(text string, threshold float64, max int) []Suggestion {
	if v == nil || max <= 0 {
		return nil
	}

	lower := strings.ToLower(text)
	bar := confidenceFloor

	if scaled := thresholdScale * threshold; scaled > bar {
		bar = scaled
	}

	var out []Suggestion

	for _, r := range v.Rules {
		score := 0.0

		for _, p := range r.Patterns {
			p = strings.ToLower(strings.TrimSpace(p))
			if p == "" {
				continue
			}

			score += r.Weight * float64(strings.Count(lower, p))
		}

		confidence := score / confidenceDivisor
		if confidence > 1 {
			confidence = 1
		}

		if confidence >= bar && score > minTagScore {
			out = append(out, Suggestion{Tag: r.Tag, Score: score, Confidence: confidence})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}

		return out[i].Tag < out[j].Tag
	})

	if len(out) > max {
		out = out[:max]
	}

	return out
}
