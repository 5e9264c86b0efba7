package classifier

import (
	"strings"

	"vigilstream/internal/vigil/domain"
)

const (
	SafeScore    = 0.95
	FlaggedScore = 0.1

	SafeReason    = "Content appears clean."
	FlaggedReason = "Potential sensitive content detected based on metadata keywords."
)

// DefaultDenylist is used when no terms are configured.
var DefaultDenylist = []string{"adult", "violence", "explicit", "nsfw", "sensitive"}

// Classifier maps textual metadata to a sensitivity verdict. Implementations
// must be pure so the pipeline can call them from any goroutine.
type Classifier interface {
	Classify(title, description string) domain.Classification
}

// Keyword flags text containing any denylisted term, case-insensitively.
type Keyword struct {
	terms []string
}

// NewKeyword copies and lowercases terms. Blank terms are dropped, since an
// empty substring would match everything.
func NewKeyword(terms []string) *Keyword {
	k := &Keyword{terms: make([]string, 0, len(terms))}
	for _, term := range terms {
		if term = strings.ToLower(strings.TrimSpace(term)); term != "" {
			k.terms = append(k.terms, term)
		}
	}
	return k
}

func (k *Keyword) Classify(title, description string) domain.Classification {
	text := strings.ToLower(title + " " + description)
	for _, term := range k.terms {
		if strings.Contains(text, term) {
			return domain.Classification{Status: domain.SensitivityFlagged, Reason: FlaggedReason, Score: FlaggedScore}
		}
	}
	return domain.Classification{Status: domain.SensitivitySafe, Reason: SafeReason, Score: SafeScore}
}

// Terms returns a copy of the normalised denylist.
func (k *Keyword) Terms() []string {
	return append([]string(nil), k.terms...)
}
