package memory

import (
	"sort"
	"strings"
	"sync"
)

// Fact is a single long-term memory entry: a piece of durable
// knowledge tagged for later retrieval, independent of any particular
// short-term window.
type Fact struct {
	ID      string
	Content string
	Tags    []string
}

// ScoredFact pairs a Fact with its relevance score from SearchFacts.
type ScoredFact struct {
	Fact  Fact
	Score float64
}

// LongTerm is an append-and-search store of Facts. Facts are never
// mutated in place: Forget removes by ID, everything else is additive.
type LongTerm struct {
	mu    sync.Mutex
	facts []Fact
	byID  map[string]int
}

// NewLongTerm creates an empty long-term fact store.
func NewLongTerm() *LongTerm {
	return &LongTerm{byID: make(map[string]int)}
}

// Remember appends a fact, replacing any existing fact with the same ID.
func (l *LongTerm) Remember(f Fact) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if idx, ok := l.byID[f.ID]; ok {
		l.facts[idx] = f
		return
	}
	l.byID[f.ID] = len(l.facts)
	l.facts = append(l.facts, f)
}

// Forget removes the fact with the given ID, if present.
func (l *LongTerm) Forget(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx, ok := l.byID[id]
	if !ok {
		return
	}
	l.facts = append(l.facts[:idx], l.facts[idx+1:]...)
	delete(l.byID, id)
	for id2, i := range l.byID {
		if i > idx {
			l.byID[id2] = i - 1
		}
	}
}

// SearchFacts ranks facts by overlap with query: a tag match scores
// highest, a content-token match next, and a plain substring mention
// (catching multi-word phrases tokenizing would split apart) lowest.
// Results are sorted by score descending; ties are broken newest-first,
// so a recently remembered fact about the same topic surfaces before an
// older one instead of the reverse. At most limit results are returned
// (limit<=0 means unlimited).
func (l *LongTerm) SearchFacts(query string, limit int) []ScoredFact {
	l.mu.Lock()
	defer l.mu.Unlock()

	queryTokens := tokenize(query)
	queryLower := strings.ToLower(strings.TrimSpace(query))
	if len(queryTokens) == 0 && queryLower == "" {
		return nil
	}

	var results []ScoredFact
	for i := len(l.facts) - 1; i >= 0; i-- {
		f := l.facts[i]
		score := scoreFact(f, queryTokens, queryLower)
		if score > 0 {
			results = append(results, ScoredFact{Fact: f, Score: score})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

const (
	tagMatchWeight       = 2.0
	contentMatchWeight   = 1.0
	substringMatchWeight = 0.5
)

func scoreFact(f Fact, queryTokens map[string]bool, queryLower string) float64 {
	var score float64
	for _, tag := range f.Tags {
		if queryTokens[strings.ToLower(tag)] {
			score += tagMatchWeight
		}
	}
	for token := range tokenize(f.Content) {
		if queryTokens[token] {
			score += contentMatchWeight
		}
	}
	if queryLower != "" && strings.Contains(strings.ToLower(f.Content), queryLower) {
		score += substringMatchWeight
	}
	return score
}

func tokenize(s string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f != "" {
			set[f] = true
		}
	}
	return set
}

// Len returns the current fact count.
func (l *LongTerm) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.facts)
}
