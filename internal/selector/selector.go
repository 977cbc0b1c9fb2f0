// Package selector proposes candidate pairs for the scan orchestrator.
package selector

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"

	"pair-agent/internal/domain"
)

// ErrEmptyUniverse is returned when no pair can be formed.
var ErrEmptyUniverse = errors.New("selector: fewer than two symbols")

// RandomSelector draws uniformly random pairs from a symbol universe.
type RandomSelector struct {
	mu      sync.Mutex
	symbols []string
	rng     *rand.Rand
}

// NewRandomSelector creates a selector over symbols. Duplicate symbols are dropped.
func NewRandomSelector(symbols []string, seed int64) *RandomSelector {
	return &RandomSelector{
		symbols: dedupe(symbols),
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// NextCandidates returns up to count distinct pairs with distinct legs.
// Fewer are returned when the universe cannot supply count distinct pairs.
func (s *RandomSelector) NextCandidates(ctx context.Context, count int) ([]domain.Pair, error) {
	if len(s.symbols) < 2 {
		return nil, ErrEmptyUniverse
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	maxPairs := len(s.symbols) * (len(s.symbols) - 1) / 2
	if count > maxPairs {
		count = maxPairs
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, count)
	pairs := make([]domain.Pair, 0, count)
	for len(pairs) < count {
		i := s.rng.Intn(len(s.symbols))
		j := s.rng.Intn(len(s.symbols) - 1)
		if j >= i {
			j++
		}
		p := domain.NewPair(s.symbols[i], s.symbols[j])
		key := unorderedKey(p)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		pairs = append(pairs, p)
	}
	return pairs, nil
}

// CategorySelector pairs symbols only with others in the same category
// (e.g. layer-1s with layer-1s). Categories are visited round-robin.
type CategorySelector struct {
	mu         sync.Mutex
	categories []category
	next       int
	rng        *rand.Rand
}

type category struct {
	name    string
	symbols []string
}

// NewCategorySelector creates a selector from category name to symbols.
// Categories with fewer than two symbols are ignored.
func NewCategorySelector(categories map[string][]string, seed int64) *CategorySelector {
	names := make([]string, 0, len(categories))
	for name := range categories {
		names = append(names, name)
	}
	sort.Strings(names)

	s := &CategorySelector{rng: rand.New(rand.NewSource(seed))}
	for _, name := range names {
		syms := dedupe(categories[name])
		if len(syms) >= 2 {
			s.categories = append(s.categories, category{name: name, symbols: syms})
		}
	}
	return s
}

// Categories returns the usable category names in visiting order.
func (s *CategorySelector) Categories() []string {
	out := make([]string, len(s.categories))
	for i, c := range s.categories {
		out[i] = c.name
	}
	return out
}

// NextCandidates returns up to count distinct same-category pairs.
func (s *CategorySelector) NextCandidates(ctx context.Context, count int) ([]domain.Pair, error) {
	if len(s.categories) == 0 {
		return nil, ErrEmptyUniverse
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, c := range s.categories {
		total += len(c.symbols) * (len(c.symbols) - 1) / 2
	}
	if count > total {
		count = total
	}

	seen := make(map[string]struct{}, count)
	pairs := make([]domain.Pair, 0, count)
	for len(pairs) < count {
		c := s.categories[s.next%len(s.categories)]
		s.next++

		i := s.rng.Intn(len(c.symbols))
		j := s.rng.Intn(len(c.symbols) - 1)
		if j >= i {
			j++
		}
		p := domain.NewPair(c.symbols[i], c.symbols[j])
		key := unorderedKey(p)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		pairs = append(pairs, p)
	}
	return pairs, nil
}

func unorderedKey(p domain.Pair) string {
	if p.SymbolA < p.SymbolB {
		return p.SymbolA + "|" + p.SymbolB
	}
	return p.SymbolB + "|" + p.SymbolA
}

func dedupe(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
