package domain

import "strings"

// Pair is an ordered tuple of two instruments evaluated for spread trading.
// SymbolA is the dependent leg of the hedge regression, SymbolB the hedge leg.
type Pair struct {
	SymbolA string `json:"symbol_a"`
	SymbolB string `json:"symbol_b"`
}

// NewPair creates a pair from two symbols (order preserved).
func NewPair(a, b string) Pair {
	return Pair{SymbolA: a, SymbolB: b}
}

// ParsePair parses "A/B" into a pair. Returns false if the format is invalid.
func ParsePair(s string) (Pair, bool) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 2 {
		return Pair{}, false
	}
	a, b := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	if a == "" || b == "" || a == b {
		return Pair{}, false
	}
	return Pair{SymbolA: a, SymbolB: b}, true
}

// Key returns the canonical "A/B" identifier.
func (p Pair) Key() string {
	return p.SymbolA + "/" + p.SymbolB
}

// String implements fmt.Stringer.
func (p Pair) String() string {
	return p.Key()
}

// Valid reports whether both legs are set and distinct.
func (p Pair) Valid() bool {
	return p.SymbolA != "" && p.SymbolB != "" && p.SymbolA != p.SymbolB
}

// Contains reports whether symbol is one of the legs.
func (p Pair) Contains(symbol string) bool {
	return p.SymbolA == symbol || p.SymbolB == symbol
}

// SharesLeg reports whether the two pairs have at least one symbol in common.
func (p Pair) SharesLeg(other Pair) bool {
	return p.Contains(other.SymbolA) || p.Contains(other.SymbolB)
}

// SameLegs reports whether both pairs hold the same two symbols in any order.
func (p Pair) SameLegs(other Pair) bool {
	return (p.SymbolA == other.SymbolA && p.SymbolB == other.SymbolB) ||
		(p.SymbolA == other.SymbolB && p.SymbolB == other.SymbolA)
}
