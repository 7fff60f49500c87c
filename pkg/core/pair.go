package core

import "strings"

// Pair is a trading pair symbol in BASE/QUOTE form, e.g. "TON/USDT".
type Pair string

// ParsePair validates the symbol shape and returns it as a Pair.
func ParsePair(s string) (Pair, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" || parts[0] == parts[1] {
		return "", ErrUnsupportedPair
	}
	return Pair(s), nil
}

// Base returns the base currency (the asset being traded).
func (p Pair) Base() string {
	if i := strings.IndexByte(string(p), '/'); i > 0 {
		return string(p)[:i]
	}
	return string(p)
}

// Quote returns the quote currency (the asset the base is priced in).
func (p Pair) Quote() string {
	if i := strings.IndexByte(string(p), '/'); i >= 0 {
		return string(p)[i+1:]
	}
	return ""
}

func (p Pair) String() string {
	return string(p)
}

// PairSet is the enumerated set of pairs the exchange accepts. Adding a
// pair is a configuration change; validity is checked on every placement.
type PairSet map[Pair]struct{}

// NewPairSet builds a PairSet from symbol strings, rejecting malformed ones.
func NewPairSet(symbols []string) (PairSet, error) {
	set := make(PairSet, len(symbols))
	for _, s := range symbols {
		p, err := ParsePair(s)
		if err != nil {
			return nil, err
		}
		set[p] = struct{}{}
	}
	return set, nil
}

// Contains reports whether the pair is supported.
func (ps PairSet) Contains(p Pair) bool {
	_, ok := ps[p]
	return ok
}

// Currencies returns the deduplicated set of currencies across all pairs.
func (ps PairSet) Currencies() []string {
	seen := make(map[string]struct{})
	currencies := make([]string, 0, len(ps)*2)
	for p := range ps {
		for _, c := range []string{p.Base(), p.Quote()} {
			if _, ok := seen[c]; !ok {
				seen[c] = struct{}{}
				currencies = append(currencies, c)
			}
		}
	}
	return currencies
}
