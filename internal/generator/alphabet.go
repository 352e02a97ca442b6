package generator

import (
	"sort"
)

// Code point bounds of the alphabets involved.
const (
	printableLo = 32
	printableHi = 126
	extendedLo  = 0
	extendedHi  = 0xFFFF

	surrogateLo = 0xD800
	surrogateHi = 0xDFFF
)

// Alphabet is a set of code points stored as sorted, non-overlapping inclusive ranges.
type Alphabet struct {
	ranges [][2]rune
}

// NewAlphabet returns an alphabet holding [lo, hi].
func NewAlphabet(lo, hi rune) *Alphabet {
	a := &Alphabet{}
	return a.Add(lo, hi)
}

// DefaultAlphabet is the set "." and negated classes draw from: the printable ASCII
// default with the printable range removed and the whole basic multilingual plane added.
// Surrogates are dropped because they have no UTF-8 encoding.
func DefaultAlphabet() *Alphabet {
	return NewAlphabet(printableLo, printableHi).
		Remove(printableLo, printableHi).
		Add(extendedLo, extendedHi).
		Remove(surrogateLo, surrogateHi)
}

// Add inserts [lo, hi] and returns the receiver.
func (a *Alphabet) Add(lo, hi rune) *Alphabet {
	if lo > hi {
		return a
	}
	merged := append(a.ranges, [2]rune{lo, hi})
	sort.Slice(merged, func(i, j int) bool { return merged[i][0] < merged[j][0] })

	out := merged[:0:0]
	for _, r := range merged {
		if n := len(out); n > 0 && r[0] <= out[n-1][1]+1 {
			if r[1] > out[n-1][1] {
				out[n-1][1] = r[1]
			}
			continue
		}
		out = append(out, r)
	}
	a.ranges = out
	return a
}

// Remove deletes [lo, hi] and returns the receiver.
func (a *Alphabet) Remove(lo, hi rune) *Alphabet {
	if lo > hi {
		return a
	}
	var out [][2]rune
	for _, r := range a.ranges {
		if r[1] < lo || r[0] > hi {
			out = append(out, r)
			continue
		}
		if r[0] < lo {
			out = append(out, [2]rune{r[0], lo - 1})
		}
		if r[1] > hi {
			out = append(out, [2]rune{hi + 1, r[1]})
		}
	}
	a.ranges = out
	return a
}

// Intersect returns the ranges of a flat lo/hi pair list (as produced by regexp/syntax)
// that fall inside the alphabet.
func (a *Alphabet) Intersect(pairs []rune) [][2]rune {
	var out [][2]rune
	for i := 0; i+1 < len(pairs); i += 2 {
		lo, hi := pairs[i], pairs[i+1]
		for _, r := range a.ranges {
			if r[1] < lo || r[0] > hi {
				continue
			}
			out = append(out, [2]rune{max(lo, r[0]), min(hi, r[1])})
		}
	}
	return out
}
