// Package generator produces random strings that match a regular expression.
package generator

import (
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"regexp/syntax"
	"strings"
	"unicode"

	"github.com/xkilldash9x/scenario-cli/api/schemas"
)

// Defaults for Options fields left at zero.
const (
	DefaultMaxRepeat   = 10
	DefaultMaxLength   = 4096
	DefaultMaxAttempts = 8
)

var (
	errNoMatch  = errors.New("pattern can never match")
	errTooLong  = errors.New("generated value exceeds maximum length")
	errEmptySet = errors.New("character class is empty")
)

// Options bounds the generator.
type Options struct {
	// MaxRepeat caps the extra repetitions of unbounded quantifiers (*, +, {n,}).
	MaxRepeat int
	// MaxLength caps the generated value in runes.
	MaxLength int
	// MaxAttempts is the number of tries before giving up on a pattern.
	MaxAttempts int
	// Alphabet is the set "." and negated classes draw from. Defaults to DefaultAlphabet.
	Alphabet *Alphabet
}

func (o Options) withDefaults() Options {
	if o.MaxRepeat <= 0 {
		o.MaxRepeat = DefaultMaxRepeat
	}
	if o.MaxLength <= 0 {
		o.MaxLength = DefaultMaxLength
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.Alphabet == nil {
		o.Alphabet = DefaultAlphabet()
	}
	return o
}

// Generator draws values from an explicit random source. It is not safe for concurrent
// use because *rand.Rand is not.
type Generator struct {
	rng  *rand.Rand
	opts Options
}

// New returns a generator backed by rng.
func New(rng *rand.Rand, opts Options) *Generator {
	return &Generator{rng: rng, opts: opts.withDefaults()}
}

// Generate returns a value that matches pattern. Errors are *schemas.GeneratorError.
func (g *Generator) Generate(pattern string) (string, error) {
	re, err := syntax.Parse(pattern, syntax.Perl)
	if err != nil {
		return "", &schemas.GeneratorError{Pattern: pattern, Err: err}
	}
	matcher, err := regexp.Compile(pattern)
	if err != nil {
		return "", &schemas.GeneratorError{Pattern: pattern, Err: err}
	}

	var lastErr error
	for attempt := 0; attempt < g.opts.MaxAttempts; attempt++ {
		var b strings.Builder
		n := 0
		if err := g.emit(re, &b, &n); err != nil {
			if errors.Is(err, errNoMatch) || errors.Is(err, errEmptySet) {
				return "", &schemas.GeneratorError{Pattern: pattern, Err: err}
			}
			lastErr = err
			continue
		}
		out := b.String()
		// Assertions such as \b are emitted as nothing, so the draw still needs checking.
		if matcher.MatchString(out) {
			return out, nil
		}
		lastErr = fmt.Errorf("generated value %q does not match", out)
	}
	return "", &schemas.GeneratorError{
		Pattern: pattern,
		Err:     fmt.Errorf("gave up after %d attempts: %w", g.opts.MaxAttempts, lastErr),
	}
}

func (g *Generator) emit(re *syntax.Regexp, b *strings.Builder, n *int) error {
	switch re.Op {
	case syntax.OpNoMatch:
		return errNoMatch

	case syntax.OpEmptyMatch, syntax.OpBeginLine, syntax.OpEndLine,
		syntax.OpBeginText, syntax.OpEndText,
		syntax.OpWordBoundary, syntax.OpNoWordBoundary:
		return nil

	case syntax.OpLiteral:
		for _, r := range re.Rune {
			if re.Flags&syntax.FoldCase != 0 {
				r = g.foldRune(r)
			}
			if err := g.write(b, n, r); err != nil {
				return err
			}
		}
		return nil

	case syntax.OpCharClass:
		r, err := g.classRune(re.Rune)
		if err != nil {
			return err
		}
		return g.write(b, n, r)

	case syntax.OpAnyCharNotNL:
		r, err := g.pick(g.opts.Alphabet.Intersect([]rune{0, '\n' - 1, '\n' + 1, unicode.MaxRune}))
		if err != nil {
			return err
		}
		return g.write(b, n, r)

	case syntax.OpAnyChar:
		r, err := g.pick(g.opts.Alphabet.ranges)
		if err != nil {
			return err
		}
		return g.write(b, n, r)

	case syntax.OpCapture:
		return g.emit(re.Sub[0], b, n)

	case syntax.OpStar:
		return g.repeat(re.Sub[0], 0, g.opts.MaxRepeat, b, n)
	case syntax.OpPlus:
		return g.repeat(re.Sub[0], 1, 1+g.opts.MaxRepeat, b, n)
	case syntax.OpQuest:
		return g.repeat(re.Sub[0], 0, 1, b, n)
	case syntax.OpRepeat:
		hi := re.Max
		if hi < 0 {
			hi = re.Min + g.opts.MaxRepeat
		}
		return g.repeat(re.Sub[0], re.Min, hi, b, n)

	case syntax.OpConcat:
		for _, sub := range re.Sub {
			if err := g.emit(sub, b, n); err != nil {
				return err
			}
		}
		return nil

	case syntax.OpAlternate:
		return g.emit(re.Sub[g.rng.Intn(len(re.Sub))], b, n)
	}
	return fmt.Errorf("unsupported regexp operator %v", re.Op)
}

func (g *Generator) repeat(sub *syntax.Regexp, lo, hi int, b *strings.Builder, n *int) error {
	count := lo
	if hi > lo {
		count += g.rng.Intn(hi - lo + 1)
	}
	for i := 0; i < count; i++ {
		if err := g.emit(sub, b, n); err != nil {
			return err
		}
	}
	return nil
}

func (g *Generator) write(b *strings.Builder, n *int, r rune) error {
	if *n >= g.opts.MaxLength {
		return errTooLong
	}
	b.WriteRune(r)
	*n++
	return nil
}

// classRune prefers the part of an explicit class that lies in the alphabet. Negated
// classes arrive from the parser already complemented over all of Unicode, so this is
// also what confines them to the alphabet.
func (g *Generator) classRune(pairs []rune) (rune, error) {
	if ranges := g.opts.Alphabet.Intersect(pairs); len(ranges) > 0 {
		return g.pick(ranges)
	}
	encodable := NewAlphabet(0, unicode.MaxRune).Remove(surrogateLo, surrogateHi)
	return g.pick(encodable.Intersect(pairs))
}

// pick draws uniformly from the union of ranges.
func (g *Generator) pick(ranges [][2]rune) (rune, error) {
	total := 0
	for _, r := range ranges {
		total += int(r[1]-r[0]) + 1
	}
	if total == 0 {
		return 0, errEmptySet
	}
	i := g.rng.Intn(total)
	for _, r := range ranges {
		size := int(r[1]-r[0]) + 1
		if i < size {
			return r[0] + rune(i), nil
		}
		i -= size
	}
	return 0, errEmptySet
}

// foldRune returns a random member of r's case folding orbit.
func (g *Generator) foldRune(r rune) rune {
	orbit := []rune{r}
	for f := unicode.SimpleFold(r); f != r; f = unicode.SimpleFold(f) {
		orbit = append(orbit, f)
	}
	return orbit[g.rng.Intn(len(orbit))]
}
