// Package kb decides whether an inbound message touches the product
// knowledge base. The knowledge base is a Markdown file split into
// paragraphs and held in a read-only in-memory index that is safe for
// concurrent use.
//
// Tokens are Latin/digit words plus overlapping bigrams over runs of Han
// characters, so Chinese text without spaces still overlaps. A paragraph's
// score for a query is the share of query tokens it contains:
// score = |Q ∩ P| / |Q|.
package kb

import (
	"bytes"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/width"
)

// Matcher reports whether text is covered by the knowledge base.
type Matcher interface {
	Match(text string) bool
}

// Nop never matches. It stands in when no knowledge base is configured.
type Nop struct{}

// Match implements Matcher.
func (Nop) Match(string) bool { return false }

// Result is a ranked paragraph with its score.
type Result struct {
	Snippet string
	Score   float64
}

// Option tunes index construction.
type Option func(*config)

type config struct {
	minParagraphRunes int
	stopwords         map[string]struct{}
	maxDocs           int
	threshold         float64
}

// DefaultThreshold is the minimum score Match accepts.
const DefaultThreshold = 0.35

func defaultConfig() config {
	return config{
		minParagraphRunes: 4,
		threshold:         DefaultThreshold,
	}
}

// WithMinParagraphRunes drops paragraphs shorter than n runes.
func WithMinParagraphRunes(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.minParagraphRunes = n
		}
	}
}

// WithStopwords excludes the given tokens from both sides of the comparison.
// Chinese stopwords should be given as bigrams.
func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = fold(strings.TrimSpace(w))
			if w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) > 0 {
			c.stopwords = m
		}
	}
}

// WithMaxDocs caps the number of indexed paragraphs.
func WithMaxDocs(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxDocs = n
		}
	}
}

// WithThreshold sets the score Match requires. Values outside (0,1] are
// ignored.
func WithThreshold(v float64) Option {
	return func(c *config) {
		if v > 0 && v <= 1 {
			c.threshold = v
		}
	}
}

type doc struct {
	text   string
	tokens map[string]struct{}
}

// Index is an immutable paragraph index.
type Index struct {
	cfg  config
	docs []doc
}

var _ Matcher = (*Index)(nil)

// NewIndexFromMarkdown reads the Markdown at path, flattens tables and
// headings (see PrepareMarkdown) and indexes the result.
func NewIndexFromMarkdown(path string, opts ...Option) (*Index, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewIndexFromReader(bytes.NewReader(PrepareMarkdown(b)), opts...)
}

// NewIndexFromReader indexes UTF-8 text from r, splitting paragraphs on
// blank lines.
func NewIndexFromReader(r io.Reader, opts ...Option) (*Index, error) {
	all, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return NewIndexFromStrings(splitParas(string(all)), opts...), nil
}

// NewIndexFromStrings indexes the given paragraphs.
func NewIndexFromStrings(paragraphs []string, opts ...Option) *Index {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	docs := make([]doc, 0, len(paragraphs))
	for _, raw := range paragraphs {
		t := strings.TrimSpace(normalizeWhitespace(raw))
		if t == "" {
			continue
		}
		if cfg.minParagraphRunes > 0 && utf8.RuneCountInString(t) < cfg.minParagraphRunes {
			continue
		}
		toks := tokenize(t, cfg.stopwords)
		if len(toks) == 0 {
			continue
		}
		docs = append(docs, doc{text: t, tokens: toks})
		if cfg.maxDocs > 0 && len(docs) >= cfg.maxDocs {
			break
		}
	}
	return &Index{cfg: cfg, docs: docs}
}

// Len reports the number of indexed paragraphs.
func (i *Index) Len() int { return len(i.docs) }

// Threshold reports the score Match requires.
func (i *Index) Threshold() float64 { return i.cfg.threshold }

// Match reports whether the best paragraph reaches the threshold.
func (i *Index) Match(text string) bool {
	top := i.TopK(text, 1)
	return len(top) == 1 && top[0].Score >= i.cfg.threshold
}

// TopK returns up to k paragraphs ordered by score, then by shorter text,
// then lexically. k <= 0 means 3.
func (i *Index) TopK(q string, k int) []Result {
	if len(i.docs) == 0 || strings.TrimSpace(q) == "" {
		return nil
	}
	if k <= 0 {
		k = 3
	}
	qTokens := tokenize(q, i.cfg.stopwords)
	if len(qTokens) == 0 {
		return nil
	}

	type scored struct {
		snippet  string
		score    float64
		lenRunes int
	}
	var buf []scored
	for _, d := range i.docs {
		over := overlap(qTokens, d.tokens)
		if over == 0 {
			continue
		}
		buf = append(buf, scored{
			snippet:  d.text,
			score:    float64(over) / float64(len(qTokens)),
			lenRunes: utf8.RuneCountInString(d.text),
		})
	}
	sort.SliceStable(buf, func(a, b int) bool {
		if buf[a].score != buf[b].score {
			return buf[a].score > buf[b].score
		}
		if buf[a].lenRunes != buf[b].lenRunes {
			return buf[a].lenRunes < buf[b].lenRunes
		}
		return buf[a].snippet < buf[b].snippet
	})

	k = min(k, len(buf))
	out := make([]Result, k)
	for j := 0; j < k; j++ {
		out[j] = Result{Snippet: buf[j].snippet, Score: buf[j].score}
	}
	return out
}

func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	add := func(tok string) {
		if _, skip := stop[tok]; !skip {
			out[tok] = struct{}{}
		}
	}
	var word, han []rune
	flushWord := func() {
		if len(word) > 0 {
			add(string(word))
			word = word[:0]
		}
	}
	flushHan := func() {
		switch len(han) {
		case 0:
		case 1:
			add(string(han))
		default:
			for j := 0; j+1 < len(han); j++ {
				add(string(han[j : j+2]))
			}
		}
		han = han[:0]
	}

	for _, r := range fold(s) {
		switch {
		case unicode.Is(unicode.Han, r):
			flushWord()
			han = append(han, r)
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			flushHan()
			word = append(word, r)
		default:
			flushWord()
			flushHan()
		}
	}
	flushWord()
	flushHan()

	if len(out) == 0 {
		return nil
	}
	return out
}

// fold maps full-width forms to their narrow equivalents and lower-cases.
func fold(s string) string {
	return strings.ToLower(width.Fold.String(s))
}

func overlap(a, b map[string]struct{}) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}

func normalizeWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\r' || r == '\n' || r == '　' {
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
			continue
		}
		prevSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

var paraSplitRE = regexp.MustCompile(`\n\s*\n`)

func splitParas(raw string) []string {
	chunks := paraSplitRE.Split(raw, -1)
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if t := strings.TrimSpace(c); t != "" {
			out = append(out, t)
		}
	}
	return out
}
