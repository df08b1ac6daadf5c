package scoring

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/width"

	"github.com/tbourn/go-customer-hub/internal/domain"
)

// ReasonBlacklist marks a score short-circuited by a blacklist keyword.
const ReasonBlacklist = "blacklist_keyword"

// Details explains how a Signal's total was reached.
type Details struct {
	KeywordScore     int           `json:"keyword_score"`
	FileScore        int           `json:"file_score"`
	WorktimeScore    int           `json:"worktime_score"`
	KBMatchScore     int           `json:"kb_match_score"`
	TotalScore       int           `json:"total_score"`
	Bucket           domain.Bucket `json:"bucket"`
	Reason           string        `json:"reason,omitempty"`
	MatchedBlacklist string        `json:"matched_blacklist,omitempty"`
	Timestamp        time.Time     `json:"timestamp"`
}

type keyword struct {
	group  string
	raw    string
	folded string
}

type blackword struct {
	raw    string
	folded string
}

// Engine scores messages against a fixed set of Rules. It is safe for
// concurrent use.
type Engine struct {
	rules     Rules
	loc       *time.Location
	keywords  []keyword
	blacklist []blackword
	files     map[string]int
}

// NewEngine prepares rules for scoring. Keywords are folded once here.
// loc selects the zone used for the work-time window; nil means the zone
// carried by each timestamp.
func NewEngine(rules Rules, loc *time.Location) *Engine {
	e := &Engine{
		rules: rules,
		loc:   loc,
		files: make(map[string]int, len(rules.FileWeights)),
	}
	for group, words := range rules.Keywords {
		for _, w := range words {
			f := normalize(w)
			if f == "" {
				continue
			}
			e.keywords = append(e.keywords, keyword{group: group, raw: w, folded: f})
		}
	}
	for _, w := range rules.Blacklist {
		if f := normalize(w); f != "" {
			e.blacklist = append(e.blacklist, blackword{raw: w, folded: f})
		}
	}
	for ft, weight := range rules.FileWeights {
		e.files[normalizeFileType(ft)] = weight
	}
	return e
}

// Rules returns the rules the engine was built with.
func (e *Engine) Rules() Rules { return e.rules }

// Score computes the Signal for one message. The returned Signal carries no
// ID, thread or creation time; callers fill those in.
func (e *Engine) Score(text string, fileTypes []string, ts time.Time, kbMatched bool) (domain.Signal, Details) {
	norm := normalize(text)
	files := make([]string, 0, len(fileTypes))
	for _, ft := range fileTypes {
		if ft = normalizeFileType(ft); ft != "" {
			files = append(files, ft)
		}
	}

	for _, bw := range e.blacklist {
		if strings.Contains(norm, bw.folded) {
			sig := domain.Signal{
				KeywordHits: map[string]int{},
				FileTypes:   files,
				Bucket:      domain.BucketBlack,
			}
			return sig, Details{
				Bucket:           domain.BucketBlack,
				Reason:           ReasonBlacklist,
				MatchedBlacklist: bw.raw,
				Timestamp:        ts,
			}
		}
	}

	hits := map[string]int{}
	kwScore := 0
	if norm != "" {
		for _, kw := range e.keywords {
			n := strings.Count(norm, kw.folded)
			if n == 0 {
				continue
			}
			hits[kw.raw] = n
			kwScore += min(20, n*6)
		}
	}

	fileScore := 0
	for _, ft := range files {
		fileScore += e.files[ft]
	}

	workScore := e.worktime(ts)

	kbScore := 0
	if kbMatched {
		kbScore = e.rules.KBMatchWeight
	}

	total := min(100, kwScore+fileScore+workScore+kbScore)
	bucket := e.bucketFor(total)

	sig := domain.Signal{
		KeywordHits:   hits,
		FileTypes:     files,
		KeywordScore:  kwScore,
		FileScore:     fileScore,
		WorktimeScore: workScore,
		KBMatchScore:  kbScore,
		TotalScore:    total,
		Bucket:        bucket,
	}
	return sig, Details{
		KeywordScore:  kwScore,
		FileScore:     fileScore,
		WorktimeScore: workScore,
		KBMatchScore:  kbScore,
		TotalScore:    total,
		Bucket:        bucket,
		Timestamp:     ts,
	}
}

// IdentifyTriggerType picks the trigger group with the strictly largest hit
// count. Ties and zero hits report false.
func (e *Engine) IdentifyTriggerType(hits map[string]int) (domain.TriggerType, bool) {
	if len(hits) == 0 {
		return "", false
	}
	sums := map[string]int{}
	seen := map[string]bool{}
	for _, kw := range e.keywords {
		key := kw.group + "\x00" + kw.raw
		if seen[key] {
			continue
		}
		seen[key] = true
		sums[kw.group] += hits[kw.raw]
	}

	candidates := []struct {
		group string
		typ   domain.TriggerType
	}{
		{GroupPreSales, domain.TriggerPreSales},
		{GroupAfterSales, domain.TriggerAfterSales},
		{GroupBizDev, domain.TriggerBizDev},
	}
	best, bestN, tie := domain.TriggerType(""), 0, false
	for _, c := range candidates {
		n := sums[c.group]
		switch {
		case n > bestN:
			best, bestN, tie = c.typ, n, false
		case n == bestN && n > 0:
			tie = true
		}
	}
	if bestN == 0 || tie {
		return "", false
	}
	return best, true
}

func (e *Engine) worktime(ts time.Time) int {
	if ts.IsZero() {
		return 0
	}
	if e.loc != nil {
		ts = ts.In(e.loc)
	}
	h := ts.Hour()
	if h < e.rules.WorkStartHour || h > e.rules.WorkEndHour {
		return 0
	}
	switch ts.Weekday() {
	case time.Saturday, time.Sunday:
		return e.rules.WeekendBonus
	default:
		return e.rules.WeekdayBonus
	}
}

func (e *Engine) bucketFor(total int) domain.Bucket {
	switch {
	case total >= e.rules.WhiteThreshold:
		return domain.BucketWhite
	case total >= e.rules.GrayLower:
		return domain.BucketGray
	default:
		return domain.BucketBlack
	}
}

// normalize folds case and full-width forms so "ＥＸＷ" matches "exw".
// A Caser keeps state, so a fresh one is made per call.
func normalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return cases.Fold().String(width.Fold.String(s))
}

func normalizeFileType(ft string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ft)), ".")
}
