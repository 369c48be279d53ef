package matcher

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/vodhub/vodhub/internal/external/tmdb"
	"github.com/vodhub/vodhub/internal/models"
)

// Config holds matcher configuration
type Config struct {
	// MinScore is the absolute score a candidate must reach
	MinScore float64

	// MinMargin is the required lead over the second-best candidate
	MinMargin float64
}

// DefaultConfig returns sensible defaults for the matcher
func DefaultConfig() Config {
	return Config{
		MinScore:  80,
		MinMargin: 15,
	}
}

// Verdict is the outcome of matching one provider title
type Verdict struct {
	TMDBID        int
	Score         float64
	Ignored       bool
	IgnoredReason models.IgnoredReason
}

// Searcher is the candidate lookup the matcher runs against
type Searcher interface {
	Search(ctx context.Context, titleType models.TitleType, name string, year int) ([]tmdb.Candidate, error)
}

// Matcher resolves provider title names to TMDB ids
type Matcher struct {
	cfg      Config
	searcher Searcher
}

// New creates a new matcher
func New(searcher Searcher, cfg Config) *Matcher {
	return &Matcher{cfg: cfg, searcher: searcher}
}

var (
	yearSuffixRegex  = regexp.MustCompile(`\(\s*(\d{4})(?:\s*-\s*\d{4})?\s*\)\s*$`)
	episodeTailRegex = regexp.MustCompile(`(?i)\s+S\d+\s*E\d+\s*$`)
	zeroNoiseRegex   = regexp.MustCompile(`\(\s*0\s*\)`)
	whitespaceRegex  = regexp.MustCompile(`\s+`)
)

// Normalize lowercases a raw provider name, strips year suffixes and
// episode tails, and returns the cleaned name plus any year found in the
// suffix
func Normalize(raw string) (string, int) {
	name := strings.ToLower(strings.TrimSpace(raw))
	year := 0

	if matches := yearSuffixRegex.FindStringSubmatch(name); len(matches) > 1 {
		if parsed, err := strconv.Atoi(matches[1]); err == nil {
			year = parsed
		}
		name = yearSuffixRegex.ReplaceAllString(name, "")
	}

	name = episodeTailRegex.ReplaceAllString(name, "")
	name = zeroNoiseRegex.ReplaceAllString(name, " ")
	name = whitespaceRegex.ReplaceAllString(name, " ")
	return strings.TrimSpace(name), year
}

// Match resolves one provider title. The error return is reserved for
// upstream failures; every deterministic outcome is a Verdict.
func (m *Matcher) Match(ctx context.Context, title *models.ProviderTitle) (*Verdict, error) {
	if title.Type != models.TitleTypeMovies && title.Type != models.TitleTypeTVShows {
		return ignored(models.IgnoredUnknownType), nil
	}

	name, year := Normalize(title.Title)
	if name == "" {
		return ignored(models.IgnoredEmptyName), nil
	}
	if year == 0 && len(title.ReleaseDate) >= 4 {
		if parsed, err := strconv.Atoi(title.ReleaseDate[:4]); err == nil {
			parsed = clampYear(parsed)
			year = parsed
		}
	}

	candidates, err := m.searcher.Search(ctx, title.Type, name, year)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return ignored(models.IgnoredNoCandidate), nil
	}

	if year == 0 && yearsDisagree(candidates) {
		return ignored(models.IgnoredMissingYear), nil
	}

	best, second := m.scoreAll(name, year, candidates)
	if best.score < m.cfg.MinScore || best.score-second < m.cfg.MinMargin {
		return ignored(models.IgnoredAmbiguousMatch), nil
	}

	return &Verdict{TMDBID: best.id, Score: best.score}, nil
}

type scored struct {
	id    int
	score float64
}

func (m *Matcher) scoreAll(name string, year int, candidates []tmdb.Candidate) (scored, float64) {
	best := scored{score: -1}
	second := -1.0

	for _, c := range candidates {
		s := score(name, year, c)
		if s > best.score {
			second = best.score
			best = scored{id: c.ID, score: s}
		} else if s > second {
			second = s
		}
	}

	if second < 0 {
		second = 0
	}
	return best, second
}

// score rates one candidate against a normalized title. Candidates come
// from the type-matched search endpoint, so a cross-type mismatch cannot
// reach scoring and carries no penalty term here.
func score(name string, year int, c tmdb.Candidate) float64 {
	candidateName, _ := Normalize(c.Name)

	var s float64
	switch {
	case candidateName == name:
		s += 100
	case strings.HasPrefix(candidateName, name) || strings.HasPrefix(name, candidateName):
		s += 50
	default:
		s += 20 * lcsRatio(name, candidateName)
	}

	if year > 0 && c.Year() > 0 {
		diff := year - c.Year()
		if diff < 0 {
			diff = -diff
		}
		if diff == 0 {
			s += 30
		} else {
			s -= float64(10 * diff)
		}
	}

	if s < 0 {
		s = 0
	}
	return s
}

// lcsRatio returns the longest common subsequence length over the longer
// string length
func lcsRatio(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}

	ra := []rune(a)
	rb := []rune(b)

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			if ra[i-1] == rb[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}

	longer := len(ra)
	if len(rb) > longer {
		longer = len(rb)
	}
	return float64(prev[len(rb)]) / float64(longer)
}

// yearsDisagree reports whether candidates span multiple release years
func yearsDisagree(candidates []tmdb.Candidate) bool {
	first := 0
	for _, c := range candidates {
		y := c.Year()
		if y == 0 {
			continue
		}
		if first == 0 {
			first = y
			continue
		}
		if y != first {
			return true
		}
	}
	return false
}

func clampYear(year int) int {
	if year < 1900 || year > 2100 {
		return 0
	}
	return year
}

func ignored(reason models.IgnoredReason) *Verdict {
	return &Verdict{Ignored: true, IgnoredReason: reason}
}
