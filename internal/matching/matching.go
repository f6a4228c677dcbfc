package matching

import (
	"fmt"
	"sort"
	"strings"

	"github.com/desertthunder/anisync/internal/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	episodeMatchScore = 100
	titleMatchScore   = 50
	synonymScore      = 10
	firstSeasonScore  = 50
)

// Normalize removes colons and spaces, trims surrounding whitespace and lower-cases s.
func Normalize(s string) string {
	s = strings.NewReplacer(":", "", " ", "").Replace(s)
	return cases.Lower(language.Und).String(strings.TrimSpace(s))
}

// EqualNormalized reports whether a and b are equal after [Normalize].
func EqualNormalized(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// SeasonTitles returns the titles a catalog entry is compared against for season.
func SeasonTitles(season models.LibrarySeason) [2]string {
	titles := [2]string{
		fmt.Sprintf("%s season %d", season.ParentTitle, season.Index),
		fmt.Sprintf("%s %d", season.ParentTitle, season.Index),
	}
	if season.Index == 1 {
		titles[0] = season.ParentTitle
	}
	return titles
}

// Score rates candidate against season, starting from offset.
func Score(candidate models.CatalogEntry, season models.LibrarySeason, offset int) int {
	score := offset

	if candidate.EpisodeCount() == season.EpisodeCount() {
		score += episodeMatchScore
	}

	for _, title := range SeasonTitles(season) {
		if candidate.Title.English != "" && EqualNormalized(candidate.Title.English, title) {
			score += titleMatchScore
		}
		if EqualNormalized(candidate.Title.Romaji, title) {
			score += titleMatchScore
		}
		for _, synonym := range candidate.Synonyms {
			if EqualNormalized(synonym, title) {
				score += synonymScore
			}
		}
	}

	if season.Index == 1 && !candidate.HasRelation(models.RelationPrequel) {
		score += firstSeasonScore
	}

	return score
}

// Scored pairs a candidate with its score.
type Scored struct {
	Entry models.CatalogEntry
	Score int
}

// Rank scores every candidate and returns those above zero in ascending score order.
//
// The sort is stable, so equal scores keep their input order.
func Rank(candidates []models.CatalogEntry, season models.LibrarySeason, offset int) []Scored {
	ranked := make([]Scored, 0, len(candidates))
	for _, c := range candidates {
		if s := Score(c, season, offset); s > 0 {
			ranked = append(ranked, Scored{Entry: c, Score: s})
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score < ranked[j].Score
	})
	return ranked
}

// FindBestMatch returns the highest-scoring candidate with a positive score.
func FindBestMatch(candidates []models.CatalogEntry, season models.LibrarySeason, offset int) (models.CatalogEntry, bool) {
	ranked := Rank(candidates, season, offset)
	if len(ranked) == 0 {
		return models.CatalogEntry{}, false
	}
	return ranked[len(ranked)-1].Entry, true
}

// SortByStartYear orders candidates oldest first. Entries without a start year sort last.
func SortByStartYear(candidates []models.CatalogEntry) []models.CatalogEntry {
	sorted := append([]models.CatalogEntry(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].StartYear, sorted[j].StartYear
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a < *b
		}
	})
	return sorted
}
