package models

import "slices"

// MediaFormat is the catalog's format tag for an entry.
type MediaFormat string

const (
	FormatTV      MediaFormat = "TV"
	FormatTVShort MediaFormat = "TV_SHORT"
	FormatMovie   MediaFormat = "MOVIE"
	FormatSpecial MediaFormat = "SPECIAL"
	FormatOVA     MediaFormat = "OVA"
	FormatONA     MediaFormat = "ONA"
	FormatMusic   MediaFormat = "MUSIC"
	FormatManga   MediaFormat = "MANGA"
	FormatNovel   MediaFormat = "NOVEL"
	FormatOneShot MediaFormat = "ONE_SHOT"
)

// MediaStatus is the airing state of an entry.
type MediaStatus string

const (
	StatusFinished       MediaStatus = "FINISHED"
	StatusReleasing      MediaStatus = "RELEASING"
	StatusNotYetReleased MediaStatus = "NOT_YET_RELEASED"
	StatusCancelled      MediaStatus = "CANCELLED"
	StatusHiatus         MediaStatus = "HIATUS"
)

// RelationType tags the edge between two catalog entries.
type RelationType string

const (
	RelationAdaptation  RelationType = "ADAPTATION"
	RelationPrequel     RelationType = "PREQUEL"
	RelationSequel      RelationType = "SEQUEL"
	RelationParent      RelationType = "PARENT"
	RelationSideStory   RelationType = "SIDE_STORY"
	RelationCharacter   RelationType = "CHARACTER"
	RelationSummary     RelationType = "SUMMARY"
	RelationAlternative RelationType = "ALTERNATIVE"
	RelationSpinOff     RelationType = "SPIN_OFF"
	RelationOther       RelationType = "OTHER"
	RelationSource      RelationType = "SOURCE"
	RelationCompilation RelationType = "COMPILATION"
	RelationContains    RelationType = "CONTAINS"
)

// CatalogTitle holds an entry's names. English is empty when the catalog has none.
type CatalogTitle struct {
	English string `json:"english,omitempty"`
	Romaji  string `json:"romaji"`
}

// CatalogNode summarises a related entry.
type CatalogNode struct {
	ID        int         `json:"id"`
	Format    MediaFormat `json:"format,omitempty"`
	Episodes  *int        `json:"episodes,omitempty"`
	StartYear *int        `json:"start_year,omitempty"`
}

// Relation is one typed edge to another entry.
type Relation struct {
	Type RelationType `json:"type"`
	Node CatalogNode  `json:"node"`
}

// CatalogEntry is a tracker record for one anime title or season.
type CatalogEntry struct {
	ID        int          `json:"id"`
	Title     CatalogTitle `json:"title"`
	Synonyms  []string     `json:"synonyms,omitempty"`
	Episodes  *int         `json:"episodes,omitempty"`
	Format    MediaFormat  `json:"format,omitempty"`
	Status    MediaStatus  `json:"status,omitempty"`
	StartYear *int         `json:"start_year,omitempty"`
	Relations []Relation   `json:"relations,omitempty"`
}

// EpisodeCount returns the episode total, treating unknown as 0.
func (e CatalogEntry) EpisodeCount() int {
	if e.Episodes == nil {
		return 0
	}
	return *e.Episodes
}

// HasRelation reports whether any edge has type t.
func (e CatalogEntry) HasRelation(t RelationType) bool {
	return slices.ContainsFunc(e.Relations, func(r Relation) bool { return r.Type == t })
}

// FirstRelation returns the node of the first edge with type t.
func (e CatalogEntry) FirstRelation(t RelationType) (CatalogNode, bool) {
	for _, r := range e.Relations {
		if r.Type == t {
			return r.Node, true
		}
	}
	return CatalogNode{}, false
}

// DisplayTitle prefers the english title.
func (e CatalogEntry) DisplayTitle() string {
	if e.Title.English != "" {
		return e.Title.English
	}
	return e.Title.Romaji
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }
