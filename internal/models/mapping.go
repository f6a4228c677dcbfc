package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// MappingID is the storage identity of a [Mapping]: either unsaved or persisted with a numeric id.
type MappingID struct {
	value     int64
	persisted bool
}

// Unsaved returns the identity of a mapping that has not been stored yet.
func Unsaved() MappingID { return MappingID{} }

// Persisted returns the identity of a stored mapping.
func Persisted(id int64) MappingID { return MappingID{value: id, persisted: true} }

// IsPersisted reports whether the mapping has been stored.
func (id MappingID) IsPersisted() bool { return id.persisted }

// Value returns the stored id and true, or 0 and false for an unsaved mapping.
func (id MappingID) Value() (int64, bool) { return id.value, id.persisted }

func (id MappingID) String() string {
	if !id.persisted {
		return "unsaved"
	}
	return strconv.FormatInt(id.value, 10)
}

// MarshalJSON encodes persisted ids as numbers and unsaved ids as null.
func (id MappingID) MarshalJSON() ([]byte, error) {
	if !id.persisted {
		return []byte("null"), nil
	}
	return json.Marshal(id.value)
}

// UnmarshalJSON is the inverse of [MappingID.MarshalJSON].
func (id *MappingID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*id = Unsaved()
		return nil
	}
	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*id = Persisted(v)
	return nil
}

// Mapping ties an episode range of one library season to one catalog entry.
//
// EpisodeOffset is the 1-based position in the season where coverage begins and SeasonLength is the
// number of episodes covered. Several mappings on one season model a multi-cour season; for a fixed
// season they are ordered by offset and do not overlap. Mappings are not edited after creation apart
// from the Enabled and Ignored flags.
type Mapping struct {
	ID              MappingID `json:"id"`
	SeriesID        string    `json:"series_id"`
	SeasonID        string    `json:"season_id"`
	EpisodeOffset   int       `json:"episode_offset"`
	SeasonLength    int       `json:"season_length"`
	CatalogID       int       `json:"catalog_id"`
	CatalogEpisodes *int      `json:"catalog_episodes,omitempty"`
	Enabled         bool      `json:"enabled"`
	Ignored         bool      `json:"ignored"`
	CreatedAt       time.Time `json:"created_at"`
}

// NewMapping creates an unsaved, enabled mapping.
func NewMapping(seriesID, seasonID string, offset, length, catalogID int, catalogEpisodes *int) Mapping {
	return Mapping{
		ID:              Unsaved(),
		SeriesID:        seriesID,
		SeasonID:        seasonID,
		EpisodeOffset:   offset,
		SeasonLength:    length,
		CatalogID:       catalogID,
		CatalogEpisodes: catalogEpisodes,
		Enabled:         true,
		CreatedAt:       time.Now().UTC(),
	}
}

// Active reports whether the mapping should contribute to status computation.
func (m Mapping) Active() bool { return m.Enabled && !m.Ignored }

// FirstEpisode returns the 0-based index of the first covered episode.
//
// Offsets below 1 are treated as the start of the season.
func (m Mapping) FirstEpisode() int {
	if m.EpisodeOffset < 1 {
		return 0
	}
	return m.EpisodeOffset - 1
}

// NextOffset returns the offset at which a following mapping on the same season starts.
func (m Mapping) NextOffset() int {
	return m.FirstEpisode() + 1 + m.SeasonLength
}
