package tasks

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/anisync/internal/matching"
	"github.com/desertthunder/anisync/internal/models"
	"github.com/desertthunder/anisync/internal/services"
	"github.com/desertthunder/anisync/internal/shared"
)

// sameFormatBias is the rescoring head start given to a sequel that keeps the previous entry's format.
const sameFormatBias = 10

// MappingStore persists mappings. [repositories.MappingRepository] is the production implementation.
type MappingStore interface {
	GetMappingsForSeries(seriesID string) ([]models.Mapping, error)
	GetAllMappings() ([]models.Mapping, error)
	// Save assigns a persisted id to an unsaved mapping.
	Save(m *models.Mapping) error
}

// MappingState is the phase of a mapping run.
type MappingState int

const (
	MatchingFirstSeason MappingState = iota
	ChainingSequel
	Done
	Abandoned
)

func (s MappingState) String() string {
	switch s {
	case MatchingFirstSeason:
		return "matching_first_season"
	case ChainingSequel:
		return "chaining_sequel"
	case Done:
		return "done"
	case Abandoned:
		return "abandoned"
	default:
		return ""
	}
}

// StopReason explains why a mapping run ended before every season was covered.
type StopReason string

const (
	StopNone             StopReason = ""
	StopTooManySeasons   StopReason = "series has too many seasons"
	StopNoMatch          StopReason = "no catalog match for first season"
	StopNoPrevious       StopReason = "no previous mapping to chain from"
	StopNoSequel         StopReason = "previous entry has no sequel"
	StopNoRescoredSequel StopReason = "sequel does not fit the season"
)

// transition is the outcome of one step: either a mapping to append or a termination reason.
type transition struct {
	State   MappingState
	Mapping *models.Mapping
	Reason  StopReason
}

func abandon(reason StopReason) transition {
	return transition{State: Abandoned, Reason: reason}
}

// sequelLink is everything a sequel-chaining step needs from the catalog.
type sequelLink struct {
	Previous   *models.Mapping
	SameSeason bool
	PrevEntry  *models.CatalogEntry
	Sequel     *models.CatalogEntry
}

// coveredLength is the number of season episodes a mapping to entry spans.
func coveredLength(entry models.CatalogEntry, season models.LibrarySeason) int {
	if entry.Episodes != nil {
		return *entry.Episodes
	}
	return season.EpisodeCount()
}

// matchFirstSeason maps the start of season 1 to match.
func matchFirstSeason(seriesID string, season models.LibrarySeason, match *models.CatalogEntry) transition {
	if match == nil {
		return abandon(StopNoMatch)
	}
	m := models.NewMapping(seriesID, season.ID, 1, coveredLength(*match, season), match.ID, match.Episodes)
	return transition{State: ChainingSequel, Mapping: &m}
}

// chainSequel maps the next unmapped range of season to the sequel in link.
//
// A sequel whose episode count does not complete the season is rescored against it, with a head start
// when it shares the previous entry's format. A non-positive score abandons the run.
func chainSequel(seriesID string, season models.LibrarySeason, mapped int, link sequelLink) transition {
	if link.Previous == nil {
		return abandon(StopNoPrevious)
	}
	if link.PrevEntry == nil || link.Sequel == nil {
		return abandon(StopNoSequel)
	}

	sequel := *link.Sequel
	if mapped+sequel.EpisodeCount() != season.EpisodeCount() {
		bias := 0
		if sequel.Format == link.PrevEntry.Format {
			bias = sameFormatBias
		}
		rescored, ok := matching.FindBestMatch([]models.CatalogEntry{sequel}, season, bias)
		if !ok {
			return abandon(StopNoRescoredSequel)
		}
		sequel = rescored
	}

	offset := 0
	if link.SameSeason {
		offset = link.Previous.NextOffset()
	}

	m := models.NewMapping(seriesID, season.ID, offset, coveredLength(sequel, season), sequel.ID, sequel.Episodes)
	return transition{State: ChainingSequel, Mapping: &m}
}

// MappedEpisodes sums the season length of every mapping that targets seasonID.
func MappedEpisodes(mappings []models.Mapping, seasonID string) int {
	total := 0
	for _, m := range mappings {
		if m.SeasonID == seasonID {
			total += m.SeasonLength
		}
	}
	return total
}

// lastMappingFor returns the mapping of seasonID with the highest offset; the later one wins ties.
func lastMappingFor(mappings []models.Mapping, seasonID string) *models.Mapping {
	var last *models.Mapping
	for i := range mappings {
		m := &mappings[i]
		if m.SeasonID != seasonID {
			continue
		}
		if last == nil || m.EpisodeOffset >= last.EpisodeOffset {
			last = m
		}
	}
	return last
}

// PreviousMapping finds the mapping a sequel chain for seasons[i] continues from.
//
// It prefers the season's own highest-offset mapping and falls back to the preceding library season's,
// which bridges a catalog entry spanning a season boundary. sameSeason reports which one was found.
func PreviousMapping(mappings []models.Mapping, seasons []models.LibrarySeason, i int) (prev *models.Mapping, sameSeason bool) {
	if prev = lastMappingFor(mappings, seasons[i].ID); prev != nil {
		return prev, true
	}
	if i > 0 {
		return lastMappingFor(mappings, seasons[i-1].ID), false
	}
	return nil, false
}

// MappingResult is the outcome of mapping one series.
type MappingResult struct {
	Mappings []models.Mapping // Existing mappings followed by the ones created in this run
	Created  int              // Number of mappings persisted by this run
	State    MappingState     // Done or Abandoned
	Reason   StopReason       // Why the run was abandoned
}

// MappingEngine resolves library seasons to catalog entries.
//
// Runs for different series are independent. Runs for the same series must be serialized by the caller.
type MappingEngine struct {
	catalog       services.CatalogClient
	store         MappingStore
	logger        *log.Logger
	maxSeasons    int
	maxSequelHops int
}

// NewMappingEngine creates a MappingEngine. Non-positive limits fall back to the defaults in [shared].
func NewMappingEngine(catalog services.CatalogClient, store MappingStore, logger *log.Logger, maxSeasons, maxSequelHops int) *MappingEngine {
	maxSeasons, maxSequelHops = shared.MappingConfig{MaxSeasons: maxSeasons, MaxSequelHops: maxSequelHops}.Limits()
	if logger == nil {
		logger = shared.NewDiscardLogger()
	}
	return &MappingEngine{
		catalog:       catalog,
		store:         store,
		logger:        logger,
		maxSeasons:    maxSeasons,
		maxSequelHops: maxSequelHops,
	}
}

// CreateMapping extends the stored mappings of series and returns the full list.
//
// A short list is not a failure: runs stop early when the catalog has no match or sequel.
// Catalog and store errors are returned unchanged.
func (e *MappingEngine) CreateMapping(ctx context.Context, series models.LibrarySeries) ([]models.Mapping, error) {
	result, err := e.MapSeries(ctx, series)
	if err != nil {
		return nil, err
	}
	return result.Mappings, nil
}

// MapSeries is [MappingEngine.CreateMapping] with the run's outcome attached.
func (e *MappingEngine) MapSeries(ctx context.Context, series models.LibrarySeries) (*MappingResult, error) {
	if e.catalog == nil {
		return nil, fmt.Errorf("%w: catalog client not initialized", shared.ErrServiceUnavailable)
	}

	existing, err := e.store.GetMappingsForSeries(series.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load mappings for %q: %w", series.Title, err)
	}

	result := &MappingResult{Mappings: existing, State: Done}
	logger := e.logger.With("series", series.Title)

	if len(series.Seasons) > e.maxSeasons {
		logger.Debug("mapping skipped", "reason", StopTooManySeasons, "seasons", len(series.Seasons))
		result.State, result.Reason = Abandoned, StopTooManySeasons
		return result, nil
	}

	mappings := append([]models.Mapping{}, existing...)
	state, reason := Done, StopNone

seasons:
	for i, season := range series.Seasons {
		if season.IsSpecials() {
			continue
		}

		step := ChainingSequel
		if season.Index == 1 && lastMappingFor(mappings, season.ID) == nil {
			step = MatchingFirstSeason
		}

		hops := 0
		for {
			if MappedEpisodes(mappings, season.ID) >= season.EpisodeCount() {
				break
			}

			var t transition
			switch step {
			case MatchingFirstSeason:
				match, err := e.FindMatchForSeason(ctx, season)
				if err != nil {
					return nil, err
				}
				t = matchFirstSeason(series.ID, season, match)
			case ChainingSequel:
				if hops >= e.maxSequelHops {
					logger.Debug("sequel hop limit reached", "season", season.Index, "hops", hops)
					continue seasons
				}
				hops++

				link, err := e.resolveSequel(ctx, mappings, series.Seasons, i)
				if err != nil {
					return nil, err
				}
				t = chainSequel(series.ID, season, MappedEpisodes(mappings, season.ID), link)
			}

			if t.State == Abandoned {
				state, reason = Abandoned, t.Reason
				logger.Debug("mapping stopped", "season", season.Index, "state", step, "reason", reason)
				break seasons
			}

			logger.Debug("mapped", "season", season.Index, "catalog_id", t.Mapping.CatalogID,
				"offset", t.Mapping.EpisodeOffset, "length", t.Mapping.SeasonLength)
			mappings = append(mappings, *t.Mapping)
			step = t.State
		}
	}

	for i := range mappings {
		if mappings[i].ID.IsPersisted() {
			continue
		}
		if err := e.store.Save(&mappings[i]); err != nil {
			return nil, fmt.Errorf("failed to save mapping for %q: %w", series.Title, err)
		}
		result.Created++
	}

	result.Mappings = mappings
	result.State, result.Reason = state, reason
	return result, nil
}

// resolveSequel fetches the previous entry and its sequel for seasons[i].
// Lookups stop at the first missing piece; the transition reports the reason.
func (e *MappingEngine) resolveSequel(ctx context.Context, mappings []models.Mapping, seasons []models.LibrarySeason, i int) (sequelLink, error) {
	var link sequelLink
	link.Previous, link.SameSeason = PreviousMapping(mappings, seasons, i)
	if link.Previous == nil {
		return link, nil
	}

	prev, err := e.catalog.GetByID(ctx, link.Previous.CatalogID)
	if err != nil || prev == nil {
		return link, err
	}
	link.PrevEntry = prev

	link.Sequel, err = e.catalog.GetSequel(ctx, *prev)
	return link, err
}

// FindMatchForSeason searches the catalog by the season's series title and returns the best match,
// or nil when nothing scores above zero. Older entries are ranked first so ties favor later ones.
func (e *MappingEngine) FindMatchForSeason(ctx context.Context, season models.LibrarySeason) (*models.CatalogEntry, error) {
	results, err := e.catalog.SearchByTitle(ctx, season.ParentTitle)
	if err != nil {
		return nil, err
	}

	match, ok := matching.FindBestMatch(matching.SortByStartYear(results), season, 0)
	if !ok {
		return nil, nil
	}
	return &match, nil
}

// GetAllRelevantMappings returns the stored mappings of every series in allSeries.
// Storage errors are logged and yield an empty list.
func (e *MappingEngine) GetAllRelevantMappings(allSeries []models.LibrarySeries) []models.Mapping {
	mappings := []models.Mapping{}
	for _, series := range allSeries {
		found, err := e.store.GetMappingsForSeries(series.ID)
		if err != nil {
			e.logger.Error("failed to load mappings", "series", series.Title, "error", err)
			return []models.Mapping{}
		}
		mappings = append(mappings, found...)
	}
	return mappings
}

// GetAllMappings returns every stored mapping. Storage errors are logged and yield an empty list.
func (e *MappingEngine) GetAllMappings() []models.Mapping {
	mappings, err := e.store.GetAllMappings()
	if err != nil {
		e.logger.Error("failed to load mappings", "error", err)
		return []models.Mapping{}
	}
	return mappings
}
