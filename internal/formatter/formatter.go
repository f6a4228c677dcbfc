// package formatter exports mappings and sync plans to JSON, CSV, Markdown and plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/anisync/internal/models"
	"github.com/desertthunder/anisync/internal/shared"
)

// Format is an export file format.
type Format string

const (
	JSON     Format = "json"
	CSV      Format = "csv"
	Markdown Format = "markdown"
	Text     Format = "txt"
)

// ParseFormat accepts a format name or its common aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return JSON, nil
	case "csv":
		return CSV, nil
	case "markdown", "md":
		return Markdown, nil
	case "txt", "text":
		return Text, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q (expected json, csv, markdown or txt)", shared.ErrInvalidFlag, s)
	}
}

// Extension returns the file extension for f, without the dot.
func (f Format) Extension() string {
	if f == Markdown {
		return "md"
	}
	return string(f)
}

// MappingRow is a mapping with the library names it points at.
type MappingRow struct {
	models.Mapping
	SeriesTitle string `json:"series_title,omitempty"`
	SeasonIndex *int   `json:"season_index,omitempty"`
}

// MappingExport is a snapshot of the mapping store.
type MappingExport struct {
	GeneratedAt time.Time    `json:"generated_at"`
	Mappings    []MappingRow `json:"mappings"`
}

// NewMappingExport pairs mappings with their series and season from library. Mappings whose season is
// no longer in the library keep an empty title.
func NewMappingExport(mappings []models.Mapping, library []models.LibrarySeries) *MappingExport {
	byID := make(map[string]models.LibrarySeries, len(library))
	for _, s := range library {
		byID[s.ID] = s
	}

	export := &MappingExport{GeneratedAt: time.Now().UTC(), Mappings: make([]MappingRow, 0, len(mappings))}
	for _, m := range mappings {
		row := MappingRow{Mapping: m}
		if series, ok := byID[m.SeriesID]; ok {
			row.SeriesTitle = series.Title
			if season, ok := series.Season(m.SeasonID); ok {
				row.SeasonIndex = models.IntPtr(season.Index)
			}
		}
		export.Mappings = append(export.Mappings, row)
	}
	return export
}

// planRow carries the apply error, which [models.PlannedUpdate] does not serialize.
type planRow struct {
	models.PlannedUpdate
	Error string `json:"error,omitempty"`
}

// PlanExport is the outcome of one sync.
type PlanExport struct {
	GeneratedAt time.Time `json:"generated_at"`
	DryRun      bool      `json:"dry_run"`
	Updates     []planRow `json:"updates"`
}

// NewPlanExport wraps a sync plan for export.
func NewPlanExport(updates []models.PlannedUpdate, dryRun bool) *PlanExport {
	export := &PlanExport{GeneratedAt: time.Now().UTC(), DryRun: dryRun, Updates: make([]planRow, 0, len(updates))}
	for _, u := range updates {
		row := planRow{PlannedUpdate: u}
		if u.Err != nil {
			row.Error = u.Err.Error()
		}
		export.Updates = append(export.Updates, row)
	}
	return export
}

func optional(v *int) string {
	if v == nil {
		return "?"
	}
	return strconv.Itoa(*v)
}

func (r MappingRow) season() string {
	if r.SeasonIndex == nil {
		return r.SeasonID
	}
	return strconv.Itoa(*r.SeasonIndex)
}

func (r MappingRow) title() string {
	if r.SeriesTitle == "" {
		return r.SeriesID
	}
	return r.SeriesTitle
}

func (r MappingRow) flags() string {
	var flags []string
	if !r.Enabled {
		flags = append(flags, "disabled")
	}
	if r.Ignored {
		flags = append(flags, "ignored")
	}
	return strings.Join(flags, ",")
}

// Previous returns the tracker status before the update as "status (progress)", or "-" for a new entry.
func Previous(u models.PlannedUpdate) string {
	if u.Previous == nil {
		return "-"
	}
	return fmt.Sprintf("%s (%d)", u.Previous.Status, u.Previous.Progress)
}

// Outcome describes whether an update was applied.
func Outcome(u models.PlannedUpdate) string {
	switch {
	case u.Err != nil:
		return "failed"
	case u.Applied:
		return "applied"
	default:
		return "pending"
	}
}

func writeCSV(records [][]string) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	for i, record := range records {
		if err := writer.Write(record); err != nil {
			if i == 0 {
				return nil, fmt.Errorf("failed to write CSV headers: %w", err)
			}
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// MappingsToCSV converts a MappingExport to CSV with columns:
// ID, Series ID, Series, Season, Offset, Length, Catalog ID, Catalog Episodes, Enabled, Ignored
func MappingsToCSV(export *MappingExport) ([]byte, error) {
	records := [][]string{{"ID", "Series ID", "Series", "Season", "Offset", "Length", "Catalog ID", "Catalog Episodes", "Enabled", "Ignored"}}
	for _, r := range export.Mappings {
		records = append(records, []string{
			r.ID.String(),
			r.SeriesID,
			r.SeriesTitle,
			r.season(),
			strconv.Itoa(r.EpisodeOffset),
			strconv.Itoa(r.SeasonLength),
			strconv.Itoa(r.CatalogID),
			optional(r.CatalogEpisodes),
			strconv.FormatBool(r.Enabled),
			strconv.FormatBool(r.Ignored),
		})
	}
	return writeCSV(records)
}

// MappingsToMarkdown renders a MappingExport as a Markdown table.
func MappingsToMarkdown(export *MappingExport) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("# Mappings\n\n")
	buf.WriteString(fmt.Sprintf("**Generated**: %s\n", export.GeneratedAt.Format(time.RFC3339)))
	buf.WriteString(fmt.Sprintf("**Mappings**: %d\n\n", len(export.Mappings)))

	buf.WriteString("| ID | Series | Season | Episodes | AniList | Notes |\n")
	buf.WriteString("|---|---|---|---|---|---|\n")
	for _, r := range export.Mappings {
		buf.WriteString(fmt.Sprintf("| %s | %s | %s | %d-%d | [%d](https://anilist.co/anime/%d) | %s |\n",
			r.ID, escapeMarkdown(r.title()), r.season(),
			r.FirstEpisode()+1, r.FirstEpisode()+r.SeasonLength,
			r.CatalogID, r.CatalogID, r.flags()))
	}

	return buf.Bytes(), nil
}

// MappingsToText renders a MappingExport as one line per mapping.
func MappingsToText(export *MappingExport) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Mappings: %d\n\n", len(export.Mappings)))
	for i, r := range export.Mappings {
		line := fmt.Sprintf("%d. %s season %s, episodes %d-%d -> anilist %d",
			i+1, r.title(), r.season(), r.FirstEpisode()+1, r.FirstEpisode()+r.SeasonLength, r.CatalogID)
		if flags := r.flags(); flags != "" {
			line += " [" + flags + "]"
		}
		buf.WriteString(line + "\n")
	}

	return buf.Bytes(), nil
}

// PlanToCSV converts a PlanExport to CSV with columns: Catalog ID, Title, Status, Progress, Total, Previous, Outcome, Error
func PlanToCSV(export *PlanExport) ([]byte, error) {
	records := [][]string{{"Catalog ID", "Title", "Status", "Progress", "Total", "Previous", "Outcome", "Error"}}
	for _, u := range export.Updates {
		records = append(records, []string{
			strconv.Itoa(u.CatalogID),
			u.Title,
			u.Status.String(),
			strconv.Itoa(u.Progress),
			optional(u.Total),
			Previous(u.PlannedUpdate),
			Outcome(u.PlannedUpdate),
			u.Error,
		})
	}
	return writeCSV(records)
}

// PlanToMarkdown renders a PlanExport as a Markdown table.
func PlanToMarkdown(export *PlanExport) ([]byte, error) {
	var buf bytes.Buffer

	title := "Sync"
	if export.DryRun {
		title = "Sync (dry run)"
	}
	buf.WriteString(fmt.Sprintf("# %s\n\n", title))
	buf.WriteString(fmt.Sprintf("**Generated**: %s\n", export.GeneratedAt.Format(time.RFC3339)))
	buf.WriteString(fmt.Sprintf("**Updates**: %d\n\n", len(export.Updates)))

	buf.WriteString("| Title | Status | Progress | Previous | Outcome |\n")
	buf.WriteString("|---|---|---|---|---|\n")
	for _, u := range export.Updates {
		buf.WriteString(fmt.Sprintf("| %s | %s | %d/%s | %s | %s |\n",
			escapeMarkdown(u.Title), u.Status, u.Progress, optional(u.Total), Previous(u.PlannedUpdate), Outcome(u.PlannedUpdate)))
	}

	return buf.Bytes(), nil
}

// PlanToText renders a PlanExport as one line per update.
func PlanToText(export *PlanExport) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Updates: %d\n\n", len(export.Updates)))
	for i, u := range export.Updates {
		buf.WriteString(fmt.Sprintf("%d. %s: %s -> %s (%d/%s)",
			i+1, u.Title, Previous(u.PlannedUpdate), u.Status, u.Progress, optional(u.Total)))
		if u.Error != "" {
			buf.WriteString(" error: " + u.Error)
		}
		buf.WriteString("\n")
	}

	return buf.Bytes(), nil
}

func escapeMarkdown(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// ExportMappings encodes export in format.
func ExportMappings(export *MappingExport, format Format) ([]byte, error) {
	switch format {
	case JSON:
		return shared.MarshalJSON(export, true)
	case CSV:
		return MappingsToCSV(export)
	case Markdown:
		return MappingsToMarkdown(export)
	case Text:
		return MappingsToText(export)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidFlag, format)
	}
}

// ExportPlan encodes export in format.
func ExportPlan(export *PlanExport, format Format) ([]byte, error) {
	switch format {
	case JSON:
		return shared.MarshalJSON(export, true)
	case CSV:
		return PlanToCSV(export)
	case Markdown:
		return PlanToMarkdown(export)
	case Text:
		return PlanToText(export)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidFlag, format)
	}
}

// WriteMappingExport writes export to path in format and returns the path written.
//
// Defaults to anisync_mappings.{ext} as the filename.
func WriteMappingExport(export *MappingExport, format Format, path string) (string, error) {
	if path == "" {
		path = "anisync_mappings." + format.Extension()
	}

	data, err := ExportMappings(export, format)
	if err != nil {
		return "", fmt.Errorf("failed to generate %s: %w", format, err)
	}
	return path, writeFile(path, data)
}

// WritePlanExport writes export to path in format and returns the path written.
//
// Defaults to anisync_plan.{ext} as the filename.
func WritePlanExport(export *PlanExport, format Format, path string) (string, error) {
	if path == "" {
		path = "anisync_plan." + format.Extension()
	}

	data, err := ExportPlan(export, format)
	if err != nil {
		return "", fmt.Errorf("failed to generate %s: %w", format, err)
	}
	return path, writeFile(path, data)
}

func writeFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
