package models

import "time"

// ArchiveStatus marks how far an archive got.
type ArchiveStatus string

const (
	// StatusArchiving means the record was written but live sales may not be
	// fully cleared yet.
	StatusArchiving ArchiveStatus = "archiving"
	StatusArchived  ArchiveStatus = "archived"
)

// HistoricalFeria is a frozen fair: the config and sales as they stood at
// archive time, plus the report computed from them.
type HistoricalFeria struct {
	ID         string        `json:"id"`
	Config     FeriaConfig   `json:"config"`
	Sales      []Sale        `json:"sales"`
	Report     ReportSummary `json:"reportSummary"`
	ArchivedAt time.Time     `json:"archivedAt"`
	Status     ArchiveStatus `json:"status"`
}
