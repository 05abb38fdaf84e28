package dto

import "time"

// ExportFormat names a timetable export encoding.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportFile is a rendered download.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportLink is a stored timetable reachable through a signed URL.
type ExportLink struct {
	Token     string       `json:"token"`
	URL       string       `json:"url"`
	Filename  string       `json:"filename"`
	Format    ExportFormat `json:"format"`
	ExpiresAt time.Time    `json:"expires_at"`
}
