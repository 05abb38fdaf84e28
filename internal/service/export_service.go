package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-reschedule-api/internal/dto"
	"github.com/noah-isme/sma-reschedule-api/pkg/export"
	appErrors "github.com/noah-isme/sma-reschedule-api/pkg/errors"
	"github.com/noah-isme/sma-reschedule-api/pkg/storage"
)

type scheduleSource interface {
	Schedule(ctx context.Context, roomID, rawDate string) (*dto.RoomSchedule, error)
}

type fileStorage interface {
	Save(name string, data []byte) (string, error)
	Open(name string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type linkSigner interface {
	Sign(ownerID, name string) (string, time.Time, error)
	Verify(token string, allowExpired bool) (storage.Grant, error)
	TTL() time.Duration
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export links.
type ExportConfig struct {
	APIPrefix string
}

// ExportService renders room week timetables and hands out signed download links.
type ExportService struct {
	schedules scheduleSource
	storage   fileStorage
	signer    linkSigner
	csv       csvRenderer
	pdf       pdfRenderer
	logger    *zap.Logger
	cfg       ExportConfig
	now       func() time.Time
}

// NewExportService constructs an ExportService. Nil renderers get the package defaults.
func NewExportService(schedules scheduleSource, store fileStorage, signer linkSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = &export.PDFExporter{Landscape: true}
	}
	return &ExportService{
		schedules: schedules,
		storage:   store,
		signer:    signer,
		csv:       csv,
		pdf:       pdf,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Render builds the week timetable of a room in the requested format.
func (s *ExportService) Render(ctx context.Context, roomID, rawDate string, format dto.ExportFormat) (*dto.ExportFile, error) {
	schedule, err := s.schedules.Schedule(ctx, roomID, rawDate)
	if err != nil {
		return nil, err
	}
	dataset := timetableDataset(schedule)
	base := fmt.Sprintf("room_%s_%s", sanitizeFilename(schedule.Room.Number+"_"+schedule.Room.Building), schedule.Week[0])

	switch format {
	case dto.ExportFormatCSV, "":
		data, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &dto.ExportFile{Filename: base + ".csv", ContentType: "text/csv", Data: data}, nil
	case dto.ExportFormatPDF:
		title := fmt.Sprintf("Room %s (%s), week of %s", schedule.Room.Number, schedule.Room.Building, schedule.Week[0])
		data, err := s.pdf.Render(dataset, title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &dto.ExportFile{Filename: base + ".pdf", ContentType: "application/pdf", Data: data}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
}

// Publish renders the timetable, stores it and returns a signed download link.
func (s *ExportService) Publish(ctx context.Context, roomID, rawDate string, format dto.ExportFormat) (*dto.ExportLink, error) {
	file, err := s.Render(ctx, roomID, rawDate, format)
	if err != nil {
		return nil, err
	}
	name := fmt.Sprintf("timetables/%s_%s", s.now().UTC().Format("20060102_150405"), file.Filename)
	if _, err := s.storage.Save(name, file.Data); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}
	token, expiresAt, err := s.signer.Sign(roomID, name)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export link")
	}

	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	if format == "" {
		format = dto.ExportFormatCSV
	}
	s.logger.Info("timetable exported", zap.String("room_id", roomID), zap.String("file", name))
	return &dto.ExportLink{
		Token:     token,
		URL:       fmt.Sprintf("%s/exports/%s", prefix, token),
		Filename:  file.Filename,
		Format:    format,
		ExpiresAt: expiresAt,
	}, nil
}

// Open resolves a signed token to the stored file. The caller closes the file.
func (s *ExportService) Open(token string) (*os.File, string, error) {
	grant, err := s.signer.Verify(token, false)
	switch {
	case errors.Is(err, storage.ErrLinkExpired):
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "download link expired")
	case err != nil:
		return nil, "", appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid download link")
	}
	file, err := s.storage.Open(grant.Name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export")
	}
	// stored names carry a date_time prefix ahead of the client filename
	filename := grant.Name[strings.LastIndex(grant.Name, "/")+1:]
	if parts := strings.SplitN(filename, "_", 3); len(parts) == 3 {
		filename = parts[2]
	}
	return file, filename, nil
}

// Cleanup removes stored exports whose links can no longer be valid.
func (s *ExportService) Cleanup() ([]string, error) {
	removed, err := s.storage.CleanupOlderThan(s.signer.TTL())
	if err != nil {
		return nil, err
	}
	if len(removed) > 0 {
		s.logger.Info("expired exports removed", zap.Int("count", len(removed)))
	}
	return removed, nil
}

// timetableDataset pivots the week grids: one row per half-hour cell, one column per day.
func timetableDataset(schedule *dto.RoomSchedule) export.Dataset {
	headers := []string{"Time"}
	for _, day := range schedule.Days {
		headers = append(headers, fmt.Sprintf("%s %s", day.Date.Weekday().String()[:3], day.Date))
	}
	dataset := export.Dataset{Headers: headers}
	if len(schedule.Days) == 0 {
		return dataset
	}
	for i, cell := range schedule.Days[0].Cells {
		row := map[string]string{"Time": cell.Interval.String()}
		for d, day := range schedule.Days {
			if i < len(day.Cells) && day.Cells[i].Booked {
				row[headers[d+1]] = strings.Join(day.Cells[i].SubjectIDs, " ")
			}
		}
		dataset.Rows = append(dataset.Rows, row)
	}
	return dataset
}

func sanitizeFilename(raw string) string {
	if raw == "" || raw == "_" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", ".", "-")
	result := replacer.Replace(raw)
	if len(result) > 60 {
		return result[:60]
	}
	return result
}
