package legacy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-reschedule-api/internal/models"
	"github.com/noah-isme/sma-reschedule-api/internal/scheduling"
	"github.com/noah-isme/sma-reschedule-api/pkg/config"
)

// ErrUpstream wraps non-2xx answers from the legacy backend.
var ErrUpstream = errors.New("legacy backend error")

const maxErrorBody = 2048

// Client talks to the classroom backend the admin UI used before this service.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient builds a client. A nil httpClient gets one bounded by cfg.Timeout.
func NewClient(cfg config.LegacyConfig, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.APIToken,
		http:    httpClient,
		logger:  logger,
	}
}

// flexID accepts ids sent as JSON numbers or strings.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %s", data)
	}
	*f = flexID(n.String())
	return nil
}

type lessonPayload struct {
	ID              flexID      `json:"id"`
	ClassID         flexID      `json:"classId"`
	TeacherID       flexID      `json:"teacherId"`
	RoomID          flexID      `json:"roomId"`
	Title           string      `json:"title"`
	ActualDate      interface{} `json:"actualDate"`
	ActualStartTime string      `json:"actualStartTime"`
	ActualEndTime   string      `json:"actualEndTime"`
	Status          string      `json:"status"`
}

func (p lessonPayload) lesson(classID string) (models.Lesson, error) {
	date, err := scheduling.ParseFlexibleDate(p.ActualDate)
	if err != nil {
		return models.Lesson{}, err
	}
	interval, err := scheduling.ParseTimes(p.ActualStartTime, p.ActualEndTime)
	if err != nil {
		return models.Lesson{}, err
	}
	l := models.Lesson{
		ID:         string(p.ID),
		ClassID:    string(p.ClassID),
		TeacherID:  string(p.TeacherID),
		RoomID:     string(p.RoomID),
		Title:      p.Title,
		LessonDate: date,
		StartTime:  interval.Start,
		EndTime:    interval.End,
		Status:     strings.ToUpper(p.Status),
	}
	if l.ClassID == "" {
		l.ClassID = classID
	}
	if l.Status == "" {
		l.Status = models.LessonScheduled
	}
	return l, nil
}

// FetchLessons loads a class's lessons. Rows with unreadable dates or times are skipped.
func (c *Client) FetchLessons(ctx context.Context, classID string) ([]models.Lesson, error) {
	raw, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/classes/%s/lessons", classID), nil)
	if err != nil {
		return nil, err
	}
	items, err := unwrapList(raw)
	if err != nil {
		return nil, fmt.Errorf("decode lessons: %w", err)
	}

	lessons := make([]models.Lesson, 0, len(items))
	for _, item := range items {
		var p lessonPayload
		if err := json.Unmarshal(item, &p); err != nil {
			return nil, fmt.Errorf("decode lesson: %w", err)
		}
		l, err := p.lesson(classID)
		if err != nil {
			c.logger.Warn("skipping legacy lesson", zap.String("class_id", classID), zap.String("lesson_id", string(p.ID)), zap.Error(err))
			continue
		}
		if l.Status == models.LessonCanceled {
			continue
		}
		lessons = append(lessons, l)
	}
	return lessons, nil
}

type weeklySchedule struct {
	StartTime string   `json:"startTime"`
	EndTime   string   `json:"endTime"`
	Days      []string `json:"days"`
}

type conflictRequest struct {
	ClassID         string `json:"classId,omitempty"`
	TeacherID       string `json:"teacherId,omitempty"`
	RoomID          string `json:"roomId,omitempty"`
	ExcludeLessonID string `json:"excludeLessonId,omitempty"`
	Schedule        string `json:"schedule"`
	StartDate       string `json:"startDate"`
	EndDate         string `json:"endDate"`
}

type conflictPayload struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	LessonID  flexID `json:"lessonId"`
	RoomID    flexID `json:"roomId"`
	TeacherID flexID `json:"teacherId"`
	ClassID   flexID `json:"classId"`
}

// CheckConflict asks the legacy backend about one placement as a single-day
// weekly schedule. Any returned entry counts as a conflict.
func (c *Client) CheckConflict(ctx context.Context, q scheduling.ConflictQuery) (scheduling.ConflictResult, error) {
	schedule, err := json.Marshal(weeklySchedule{
		StartTime: q.Interval.Start.String(),
		EndTime:   q.Interval.End.String(),
		Days:      []string{strings.ToLower(q.Date.Weekday().String())},
	})
	if err != nil {
		return scheduling.ConflictResult{}, err
	}
	body := conflictRequest{
		ClassID:         q.ClassID,
		TeacherID:       q.TeacherID,
		RoomID:          q.RoomID,
		ExcludeLessonID: q.ExcludeSubjectID,
		Schedule:        string(schedule),
		StartDate:       q.Date.String(),
		EndDate:         q.Date.String(),
	}

	raw, err := c.do(ctx, http.MethodPost, "/classes/schedule-conflicts", body)
	if err != nil {
		return scheduling.ConflictResult{}, err
	}
	items, err := unwrapList(raw)
	if err != nil {
		return scheduling.ConflictResult{}, fmt.Errorf("decode conflicts: %w", err)
	}

	result := scheduling.ConflictResult{HasConflict: len(items) > 0, Conflicts: make([]scheduling.ConflictDescriptor, 0, len(items))}
	for _, item := range items {
		var p conflictPayload
		if err := json.Unmarshal(item, &p); err != nil {
			p.Message = string(item)
		}
		result.Conflicts = append(result.Conflicts, p.descriptor(q))
	}
	return result, nil
}

func (p conflictPayload) descriptor(q scheduling.ConflictQuery) scheduling.ConflictDescriptor {
	d := scheduling.ConflictDescriptor{
		Kind:      scheduling.OwnerRoom,
		OwnerID:   q.RoomID,
		SubjectID: string(p.LessonID),
		Date:      q.Date,
		Interval:  q.Interval,
		Message:   p.Message,
	}
	kind := strings.ToLower(p.Type)
	switch {
	case strings.Contains(kind, "teacher"):
		d.Kind, d.OwnerID = scheduling.OwnerTeacher, q.TeacherID
	case strings.Contains(kind, "class"):
		d.Kind, d.OwnerID = scheduling.OwnerClass, q.ClassID
	}
	if d.Message == "" {
		d.Message = fmt.Sprintf("legacy backend reports a %s conflict on %s %s", strings.ToLower(string(d.Kind)), q.Date, q.Interval)
	}
	return d
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", method, path, err)
	}
	c.logger.Debug("legacy call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(data) > maxErrorBody {
			data = data[:maxErrorBody]
		}
		return nil, fmt.Errorf("%w: %s %s returned %d: %s", ErrUpstream, method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}

// unwrapList reads data.data, data or a bare array, in that order.
func unwrapList(raw []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var items []json.RawMessage
		err := json.Unmarshal(trimmed, &items)
		return items, err
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, err
	}
	if len(envelope.Data) == 0 {
		return nil, nil
	}
	return unwrapList(envelope.Data)
}
