package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-reschedule-api/internal/dto"
	"github.com/noah-isme/sma-reschedule-api/internal/models"
	"github.com/noah-isme/sma-reschedule-api/internal/scheduling"
	appErrors "github.com/noah-isme/sma-reschedule-api/pkg/errors"
)

type roomReader interface {
	List(ctx context.Context, filter models.RoomFilter) ([]models.Room, int, error)
	ListAll(ctx context.Context) ([]models.Room, error)
	FindByID(ctx context.Context, id string) (*models.Room, error)
}

// RoomServiceConfig tunes availability search and recommendation.
type RoomServiceConfig struct {
	Location            *time.Location
	RecommendationLimit int
	NearbyDays          int
	CacheTTL            time.Duration
}

// RoomService resolves room availability and recommends alternatives.
type RoomService struct {
	rooms    roomReader
	bookings bookingReader
	cache    *CacheService
	metrics  *MetricsService
	validate *validator.Validate
	logger   *zap.Logger
	cfg      RoomServiceConfig
	now      func() time.Time
}

// NewRoomService constructs a RoomService.
func NewRoomService(rooms roomReader, bookings bookingReader, cache *CacheService, metrics *MetricsService, cfg RoomServiceConfig, validate *validator.Validate, logger *zap.Logger) *RoomService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &RoomService{
		rooms:    rooms,
		bookings: bookings,
		cache:    cache,
		metrics:  metrics,
		validate: validate,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

func (s *RoomService) today() scheduling.CalendarDate {
	return scheduling.DateOf(s.now().In(s.cfg.Location))
}

// List returns a page of rooms.
func (s *RoomService) List(ctx context.Context, filter models.RoomFilter) ([]models.Room, *models.Pagination, bool, error) {
	type page struct {
		Rooms []models.Room `json:"rooms"`
		Total int           `json:"total"`
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	key := fmt.Sprintf("%slist:%s:%s:%s:%d:%s:%d:%d:%s:%s", cacheKeyRooms, filter.Building, filter.Type, filter.Status, filter.MinCapacity, filter.Search, filter.Page, filter.PageSize, filter.SortBy, filter.SortOrder)

	var result page
	hit, err := s.cache.Remember(ctx, key, s.cfg.CacheTTL, &result, func() error {
		rooms, total, err := s.rooms.List(ctx, filter)
		if err != nil {
			return err
		}
		result = page{Rooms: rooms, Total: total}
		return nil
	})
	if err != nil {
		return nil, nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list rooms")
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: result.Total}
	return result.Rooms, pagination, hit, nil
}

// Get returns a room by id.
func (s *RoomService) Get(ctx context.Context, id string) (*models.Room, error) {
	room, err := s.rooms.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "room not found", "failed to load room")
	}
	return room, nil
}

// Schedule returns the room's bookings and half-hour grids for the week containing date.
func (s *RoomService) Schedule(ctx context.Context, id, rawDate string) (*dto.RoomSchedule, error) {
	date := s.today()
	if rawDate != "" {
		parsed, err := scheduling.ParseFlexibleDate(rawDate)
		if err != nil {
			return nil, parseFailure("", "date", err)
		}
		date = parsed
	}

	room, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	week := scheduling.WeekDates(date)
	rows, err := s.bookings.ListByRoom(ctx, id, week[0], week[6])
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room bookings")
	}

	out := &dto.RoomSchedule{Room: *room, Bookings: rows, Days: scheduling.BuildWeekGrid(date, models.RoomBookings(rows))}
	if out.Bookings == nil {
		out.Bookings = []models.RoomBooking{}
	}
	for _, d := range week {
		out.Week = append(out.Week, d.String())
	}
	return out, nil
}

// CheckAvailability reports whether one room is free at a placement.
func (s *RoomService) CheckAvailability(ctx context.Context, req dto.CheckAvailabilityRequest) (*dto.CheckAvailabilityResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, validationFailure(err)
	}
	at, err := parsePlacement(req.PlacementRequest)
	if err != nil {
		return nil, err
	}

	room, err := s.Get(ctx, req.RoomID)
	if err != nil {
		return nil, err
	}
	rows, err := s.bookings.ListByRoom(ctx, room.ID, at.Date, at.Date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room bookings")
	}

	var relevant []scheduling.Booking
	for _, b := range models.RoomBookings(rows) {
		if req.ExcludeLessonID != "" && b.SubjectID == req.ExcludeLessonID {
			continue
		}
		relevant = append(relevant, b)
	}
	conflicts := scheduling.ConflictsWithAny(at, relevant)
	if conflicts == nil {
		conflicts = []scheduling.Booking{}
	}
	return &dto.CheckAvailabilityResponse{RoomID: room.ID, Available: len(conflicts) == 0, Conflicts: conflicts}, nil
}

// SearchAvailable returns free rooms matching the constraints, best first.
func (s *RoomService) SearchAvailable(ctx context.Context, req dto.SearchAvailableRequest) ([]scheduling.RankedRoom, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, validationFailure(err)
	}
	at, err := parsePlacement(req.PlacementRequest)
	if err != nil {
		return nil, err
	}

	pool, err := s.pool(ctx, at.Date, at.Date)
	if err != nil {
		return nil, err
	}
	free := scheduling.FilterAvailable(pool.Rooms, at, pool.BookingsByRoom, scheduling.RoomConstraints{
		MinCapacity:      req.MinCapacity,
		Building:         req.Building,
		Type:             req.Type,
		ExcludeSubjectID: req.ExcludeLessonID,
	})
	return scheduling.RankRooms(free, scheduling.RoomPreferences{
		MinCapacity:       req.MinCapacity,
		PreferredBuilding: req.PreferredBuilding,
		PreferredType:     req.PreferredType,
	}), nil
}

// Alternatives suggests substitutes for a rejected room placement.
func (s *RoomService) Alternatives(ctx context.Context, req dto.AlternativesRequest) ([]scheduling.Candidate, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, validationFailure(err)
	}
	at, err := parsePlacement(req.PlacementRequest)
	if err != nil {
		return nil, err
	}

	from, to := at.Date, at.Date
	if req.FlexibleDate && s.cfg.NearbyDays > 0 {
		from, to = at.Date.AddDays(-s.cfg.NearbyDays), at.Date.AddDays(s.cfg.NearbyDays)
	}
	pool, err := s.pool(ctx, from, to)
	if err != nil {
		return nil, err
	}

	recommender := scheduling.Recommender{
		TimeFinder: scheduling.CatalogSlotFinder{},
		DateFinder: scheduling.NearbyDateFinder{Days: s.cfg.NearbyDays, Today: s.today()},
		Limit:      s.cfg.RecommendationLimit,
	}
	candidates := recommender.Recommend(
		scheduling.Request{RoomID: req.RoomID, Date: at.Date, Interval: at.Interval, SubjectID: req.LessonID},
		pool,
		scheduling.Preferences{
			RoomPreferences: scheduling.RoomPreferences{
				MinCapacity:       req.MinCapacity,
				PreferredBuilding: req.PreferredBuilding,
				PreferredType:     req.PreferredType,
			},
			FlexibleTime: req.FlexibleTime,
			FlexibleDate: req.FlexibleDate,
		},
	)
	s.metrics.ObserveRecommendations(len(candidates))
	return candidates, nil
}

// pool snapshots every room plus their bookings between from and to.
func (s *RoomService) pool(ctx context.Context, from, to scheduling.CalendarDate) (scheduling.Pool, error) {
	var rooms []models.Room
	if _, err := s.cache.Remember(ctx, cacheKeyRooms+"all", s.cfg.CacheTTL, &rooms, func() error {
		var err error
		rooms, err = s.rooms.ListAll(ctx)
		return err
	}); err != nil {
		return scheduling.Pool{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load rooms")
	}

	var rows []models.RoomBooking
	key := fmt.Sprintf("%s%s:%s", cacheKeyBookings, from, to)
	if _, err := s.cache.Remember(ctx, key, s.cfg.CacheTTL, &rows, func() error {
		var err error
		rows, err = s.bookings.ListByDateRange(ctx, from, to)
		return err
	}); err != nil {
		return scheduling.Pool{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load bookings")
	}

	return scheduling.Pool{
		Rooms:          models.RoomsToDomain(rooms),
		BookingsByRoom: scheduling.GroupByOwner(models.RoomBookings(rows), scheduling.OwnerRoom),
	}, nil
}

func parsePlacement(req dto.PlacementRequest) (scheduling.Placement, error) {
	date, err := scheduling.ParseFlexibleDate(req.Date)
	if err != nil {
		return scheduling.Placement{}, parseFailure("", "date", err)
	}
	interval, err := scheduling.ParseTimes(req.StartTime, req.EndTime)
	if err != nil {
		return scheduling.Placement{}, parseFailure("", "time", err)
	}
	return scheduling.Placement{Date: date, Interval: interval}, nil
}
