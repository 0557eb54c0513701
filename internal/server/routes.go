package server

import (
	"net/http"
	"time"

	"github.com/berfenger/pvlogger/internal/core/domain"
	"github.com/berfenger/pvlogger/internal/core/service"
	"github.com/berfenger/pvlogger/pkg/rs485_inverter"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	ACTOR_REQUEST_TIMEOUT = 5 * time.Second
	MAX_MINUTES_WINDOW    = 31 * 24 * 60 * 60
)

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/status", s.StatusHandler)
	if s.backend.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.backend.Metrics))
	}

	api := e.Group("/api")
	api.GET("/minutes", s.MinutesHandler)
	api.GET("/days", s.DaysHandler)
	api.GET("/power_curve", s.PowerCurveHandler)
	api.GET("/yield", s.YieldHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, ACTOR_REQUEST_TIMEOUT).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

type cycleDTO struct {
	Timestamp      int64                    `json:"timestamp"`
	DurationMillis int64                    `json:"duration_ms"`
	Readings       []rs485_inverter.Reading `json:"readings"`
	Absent         []int                    `json:"absent"`
	PollError      string                   `json:"poll_error,omitempty"`
	AppendError    string                   `json:"append_error,omitempty"`
	RollupError    string                   `json:"rollup_error,omitempty"`
	Rollups        []domain.DayRollup       `json:"rollups,omitempty"`
}

type statusDTO struct {
	StartedAt     int64     `json:"started_at"`
	Cycles        uint64    `json:"cycles"`
	FailedCycles  uint64    `json:"failed_cycles"`
	LastPersisted int64     `json:"last_persisted"`
	LastCycle     *cycleDTO `json:"last_cycle,omitempty"`
}

func (s *Server) StatusHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetCycleStatusRequest{}, ACTOR_REQUEST_TIMEOUT).Result()
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	status, ok := res.(domain.GetCycleStatusResponse)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "unexpected status response")
	}
	if status.HasResponseError() {
		return echo.NewHTTPError(http.StatusInternalServerError, status.GetResponseError().Error())
	}
	dto := statusDTO{
		StartedAt:     status.StartedAt,
		Cycles:        status.Cycles,
		FailedCycles:  status.FailedCycles,
		LastPersisted: status.LastPersisted,
	}
	if status.LastCycle != nil {
		dto.LastCycle = newCycleDTO(*status.LastCycle)
	}
	return c.JSON(http.StatusOK, dto)
}

func newCycleDTO(report domain.CycleReport) *cycleDTO {
	dto := &cycleDTO{
		Timestamp:      report.Timestamp,
		DurationMillis: report.Duration.Milliseconds(),
		Readings:       report.Readings,
		Absent:         make([]int, len(report.Absent)),
		Rollups:        report.Rollups,
	}
	for i, addr := range report.Absent {
		dto.Absent[i] = int(addr)
	}
	if report.PollErr != nil {
		dto.PollError = report.PollErr.Error()
	}
	if report.AppendErr != nil {
		dto.AppendError = report.AppendErr.Error()
	}
	if report.RollupErr != nil {
		dto.RollupError = report.RollupErr.Error()
	}
	return dto
}

func (s *Server) MinutesHandler(c echo.Context) error {
	var start, end int64
	var addrs []uint8
	err := echo.QueryParamsBinder(c).
		MustInt64("start", &start).
		MustInt64("end", &end).
		Uint8s("inverter", &addrs).
		BindError()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if end <= start || end-start > MAX_MINUTES_WINDOW {
		return echo.NewHTTPError(http.StatusBadRequest, "end must be after start and within 31 days")
	}
	records, err := s.backend.Minutes.RecordsBetween(c.Request().Context(), start, end, addrs...)
	if err != nil {
		return err
	}
	if records == nil {
		records = []domain.MinuteRecord{}
	}
	return c.JSON(http.StatusOK, records)
}

func (s *Server) DaysHandler(c echo.Context) error {
	var start, end int64
	err := echo.QueryParamsBinder(c).
		MustInt64("start", &start).
		MustInt64("end", &end).
		BindError()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if end <= start {
		return echo.NewHTTPError(http.StatusBadRequest, "end must be after start")
	}
	rollups, err := s.backend.Rollups.RollupsBetween(c.Request().Context(), start, end)
	if err != nil {
		return err
	}
	if rollups == nil {
		rollups = []domain.DayRollup{}
	}
	return c.JSON(http.StatusOK, rollups)
}

func (s *Server) PowerCurveHandler(c echo.Context) error {
	day, err := s.parseDay(c, "date")
	if err != nil {
		return err
	}
	points, err := s.backend.Reports.PowerCurveDay(c.Request().Context(), day)
	if err != nil {
		return err
	}
	if points == nil {
		points = []service.PowerCurvePoint{}
	}
	return c.JSON(http.StatusOK, points)
}

func (s *Server) YieldHandler(c echo.Context) error {
	from, err := s.parseDay(c, "from")
	if err != nil {
		return err
	}
	to, err := s.parseDay(c, "to")
	if err != nil {
		return err
	}
	if !to.After(from) {
		return echo.NewHTTPError(http.StatusBadRequest, "to must be after from")
	}
	days, err := s.backend.Reports.YieldPerDay(c.Request().Context(), from, to)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, days)
}

func (s *Server) parseDay(c echo.Context, param string) (time.Time, error) {
	value := c.QueryParam(param)
	if value == "" {
		return time.Time{}, echo.NewHTTPError(http.StatusBadRequest, param+" is required (YYYY-MM-DD)")
	}
	day, err := service.ParseDay(value, s.backend.Reports.Location())
	if err != nil {
		return time.Time{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return day, nil
}
