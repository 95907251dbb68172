package httpapi

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/energy-consumption-aggregation/internal/consumption"
)

// DisplayLayout renders first/last reading times in status responses.
const DisplayLayout = "Mon, 02 Jan 2006 15:04 -0700"

const (
	pending      = "pending"
	notAvailable = "n.a."
)

var validate = validator.New()

// Service is the part of consumption.Service the routes depend on.
type Service interface {
	Status() consumption.Status
	Trigger() bool
	Day(ref string) (consumption.DayView, error)
	Averages(kind consumption.Kind) (consumption.AveragesView, error)
}

// RegisterRoutes wires the HTTP handlers into the Fiber app. Times in status
// responses are shown in loc.
func RegisterRoutes(app *fiber.App, service Service, loc *time.Location) {
	if loc == nil {
		loc = time.Local
	}
	v1 := app.Group("/api/v1")

	v1.Get("/data/avail", func(c *fiber.Ctx) error {
		return c.JSON(availResponse(service.Status(), loc))
	})

	update := func(c *fiber.Ctx) error {
		running := service.Trigger()
		return c.JSON(fiber.Map{
			"ok":      true,
			"running": running,
		})
	}
	v1.Post("/data/update", update)
	v1.Get("/data/update", update)

	v1.Get("/chart/daily/:day", func(c *fiber.Ctx) error {
		req := dayParam{Day: c.Params("day")}
		if req.Day != "last" {
			if err := validate.Struct(req); err != nil {
				return fmt.Errorf("%w: %s", consumption.ErrInvalidDate, req.Day)
			}
		}

		view, err := service.Day(req.Day)
		if err != nil {
			return err
		}
		slog.Debug("httpapi: returning day", slog.String("day", view.Day.Date))
		return c.JSON(dayResponse(view))
	})

	v1.Get("/chart/averages/:which", func(c *fiber.Ctx) error {
		req := averagesParam{Which: c.Params("which")}
		if err := validate.Struct(req); err != nil {
			return fmt.Errorf("%w: %s", consumption.ErrUnknownKind, req.Which)
		}

		view, err := service.Averages(consumption.Kind(req.Which))
		if err != nil {
			return err
		}
		return c.JSON(averagesResponse(view))
	})
}

// ErrorHandler renders every error as {ok, error, message} with a status
// derived from the consumption error kinds.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		code = fe.Code
	case errors.Is(err, consumption.ErrInvalidDate), errors.Is(err, consumption.ErrUnknownKind):
		code = fiber.StatusBadRequest
	case errors.Is(err, consumption.ErrDayNotFound):
		code = fiber.StatusNotFound
	case errors.Is(err, consumption.ErrNoAnalytics):
		code = fiber.StatusServiceUnavailable
	}

	return c.Status(code).JSON(fiber.Map{
		"ok":      false,
		"error":   true,
		"message": err.Error(),
	})
}

type dayParam struct {
	Day string `validate:"required,datetime=2006-01-02"`
}

type averagesParam struct {
	Which string `validate:"required,oneof=total base max"`
}

func availResponse(st consumption.Status, loc *time.Location) fiber.Map {
	trail := st.Log
	if trail == nil {
		trail = []consumption.StateEntry{}
	}
	ret := fiber.Map{
		"running": st.Running,
		"state":   st.State,
		"log":     trail,
	}

	if st.Running || st.Available == nil {
		ret["have_data"] = true
		ret["records"] = pending
		ret["incomplete_days"] = pending
		ret["missing_days"] = pending
		ret["first_time"] = pending
		ret["last_time"] = pending
		return ret
	}

	av := st.Available
	incomplete := av.IncompleteDays
	if incomplete == nil {
		incomplete = []consumption.IncompleteDay{}
	}
	missing := av.MissingDays
	if missing == nil {
		missing = []string{}
	}
	ret["have_data"] = av.HaveData()
	ret["records"] = av.Records
	ret["incomplete_days"] = incomplete
	ret["missing_days"] = missing
	ret["first_time"] = displayTime(av.FirstTime, loc)
	ret["last_time"] = displayTime(av.LastTime, loc)
	return ret
}

func displayTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return notAvailable
	}
	return t.In(loc).Format(DisplayLayout)
}

func dayResponse(v consumption.DayView) fiber.Map {
	d := v.Day
	return fiber.Map{
		"ok":  true,
		"day": d.Date,
		"chart": fiber.Map{
			"times":                 d.Times,
			"half_hour_consumption": d.Consumption,
		},
		"stats": fiber.Map{
			"day_total": d.Total,
			"base":      d.Base,
			"max":       d.Max,
			"full":      d.Full(),
		},
		"meta": fiber.Map{
			"first_day":      v.Meta.FirstDay,
			"last_day":       v.Meta.LastDay,
			"first_full_day": nullable(v.Meta.FirstFullDay),
			"last_full_day":  nullable(v.Meta.LastFullDay),
			"prev":           v.Prev,
			"next":           v.Next,
		},
	}
}

func averagesResponse(v consumption.AveragesView) fiber.Map {
	days := v.Days
	if days == nil {
		days = []string{}
	}
	chart := fiber.Map{
		"days":  days,
		"daily": v.Daily,
	}
	for _, s := range v.Series {
		chart[s.Label] = s.Values
	}

	return fiber.Map{
		"ok":    true,
		"kind":  v.Kind,
		"chart": chart,
		"meta": fiber.Map{
			"first_day":      v.Meta.FirstDay,
			"last_day":       v.Meta.LastDay,
			"first_full_day": nullable(v.Meta.FirstFullDay),
			"last_full_day":  nullable(v.Meta.LastFullDay),
		},
	}
}

// nullable maps an empty date onto a JSON null.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
