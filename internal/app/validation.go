package app

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/KollinFreise/carbonAwareHome/internal/domain/scheduling"
	"github.com/KollinFreise/carbonAwareHome/pkg"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func paramsValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		_ = validate.RegisterValidation("location", func(fl validator.FieldLevel) bool {
			return pkg.IsSupportedLocation(fl.Field().String())
		})
	})
	return validate
}

// validateParams checks the payload shape. Missing datetimes surface as
// ErrInvalidDatetime, every other violation as ErrInvalidWindow.
func validateParams(params BestTimeParams) error {
	err := paramsValidator().Struct(params)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalidWindow, err)
	}
	for _, fieldErr := range fieldErrs {
		switch fieldErr.Field() {
		case "DataStartAt", "DataEndAt":
			return fmt.Errorf("%w: %s is required", ErrInvalidDatetime, jsonFieldName(fieldErr.Field()))
		}
	}
	first := fieldErrs[0]
	return fmt.Errorf("%w: %s failed %q validation", ErrInvalidWindow, jsonFieldName(first.Field()), first.Tag())
}

func jsonFieldName(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04Z07:00",
	"2006-01-02 15:04Z07:00",
}

var localDateTimeLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseDateTime accepts ISO-8601 style timestamps. Values without an offset
// are read as wall-clock time in loc.
func parseDateTime(raw string, loc *time.Location) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: empty datetime", ErrInvalidDatetime)
	}
	for _, layout := range dateTimeLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), nil
		}
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range localDateTimeLayouts {
		if ts, err := time.ParseInLocation(layout, value, loc); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: cannot parse %q", ErrInvalidDatetime, raw)
}

func validateRequest(req ForecastRequest) error {
	if err := scheduling.ValidateWindow(req.WindowStart, req.WindowEnd, req.RuntimeMinutes); err != nil {
		return wrapDomainError(err)
	}
	if err := req.AllowedHours.Validate(); err != nil {
		return fmt.Errorf("%w: allowed hours: %v", ErrInvalidWindow, err)
	}
	if req.PowerWatts < 0 {
		return fmt.Errorf("%w: power must be >= 0", ErrInvalidWindow)
	}
	return nil
}
