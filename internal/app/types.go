package app

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/KollinFreise/carbonAwareHome/internal/domain/scheduling"
	"github.com/KollinFreise/carbonAwareHome/pkg"
)

type Status string

const (
	StatusOK              Status = "OK"
	StatusNoData          Status = "NoData"
	StatusInvalidWindow   Status = "InvalidWindow"
	StatusInvalidDatetime Status = "InvalidDatetime"
	StatusTimeout         Status = "Timeout"
	StatusError           Status = "Error"
)

// SourceRaw marks results computed from the raw measured/forecast series.
const SourceRaw = "raw"

// ForecastRequest asks for the best start of a task inside a window.
// ForecastRequest 描述一次最佳启动时间查询：窗口、运行时长与允许的小时段。
type ForecastRequest struct {
	Location       string
	WindowStart    time.Time
	WindowEnd      time.Time
	RuntimeMinutes int
	AllowedHours   scheduling.HourRanges
	// PowerWatts enables EstimatedEmissionGrams when > 0.
	PowerWatts float64

	// rawStart/rawEnd echo the caller's original strings in the result.
	rawStart string
	rawEnd   string
}

// ForecastResult always carries a status; BestStart and AvgIntensity are set
// only when the status is OK.
// ForecastResult 总是带有状态；仅当状态为 OK 时才包含最佳启动时间与平均强度。
type ForecastResult struct {
	Status                 Status     `json:"status"`
	Source                 string     `json:"source"`
	BestStart              *time.Time `json:"best_start"`
	BestEnd                *time.Time `json:"best_end,omitempty"`
	AvgIntensity           *float64   `json:"avg_intensity"`
	WindowStart            string     `json:"start"`
	WindowEnd              string     `json:"end"`
	RuntimeMinutes         int        `json:"runtime_minutes"`
	Location               string     `json:"location"`
	EstimatedEmissionGrams *float64   `json:"estimated_emission_g,omitempty"`
	Message                string     `json:"message,omitempty"`
}

// CurrentReading is the interpolated intensity at a point in time plus cache metadata.
type CurrentReading struct {
	Location     string
	Value        float64
	Timestamp    time.Time
	FetchedAt    time.Time
	CacheAge     time.Duration
	SeriesLength int
	Source       string
}

// SensorState is the published shape of the current-intensity sensor.
type SensorState struct {
	State      *float64         `json:"state"`
	Unit       string           `json:"unit"`
	Attributes SensorAttributes `json:"attributes"`
}

type SensorAttributes struct {
	Status          Status `json:"status"`
	Source          string `json:"source"`
	TimestampUTC    string `json:"timestamp_utc,omitempty"`
	CacheAgeSeconds *int64 `json:"cache_age_seconds"`
	SeriesLength    int    `json:"series_length"`
	Location        string `json:"location"`
}

// BestTimeParams is the raw action payload, parsed at the boundary by
// BestTimeFromParams.
type BestTimeParams struct {
	DataStartAt     string        `json:"dataStartAt" validate:"required"`
	DataEndAt       string        `json:"dataEndAt" validate:"required"`
	ExpectedRuntime *RuntimeValue `json:"expectedRuntime,omitempty"`
	AllowedHours    string        `json:"allowedHours,omitempty" validate:"max=64"`
	PowerWatts      float64       `json:"powerWatts,omitempty" validate:"gte=0,lte=100000"`
	Location        string        `json:"location,omitempty" validate:"omitempty,location"`
}

// RuntimeMinutes is ExpectedRuntime, or the default runtime when it is unset.
func (p BestTimeParams) RuntimeMinutes() int {
	if p.ExpectedRuntime != nil && p.ExpectedRuntime.Valid {
		return p.ExpectedRuntime.Minutes
	}
	return pkg.DefaultRuntimeMinutes
}

// RuntimeValue accepts a JSON number or a numeric string. Anything else
// decodes as unset, so the default runtime applies.
type RuntimeValue struct {
	Minutes int
	Valid   bool
}

func (v *RuntimeValue) UnmarshalJSON(data []byte) error {
	*v = RuntimeValue{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	raw := string(data)
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		raw = strings.TrimSpace(s)
	}

	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	v.Minutes = int(f)
	v.Valid = true
	return nil
}

func (v RuntimeValue) MarshalJSON() ([]byte, error) {
	if !v.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(v.Minutes)), nil
}

func Runtime(minutes int) *RuntimeValue {
	return &RuntimeValue{Minutes: minutes, Valid: true}
}
