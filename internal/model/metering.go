package model

import "time"

// SampleFilter restricts a meter statistics query to a set of resources,
// one meter, and an open time window (Start, End).
type SampleFilter struct {
	Resources []string  `json:"resource"`
	Meter     string    `json:"meter"`
	Start     time.Time `json:"start_timestamp"`
	End       time.Time `json:"end_timestamp"`
}

// MeterStatistic is an aggregate of samples for one resource.
type MeterStatistic struct {
	ResourceID string    `json:"resource_id"`
	Avg        float64   `json:"avg"`
	Min        float64   `json:"min"`
	Max        float64   `json:"max"`
	Count      int64     `json:"count"`
	PeriodEnd  time.Time `json:"period_end"`
}

// Alarm states.
const (
	AlarmStateInsufficientData = "insufficient data"
	AlarmStateAlarm            = "alarm"
	AlarmStateOK               = "ok"
)

// Alarm is a threshold alarm definition with its current evaluation state.
type Alarm struct {
	AlarmID string `json:"alarm_id"`
	Name    string `json:"name"`
	State   string `json:"state"`
}
