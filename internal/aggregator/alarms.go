package aggregator

import (
	"context"
	"fmt"

	"skynet-agent/internal/model"
)

// AlarmSummary counts alarms by evaluation state.
func (a *Aggregator) AlarmSummary(ctx context.Context) model.AlarmSummary {
	if a.collab.Alarms == nil {
		a.fail(MetricAlarmsTotal, errNotConfigured)
		return model.AlarmSummary{}
	}
	alarms, err := a.collab.Alarms.ListAlarms(ctx)
	if err != nil {
		a.fail(MetricAlarmsTotal, fmt.Errorf("list alarms: %w", err))
		return model.AlarmSummary{}
	}
	out := model.AlarmSummary{Total: len(alarms)}
	for _, al := range alarms {
		switch al.State {
		case model.AlarmStateInsufficientData:
			out.NoData++
		case model.AlarmStateAlarm:
			out.Alarm++
		case model.AlarmStateOK:
			out.OK++
		}
	}
	return out
}
