package model

import (
	"bytes"
	"encoding/json"
)

type HostsSummary struct {
	Total  int `json:"total"`
	Active int `json:"active"`
	Off    int `json:"off"`
}

type MemoryUsage struct {
	Available int64   `json:"available_mems"`
	Total     int64   `json:"total_mems"`
	UsedRatio float64 `json:"mem_used_ratio"`
}

type CPUUtilization struct {
	Total     float64 `json:"total_cpu_util"`
	Used      float64 `json:"used_cpu_util"`
	UsedRatio float64 `json:"used_ratio"`
}

type VMSummary struct {
	Total  int `json:"total_count"`
	Active int `json:"active_count"`
	Error  int `json:"error_count"`
	Off    int `json:"off_count"`
	Paused int `json:"paused_count"`
}

type VMMemoryUsage struct {
	UsedMB    uint64  `json:"used_memory_mb"`
	TotalMB   uint64  `json:"total_memory_mb"`
	UsedRatio float64 `json:"used_memory_ratio"`
}

type VMVCPUUsage struct {
	Used      uint64  `json:"used_vcpus"`
	Total     uint64  `json:"total_vcpus"`
	UsedRatio float64 `json:"used_vcpus_ratio"`
}

type AlarmSummary struct {
	Total  int `json:"total_count"`
	NoData int `json:"no_data_count"`
	Alarm  int `json:"alarm_count"`
	OK     int `json:"ok_count"`
}

// RankedValue is one entry of a top-N result: a display name and its value.
// It renders as a single-key JSON object {"<name>": value}.
type RankedValue struct {
	Name  string
	Value float64
}

func (r RankedValue) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	name, err := json.Marshal(r.Name)
	if err != nil {
		return nil, err
	}
	value, err := json.Marshal(r.Value)
	if err != nil {
		return nil, err
	}
	buf.WriteByte('{')
	buf.Write(name)
	buf.WriteByte(':')
	buf.Write(value)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// TopNResult is an ordered ranking, at most N entries long.
type TopNResult []RankedValue
