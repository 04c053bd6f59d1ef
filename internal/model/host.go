package model

// HostGroup is a monitoring backend host group as returned by hostgroup.get.
type HostGroup struct {
	GroupID string `json:"groupid"`
	Name    string `json:"name"`
}

// HostRecord is a monitored physical host as returned by host.get.
// Status "0" means monitored; a non-empty Error means the agent is failing.
type HostRecord struct {
	HostID string `json:"hostid"`
	Host   string `json:"host"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error"`
}

// Active reports whether the host is monitored and healthy.
func (h HostRecord) Active() bool {
	return h.Status == "0" && h.Error == ""
}

// Item is one monitored key on one host. Values arrive as strings from the
// query API and are parsed on use.
type Item struct {
	ItemID    string `json:"itemid"`
	HostID    string `json:"hostid"`
	Key       string `json:"key_"`
	LastValue string `json:"lastvalue"`
	PrevValue string `json:"prevvalue"`
}

// HistoryPoint is a single history.get sample.
type HistoryPoint struct {
	ItemID string `json:"itemid"`
	Clock  string `json:"clock"`
	Value  string `json:"value"`
}

// HistoryType selects the value table queried by history.get.
type HistoryType int

const (
	HistoryFloat    HistoryType = 0
	HistoryUnsigned HistoryType = 3
)
