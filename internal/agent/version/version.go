package version

import (
	"runtime"
	"time"

	"skynet-agent/internal/config"
)

// Version is overridden at build time with
// -ldflags "-X skynet-agent/internal/agent/version.Version=...".
var Version = "V0.3-dev"

type Info struct {
	AgentVersion   string `json:"agent_version"`
	GoVersion      string `json:"go_version"`
	ZabbixEndpoint string `json:"zabbix_endpoint"`
	SenderHost     string `json:"sender_host"`
	ProbeAddr      string `json:"probe_addr"`
	CheckedAtUnix  int64  `json:"checked_at_unix"`
}

func Get(cfg config.Config) *Info {
	return &Info{
		AgentVersion:   Version,
		GoVersion:      runtime.Version(),
		ZabbixEndpoint: cfg.Zabbix.Host,
		SenderHost:     cfg.Zabbix.SenderHost,
		ProbeAddr:      cfg.Agent.ProbeAddr,
		CheckedAtUnix:  time.Now().UTC().Unix(),
	}
}
