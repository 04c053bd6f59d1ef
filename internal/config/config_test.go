package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SKYNET_ZABBIX_HOST", "zbx.example.net")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "zbx.example.net", cfg.Zabbix.Host)
	assert.Equal(t, 10051, cfg.Zabbix.Port)
	assert.Equal(t, 3*time.Second, cfg.Zabbix.SocketTimeout)
	assert.Equal(t, 80, cfg.Zabbix.WebPort)
	assert.Equal(t, "zabbix", cfg.Zabbix.WebApp)
	assert.Equal(t, 5, cfg.Zabbix.HTTPMaxRetries)
	assert.Equal(t, 8*time.Second, cfg.Zabbix.HTTPRetriesInterval)
	assert.Equal(t, "openstack", cfg.Zabbix.SenderHost)
	assert.Equal(t, []string{"Controller", "Computer"}, cfg.Skynet.HostGroups)
	assert.Equal(t, 5, cfg.Skynet.Top)
	assert.Equal(t, 3*time.Minute, cfg.Skynet.VMWindow)
	assert.Equal(t, 10, cfg.Skynet.FullClearEvery)
	assert.Equal(t, []string{"qemu+unix:///system"}, cfg.Libvirt.URIs)
	assert.Equal(t, "0.0.0.0:7443", cfg.Agent.ProbeAddr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)
}

func TestLoadFileWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skynet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
zabbix:
  host: zbx-file
  user: Admin
  password: zabbix
  http_max_retries: 2
skynet:
  hostgroups: [Controller]
  top: 10
  poll_interval: 30s
libvirt:
  uris:
    - qemu+tcp://cmp-1/system
    - qemu+tcp://cmp-2/system
log:
  level: DEBUG
`), 0o600))
	t.Setenv("SKYNET_SKYNET_TOP", "3")
	t.Setenv("SKYNET_LOG_JSON", "false")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "zbx-file", cfg.Zabbix.Host)
	assert.Equal(t, "Admin", cfg.Zabbix.User)
	assert.Equal(t, 2, cfg.Zabbix.HTTPMaxRetries)
	assert.Equal(t, []string{"Controller"}, cfg.Skynet.HostGroups)
	assert.Equal(t, 3, cfg.Skynet.Top)
	assert.Equal(t, 30*time.Second, cfg.Skynet.PollInterval)
	assert.Equal(t, []string{"qemu+tcp://cmp-1/system", "qemu+tcp://cmp-2/system"}, cfg.Libvirt.URIs)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.Log.JSON)
}

func TestLoadHostGroupsFromEnv(t *testing.T) {
	t.Setenv("SKYNET_ZABBIX_HOST", "zbx")
	t.Setenv("SKYNET_SKYNET_HOSTGROUPS", "Controller, Storage ,")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"Controller", "Storage"}, cfg.Skynet.HostGroups)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Setenv("SKYNET_ZABBIX_HOST", "zbx")
	base, err := Load("")
	require.NoError(t, err)

	cases := map[string]func(*Config){
		"missing host":      func(c *Config) { c.Zabbix.Host = "" },
		"zero retries":      func(c *Config) { c.Zabbix.HTTPMaxRetries = 0 },
		"zero top":          func(c *Config) { c.Skynet.Top = 0 },
		"no host groups":    func(c *Config) { c.Skynet.HostGroups = nil },
		"no libvirt uris":   func(c *Config) { c.Libvirt.URIs = nil },
		"negative ttl":      func(c *Config) { c.Skynet.ActiveSetTTL = -time.Second },
		"zero poll":         func(c *Config) { c.Skynet.PollInterval = 0 },
		"bad log level":     func(c *Config) { c.Log.Level = "trace" },
		"no metering addr":  func(c *Config) { c.Metering.GRPCAddr = " " },
		"no probe address":  func(c *Config) { c.Agent.ProbeAddr = "" },
		"zero socket limit": func(c *Config) { c.Zabbix.SocketTimeout = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestTLSConfig(t *testing.T) {
	var cfg Config
	tlsCfg, err := cfg.TLSConfig()
	require.NoError(t, err)
	assert.Nil(t, tlsCfg)

	cfg.Metering.TLSEnabled = true
	cfg.Metering.TLSSkipVerify = true
	tlsCfg, err = cfg.TLSConfig()
	require.NoError(t, err)
	assert.True(t, tlsCfg.InsecureSkipVerify)

	cfg.Metering.TLSCertPath = "/nonexistent/cert.pem"
	_, err = cfg.TLSConfig()
	assert.Error(t, err)
}
