package config

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. SKYNET_ZABBIX_HOST.
const EnvPrefix = "SKYNET"

type Config struct {
	Zabbix   ZabbixConfig   `mapstructure:"zabbix"`
	Skynet   SkynetConfig   `mapstructure:"skynet"`
	Libvirt  LibvirtConfig  `mapstructure:"libvirt"`
	Metering MeteringConfig `mapstructure:"metering"`
	Agent    AgentConfig    `mapstructure:"agent"`
	Log      LogConfig      `mapstructure:"log"`
}

type ZabbixConfig struct {
	Host                string        `mapstructure:"host"`
	Port                int           `mapstructure:"port"`
	SocketTimeout       time.Duration `mapstructure:"socket_timeout"`
	WebPort             int           `mapstructure:"web_port"`
	WebApp              string        `mapstructure:"web_app"`
	User                string        `mapstructure:"user"`
	Password            string        `mapstructure:"password"`
	HTTPMaxRetries      int           `mapstructure:"http_max_retries"`
	HTTPRetriesInterval time.Duration `mapstructure:"http_retries_interval"`
	HTTPTimeout         time.Duration `mapstructure:"http_timeout"`
	SenderHost          string        `mapstructure:"sender_host"`
}

type SkynetConfig struct {
	HostGroups     []string      `mapstructure:"hostgroups"`
	Top            int           `mapstructure:"top"`
	VMWindow       time.Duration `mapstructure:"vm_window"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	FullClearEvery int           `mapstructure:"full_clear_every"`
	ActiveSetTTL   time.Duration `mapstructure:"active_set_ttl"`
}

type LibvirtConfig struct {
	URIs               []string      `mapstructure:"uris"`
	ReconnectInterval  time.Duration `mapstructure:"reconnect_interval"`
	MaxReconnectJitter time.Duration `mapstructure:"max_reconnect_jitter"`
}

type MeteringConfig struct {
	GRPCAddr         string        `mapstructure:"grpc_addr"`
	StatisticsMethod string        `mapstructure:"statistics_method"`
	AlarmsMethod     string        `mapstructure:"alarms_method"`
	Token            string        `mapstructure:"token"`
	DialTimeout      time.Duration `mapstructure:"dial_timeout"`
	TLSEnabled       bool          `mapstructure:"tls_enabled"`
	TLSSkipVerify    bool          `mapstructure:"tls_skip_verify"`
	TLSCAPath        string        `mapstructure:"tls_ca_path"`
	TLSCertPath      string        `mapstructure:"tls_cert_path"`
	TLSKeyPath       string        `mapstructure:"tls_key_path"`
}

type AgentConfig struct {
	ProbeAddr             string        `mapstructure:"probe_addr"`
	ShutdownTimeout       time.Duration `mapstructure:"shutdown_timeout"`
	HealthInterval        time.Duration `mapstructure:"health_interval"`
	CollectorErrorBackoff time.Duration `mapstructure:"collector_error_backoff"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("zabbix.host", "")
	v.SetDefault("zabbix.port", 10051)
	v.SetDefault("zabbix.socket_timeout", 3*time.Second)
	v.SetDefault("zabbix.web_port", 80)
	v.SetDefault("zabbix.web_app", "zabbix")
	v.SetDefault("zabbix.user", "")
	v.SetDefault("zabbix.password", "")
	v.SetDefault("zabbix.http_max_retries", 5)
	v.SetDefault("zabbix.http_retries_interval", 8*time.Second)
	v.SetDefault("zabbix.http_timeout", 10*time.Second)
	v.SetDefault("zabbix.sender_host", "openstack")

	v.SetDefault("skynet.hostgroups", "Controller,Computer")
	v.SetDefault("skynet.top", 5)
	v.SetDefault("skynet.vm_window", 3*time.Minute)
	v.SetDefault("skynet.poll_interval", 60*time.Second)
	v.SetDefault("skynet.full_clear_every", 10)
	v.SetDefault("skynet.active_set_ttl", 10*time.Minute)

	v.SetDefault("libvirt.uris", "qemu+unix:///system")
	v.SetDefault("libvirt.reconnect_interval", 4*time.Second)
	v.SetDefault("libvirt.max_reconnect_jitter", 900*time.Millisecond)

	v.SetDefault("metering.grpc_addr", "127.0.0.1:3001")
	v.SetDefault("metering.statistics_method", "/skynet.metering.v1.MeteringService/GetStatistics")
	v.SetDefault("metering.alarms_method", "/skynet.metering.v1.AlarmService/ListAlarms")
	v.SetDefault("metering.token", "")
	v.SetDefault("metering.dial_timeout", 8*time.Second)
	v.SetDefault("metering.tls_enabled", false)
	v.SetDefault("metering.tls_skip_verify", false)
	v.SetDefault("metering.tls_ca_path", "")
	v.SetDefault("metering.tls_cert_path", "")
	v.SetDefault("metering.tls_key_path", "")

	v.SetDefault("agent.probe_addr", "0.0.0.0:7443")
	v.SetDefault("agent.shutdown_timeout", 20*time.Second)
	v.SetDefault("agent.health_interval", 30*time.Second)
	v.SetDefault("agent.collector_error_backoff", 1500*time.Millisecond)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", true)
}

// Load reads defaults, then the YAML file at path when one is given, then
// SKYNET_* environment overrides, and validates the result.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Zabbix.Host = strings.TrimSpace(c.Zabbix.Host)
	c.Skynet.HostGroups = splitList(c.Skynet.HostGroups)
	c.Libvirt.URIs = splitList(c.Libvirt.URIs)
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
}

// splitList trims entries, splits any that still hold commas and drops
// blanks.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (c Config) Validate() error {
	if c.Zabbix.Host == "" {
		return errors.New("zabbix.host is required")
	}
	if c.Zabbix.Port <= 0 || c.Zabbix.WebPort <= 0 {
		return errors.New("zabbix ports must be > 0")
	}
	if c.Zabbix.SocketTimeout <= 0 || c.Zabbix.HTTPTimeout <= 0 {
		return errors.New("zabbix timeouts must be > 0")
	}
	if c.Zabbix.HTTPMaxRetries <= 0 {
		return errors.New("zabbix.http_max_retries must be > 0")
	}
	if c.Zabbix.HTTPRetriesInterval < 0 {
		return errors.New("zabbix.http_retries_interval must be >= 0")
	}
	if strings.TrimSpace(c.Zabbix.SenderHost) == "" {
		return errors.New("zabbix.sender_host is required")
	}
	if len(c.Skynet.HostGroups) == 0 {
		return errors.New("skynet.hostgroups is required")
	}
	if c.Skynet.Top <= 0 {
		return errors.New("skynet.top must be > 0")
	}
	if c.Skynet.PollInterval <= 0 || c.Skynet.VMWindow <= 0 {
		return errors.New("skynet intervals must be > 0")
	}
	if c.Skynet.FullClearEvery < 0 || c.Skynet.ActiveSetTTL < 0 {
		return errors.New("skynet cache settings must be >= 0")
	}
	if len(c.Libvirt.URIs) == 0 {
		return errors.New("libvirt.uris is required")
	}
	if strings.TrimSpace(c.Metering.GRPCAddr) == "" {
		return errors.New("metering.grpc_addr is required")
	}
	if strings.TrimSpace(c.Metering.StatisticsMethod) == "" || strings.TrimSpace(c.Metering.AlarmsMethod) == "" {
		return errors.New("metering methods are required")
	}
	if strings.TrimSpace(c.Agent.ProbeAddr) == "" {
		return errors.New("agent.probe_addr is required")
	}
	if c.Agent.ShutdownTimeout <= 0 || c.Agent.HealthInterval <= 0 {
		return errors.New("agent timeouts must be > 0")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log level %q", c.Log.Level)
	}
	return nil
}

// TLSConfig builds the metering client TLS settings; nil means plaintext.
func (c Config) TLSConfig() (*tls.Config, error) {
	m := c.Metering
	if !m.TLSEnabled {
		return nil, nil
	}
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: m.TLSSkipVerify}
	if m.TLSCAPath != "" {
		caBytes, err := os.ReadFile(m.TLSCAPath)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caBytes) {
			return nil, errors.New("append CA cert failed")
		}
		tlsCfg.RootCAs = pool
	}
	if m.TLSCertPath != "" || m.TLSKeyPath != "" {
		if m.TLSCertPath == "" || m.TLSKeyPath == "" {
			return nil, errors.New("both TLS cert and key are required")
		}
		crt, err := tls.LoadX509KeyPair(m.TLSCertPath, m.TLSKeyPath)
		if err != nil {
			return nil, fmt.Errorf("load mTLS cert/key: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{crt}
	}
	return tlsCfg, nil
}
