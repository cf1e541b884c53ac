package config

import (
	"fmt"
	"net"
	"strings"
)

func (c *Config) Validate() error {
	if err := c.Receiver.Validate(); err != nil {
		return fmt.Errorf("receiver config: %w", err)
	}

	if err := c.Output.Validate(); err != nil {
		return fmt.Errorf("output config: %w", err)
	}

	if err := c.Queues.Validate(); err != nil {
		return fmt.Errorf("queues config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}

	if err := c.Registry.Validate(); err != nil {
		return fmt.Errorf("registry config: %w", err)
	}

	return nil
}

func (r *ReceiverConfig) Validate() error {
	ip := net.ParseIP(r.Address)
	if ip == nil {
		return fmt.Errorf("invalid listen address: %q", r.Address)
	}

	if r.Port < 0 || r.Port > 65535 {
		return fmt.Errorf("invalid port: %d", r.Port)
	}

	if r.Interface != "" && !ip.IsMulticast() {
		return fmt.Errorf("interface is only valid with a multicast address")
	}

	if r.ReadBuffer < 0 {
		return fmt.Errorf("read_buffer cannot be negative")
	}

	if r.MaxPacketsPerSecond < 0 {
		return fmt.Errorf("max_packets_per_second cannot be negative")
	}

	return nil
}

func (o *OutputConfig) Validate() error {
	if strings.TrimSpace(o.Path) == "" {
		return fmt.Errorf("output path is required")
	}
	return nil
}

func (q *QueuesConfig) Validate() error {
	if !isPowerOfTwo(q.InboundCapacity) {
		return fmt.Errorf("inbound_capacity must be a positive power of two: %d", q.InboundCapacity)
	}

	if !isPowerOfTwo(q.OutboundCapacity) {
		return fmt.Errorf("outbound_capacity must be a positive power of two: %d", q.OutboundCapacity)
	}

	if q.IdleSleep < 0 {
		return fmt.Errorf("idle_sleep cannot be negative")
	}

	return nil
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"panic": true,
		"fatal": true,
		"error": true,
		"warn":  true,
		"info":  true,
		"debug": true,
		"trace": true,
	}

	if !validLevels[l.Level] {
		return fmt.Errorf("invalid log level: %s", l.Level)
	}

	if l.Format != "json" && l.Format != "text" {
		return fmt.Errorf("log format must be 'json' or 'text'")
	}

	if l.Output != "stdout" && l.Output != "stderr" {
		if l.MaxSize <= 0 {
			return fmt.Errorf("max_size must be positive for file output")
		}
		if l.MaxBackups < 0 {
			return fmt.Errorf("max_backups cannot be negative")
		}
		if l.MaxAge < 0 {
			return fmt.Errorf("max_age cannot be negative")
		}
	}

	return nil
}

func (s *ServerConfig) Validate() error {
	if !s.Enabled {
		return nil
	}

	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("invalid admin port: %d", s.Port)
	}

	if s.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive")
	}

	return nil
}

func (m *MetricsConfig) Validate() error {
	if m.Enabled && !strings.HasPrefix(m.Path, "/") {
		return fmt.Errorf("metrics path must start with '/'")
	}
	return nil
}

func (r *RegistryConfig) Validate() error {
	if !r.Enabled {
		return nil
	}

	if r.RedisAddr == "" {
		return fmt.Errorf("redis_addr is required when the registry is enabled")
	}

	if r.RedisDB < 0 {
		return fmt.Errorf("invalid Redis database number: %d", r.RedisDB)
	}

	if r.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat_interval must be positive")
	}

	if r.TTL <= r.HeartbeatInterval {
		return fmt.Errorf("ttl must be greater than heartbeat_interval")
	}

	return nil
}
