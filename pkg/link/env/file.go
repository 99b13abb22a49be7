package env

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type fileConfig struct {
	Port          string `toml:"port"`
	Listen        bool   `toml:"listen"`
	Role          string `toml:"role"`
	AckTimeoutMs  uint   `toml:"ack_timeout_ms"`
	MaxRetries    int    `toml:"max_retries"`
	QueueCapacity int    `toml:"queue_capacity"`
	TxBacklog     int    `toml:"tx_backlog"`
	Interval      string `toml:"interval"`
	MQTTBrokerURL string `toml:"mqtt"`
	NodeID        string `toml:"node_id"`
}

// LoadFile overlays options defined in a TOML file.
// Keys in skip are left untouched.
func (c *Config) LoadFile(path string, skip map[string]bool) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if keys := meta.Undecoded(); len(keys) > 0 {
		return fmt.Errorf("load config: unknown key %q", keys[0].String())
	}
	defined := func(key string) bool {
		return meta.IsDefined(key) && !skip[key]
	}

	if defined("port") {
		c.Port = strings.TrimSpace(raw.Port)
	}
	if defined("listen") {
		c.Listen = raw.Listen
	}
	if defined("role") {
		c.Role = strings.TrimSpace(raw.Role)
	}
	if defined("ack_timeout_ms") {
		c.AckTimeoutMs = raw.AckTimeoutMs
	}
	if defined("max_retries") {
		c.MaxRetries = raw.MaxRetries
	}
	if defined("queue_capacity") {
		c.QueueCapacity = raw.QueueCapacity
	}
	if defined("tx_backlog") {
		c.TxBacklog = raw.TxBacklog
	}
	if defined("interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Interval))
		if err != nil {
			return fmt.Errorf("parse interval: %w", err)
		}
		c.Interval = d
	}
	if defined("mqtt") {
		c.MQTTBrokerURL = strings.TrimSpace(raw.MQTTBrokerURL)
	}
	if defined("node_id") {
		if id := strings.TrimSpace(raw.NodeID); id != "" {
			c.NodeID = id
		}
	}
	return nil
}
