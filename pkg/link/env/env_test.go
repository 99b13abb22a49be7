package env

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/hostlink/pkg/link/protocol"
)

func writeFile(t *testing.T, content string) string {
	fn := filepath.Join(t.TempDir(), "hostlink.toml")
	require.NoError(t, os.WriteFile(fn, []byte(content), 0644))
	return fn
}

func TestLoadFile(t *testing.T) {
	fn := writeFile(t, `
port = "tcp://127.0.0.1:7000"
role = "host"
ack_timeout_ms = 100
max_retries = 5
interval = "5ms"
mqtt = "mqtt://broker:1883/lab/"
node_id = "  bench-1 "
`)
	conf := NewConfig()
	conf.MaxRetries = 1
	require.NoError(t, conf.LoadFile(fn, map[string]bool{"max_retries": true}))
	require.Equal(t, "tcp://127.0.0.1:7000", conf.Port)
	require.Equal(t, "host", conf.Role)
	require.Equal(t, uint(100), conf.AckTimeoutMs)
	require.Equal(t, 1, conf.MaxRetries)
	require.Equal(t, 5*time.Millisecond, conf.Interval)
	require.Equal(t, "mqtt://broker:1883/lab/", conf.MQTTBrokerURL)
	require.Equal(t, "bench-1", conf.NodeID)
	require.Equal(t, defaultConfig.QueueCapacity, conf.QueueCapacity)
}

func TestLoadFileErrors(t *testing.T) {
	testCases := map[string]string{
		"syntax":   `port = `,
		"unknown":  `baud_rate = 9600`,
		"interval": `interval = "soon"`,
	}
	for name, content := range testCases {
		t.Run(name, func(t *testing.T) {
			require.Error(t, NewConfig().LoadFile(writeFile(t, content), nil))
		})
	}
	require.Error(t, NewConfig().LoadFile(filepath.Join(t.TempDir(), "missing.toml"), nil))
}

func TestValidate(t *testing.T) {
	conf := NewConfig()
	require.NoError(t, conf.Validate())

	testCases := map[string]func(*Config){
		"role":     func(c *Config) { c.Role = "both" },
		"port":     func(c *Config) { c.Port = "" },
		"capacity": func(c *Config) { c.QueueCapacity = 100 },
		"retries":  func(c *Config) { c.MaxRetries = -1 },
		"timeout":  func(c *Config) { c.AckTimeoutMs = 0 },
	}
	for name, mutate := range testCases {
		t.Run(name, func(t *testing.T) {
			c := NewConfig()
			mutate(c)
			require.Error(t, c.Validate())
		})
	}
}

func TestLinkConfig(t *testing.T) {
	conf := NewConfig()
	conf.Role = "host"
	conf.AckTimeoutMs = 20
	conf.MaxRetries = 3
	lc, err := conf.LinkConfig()
	require.NoError(t, err)
	require.Equal(t, protocol.DirHostToTarget, lc.Dir)
	require.Equal(t, uint32(20), lc.FSM.AckTimeoutMs)
	require.Equal(t, 3, lc.FSM.MaxRetries)
	require.Equal(t, conf.QueueCapacity, lc.QueueCapacity)
}

func TestMachineID(t *testing.T) {
	require.NotEmpty(t, MachineID())
	require.NotEmpty(t, Default().NodeID)
}
