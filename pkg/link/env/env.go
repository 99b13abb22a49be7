// Package env provides the common options to set up a link node.
//
// Options come from, in increasing precedence: built-in defaults,
// HOSTLINK_* environment variables, a TOML file given by -config and
// command line flags.
package env

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/hostlink/pkg/link"
	"github.com/robotalks/hostlink/pkg/link/fsm"
	"github.com/robotalks/hostlink/pkg/link/port"
	"github.com/robotalks/hostlink/pkg/link/protocol"
	"github.com/robotalks/hostlink/pkg/link/queue"
)

// Config provides the options of a link node.
type Config struct {
	// Port is the endpoint URL of the byte channel.
	// e.g. /dev/ttyUSB0, serial:///dev/ttyUSB0?baud=115200, tcp://host:port
	Port string
	// Listen accepts a peer on Port instead of connecting to it.
	Listen bool
	// Role is "target" or "host".
	Role          string
	AckTimeoutMs  uint
	MaxRetries    int
	QueueCapacity int
	TxBacklog     int
	// Interval is the control loop interval.
	Interval time.Duration

	// MQTTBrokerURL specifies the MQTT broker for reports.
	// e.g. mqtt://host:port/topic-prefix
	MQTTBrokerURL string
	NodeID        string
}

var defaultConfig = Config{
	Port:          "/dev/ttyUSB0",
	Role:          "target",
	AckTimeoutMs:  uint(fsm.DefaultAckTimeoutMs),
	MaxRetries:    fsm.DefaultMaxRetries,
	QueueCapacity: queue.DefaultCapacity,
	TxBacklog:     port.DefaultBacklog,
	Interval:      10 * time.Millisecond,
}

var configFile string

func init() {
	if val := os.Getenv("HOSTLINK_PORT"); val != "" {
		defaultConfig.Port = val
	}
	if val := os.Getenv("HOSTLINK_MQTT_URL"); val != "" {
		defaultConfig.MQTTBrokerURL = val
	}
	defaultConfig.NodeID = os.Getenv("HOSTLINK_NODE_ID")
	if defaultConfig.NodeID == "" {
		defaultConfig.NodeID = MachineID()
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&configFile, "config", configFile, "TOML config file")
	flag.StringVar(&defaultConfig.Port, "port", defaultConfig.Port, "Link endpoint URL")
	flag.BoolVar(&defaultConfig.Listen, "listen", defaultConfig.Listen, "Accept a peer on the endpoint")
	flag.StringVar(&defaultConfig.Role, "role", defaultConfig.Role, "Node role: target or host")
	flag.UintVar(&defaultConfig.AckTimeoutMs, "ack_timeout_ms", defaultConfig.AckTimeoutMs, "Ack timeout in milliseconds")
	flag.IntVar(&defaultConfig.MaxRetries, "max_retries", defaultConfig.MaxRetries, "Resends after ack timeout")
	flag.IntVar(&defaultConfig.QueueCapacity, "queue_capacity", defaultConfig.QueueCapacity, "Request queue size in bytes")
	flag.IntVar(&defaultConfig.TxBacklog, "tx_backlog", defaultConfig.TxBacklog, "Frames buffered by the transport")
	flag.DurationVar(&defaultConfig.Interval, "interval", defaultConfig.Interval, "Control loop interval")
	flag.StringVar(&defaultConfig.MQTTBrokerURL, "mqtt", defaultConfig.MQTTBrokerURL, "MQTT broker URL")
	flag.StringVar(&defaultConfig.NodeID, "node_id", defaultConfig.NodeID, "Node ID used in MQTT topics")
}

// Parse parses command line flags and overlays the config file.
// Flags given on the command line take precedence over the file.
func Parse() error {
	flag.Parse()
	if configFile == "" {
		return nil
	}
	explicit := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		explicit[f.Name] = true
	})
	return defaultConfig.LoadFile(configFile, explicit)
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// Direction returns the direction of frames sent by this node.
func (c *Config) Direction() (protocol.Direction, error) {
	return protocol.ParseDirection(c.Role)
}

// Validate checks the options.
func (c *Config) Validate() error {
	if _, err := c.Direction(); err != nil {
		return err
	}
	if c.Port == "" {
		return fmt.Errorf("port must be specified")
	}
	if need := queue.EncodedSize(protocol.MaxPayloadSize); c.QueueCapacity < need {
		return fmt.Errorf("queue_capacity %d is less than %d", c.QueueCapacity, need)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	if c.AckTimeoutMs == 0 {
		return fmt.Errorf("ack_timeout_ms must be positive")
	}
	return nil
}

// LinkConfig converts the options into link.Config.
func (c *Config) LinkConfig() (link.Config, error) {
	if err := c.Validate(); err != nil {
		return link.Config{}, err
	}
	dir, _ := c.Direction()
	return link.Config{
		Dir:           dir,
		QueueCapacity: c.QueueCapacity,
		TxBacklog:     c.TxBacklog,
		FSM: fsm.Config{
			AckTimeoutMs: uint32(c.AckTimeoutMs),
			MaxRetries:   c.MaxRetries,
		},
	}, nil
}

// Open opens the byte channel, or waits for a peer if Listen is set.
func (c *Config) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	ep, err := port.ParseEndpoint(c.Port)
	if err != nil {
		return nil, err
	}
	if c.Listen {
		glog.Infof("waiting for peer on %s", ep)
		return ep.Accept(ctx)
	}
	glog.Infof("open %s", ep)
	return ep.Open()
}

// NewLink opens the byte channel and creates a Link over it.
func (c *Config) NewLink(ctx context.Context) (*link.Link, io.Closer, error) {
	conf, err := c.LinkConfig()
	if err != nil {
		return nil, nil, err
	}
	rw, err := c.Open(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", c.Port, err)
	}
	return link.New(rw, conf), rw, nil
}
