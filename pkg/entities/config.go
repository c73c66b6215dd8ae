package entities

import (
	"time"

	"github.com/pkg/errors"
)

const (
	DefaultMaxNodes           = 20
	DefaultCommInterval       = 3600
	DefaultSampleInterval     = 1200
	DefaultSampleRounding     = 1200
	DefaultPaddingSec         = 3
	DefaultGatewayWakeSec     = 5
	DefaultNodeWakeSec        = 3
	DefaultSleepSec           = 3600
	DefaultDiscoveryTimeoutMs = 5 * 60 * 1000
	DefaultConfigTimeoutMs    = 6000
	DefaultDataTimeoutMs      = 6000
	DefaultGuardMs            = 1000
	DefaultTopicPrefix        = "fornalab"
	DefaultUploadExchange     = "mirra"
	DefaultMaxUploadErrors    = 3
	DefaultUploadBatch        = 64
	DefaultStatePath          = "state.yaml"
	DefaultMeasurementsPath   = "measurements.db"

	// sensor nodes fall back to these when a CONFIG carries zeroes
	DefaultNodeSampleInterval = 3600
	DefaultNodeSampleRounding = 60
)

var ErrInvalidConfig = errors.New("invalid configuration")

type TimingConfig struct {
	PaddingSec         uint32 `yaml:"paddingSec"`
	WakeBeforeSec      uint32 `yaml:"wakeBeforeSec"`
	DefaultSleepSec    uint32 `yaml:"defaultSleepSec"`
	DiscoveryTimeoutMs uint32 `yaml:"discoveryTimeoutMs"`
	ConfigTimeoutMs    uint32 `yaml:"configTimeoutMs"`
	DataTimeoutMs      uint32 `yaml:"dataTimeoutMs"`
	GuardMs            uint32 `yaml:"guardMs"`
}

func (t TimingConfig) Padding() time.Duration {
	return time.Duration(t.PaddingSec) * time.Second
}

func (t TimingConfig) DiscoveryTimeout() time.Duration {
	return time.Duration(t.DiscoveryTimeoutMs) * time.Millisecond
}

func (t TimingConfig) ConfigTimeout() time.Duration {
	return time.Duration(t.ConfigTimeoutMs) * time.Millisecond
}

func (t TimingConfig) DataTimeout() time.Duration {
	return time.Duration(t.DataTimeoutMs) * time.Millisecond
}

func (t TimingConfig) Guard() time.Duration {
	return time.Duration(t.GuardMs) * time.Millisecond
}

// WindowLength is the length in whole seconds, rounded up, of a comm period
// carrying up to maxMessages DATA messages and the closing CONFIG.
func (t TimingConfig) WindowLength(maxMessages uint32) uint32 {
	return (maxMessages*t.DataTimeoutMs + t.ConfigTimeoutMs + 999) / 1000
}

type RadioConfig struct {
	Port            string `yaml:"port"`
	BaudRate        int    `yaml:"baudRate"`
	SpreadingFactor int    `yaml:"spreadingFactor"`
	BandwidthKHz    int    `yaml:"bandwidthKHz"`
	CodingRate      int    `yaml:"codingRate"`
	Preamble        int    `yaml:"preamble"`
}

type StorageConfig struct {
	StatePath        string `yaml:"statePath"`
	MeasurementsPath string `yaml:"measurementsPath"`
}

type UploadConfig struct {
	Enabled     bool   `yaml:"enabled"`
	URL         string `yaml:"url"`
	Exchange    string `yaml:"exchange"`
	TopicPrefix string `yaml:"topicPrefix"`
	MaxErrors   int    `yaml:"maxErrors"`
	BatchSize   int    `yaml:"batchSize"`
}

// GatewayConfig is the gateway daemon configuration file.
type GatewayConfig struct {
	GatewayID  uint16        `yaml:"gatewayId"`
	MaxNodes   int           `yaml:"maxNodes"`
	LogLevel   string        `yaml:"logLevel"`
	Parameters Parameters    `yaml:"parameters"`
	Timing     TimingConfig  `yaml:"timing"`
	Radio      RadioConfig   `yaml:"radio"`
	Storage    StorageConfig `yaml:"storage"`
	Upload     UploadConfig  `yaml:"upload"`
}

// NodeConfig is the sensor node configuration.
type NodeConfig struct {
	NodeID   uint16        `yaml:"nodeId"`
	LogLevel string        `yaml:"logLevel"`
	Timing   TimingConfig  `yaml:"timing"`
	Radio    RadioConfig   `yaml:"radio"`
	Storage  StorageConfig `yaml:"storage"`
}

// Normalize fills unset fields with the firmware defaults.
func (c *GatewayConfig) Normalize() {
	if c.MaxNodes == 0 {
		c.MaxNodes = DefaultMaxNodes
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Parameters.CommInterval == 0 {
		c.Parameters.CommInterval = DefaultCommInterval
	}
	if c.Parameters.SampleInterval == 0 {
		c.Parameters.SampleInterval = DefaultSampleInterval
	}
	if c.Parameters.SampleRounding == 0 {
		c.Parameters.SampleRounding = DefaultSampleRounding
	}
	c.Timing.normalize(DefaultGatewayWakeSec)
	c.Radio.normalize()
	c.Storage.normalize()
	if c.Upload.Exchange == "" {
		c.Upload.Exchange = DefaultUploadExchange
	}
	if c.Upload.TopicPrefix == "" {
		c.Upload.TopicPrefix = DefaultTopicPrefix
	}
	if c.Upload.MaxErrors == 0 {
		c.Upload.MaxErrors = DefaultMaxUploadErrors
	}
	if c.Upload.BatchSize == 0 {
		c.Upload.BatchSize = DefaultUploadBatch
	}
}

// Validate checks the configuration without mutating it.
func (c *GatewayConfig) Validate() error {
	if c.GatewayID == 0 {
		return errors.Wrap(ErrInvalidConfig, "gatewayId must not be zero")
	}
	if c.MaxNodes <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "maxNodes %d", c.MaxNodes)
	}
	if c.Parameters.CommInterval == 0 || c.Parameters.SampleInterval == 0 {
		return errors.Wrap(ErrInvalidConfig, "intervals must not be zero")
	}
	if err := c.Timing.validate(); err != nil {
		return err
	}
	if c.Upload.Enabled && c.Upload.URL == "" {
		return errors.Wrap(ErrInvalidConfig, "upload enabled without url")
	}
	return c.Radio.validate()
}

func (c *NodeConfig) Normalize() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	c.Timing.normalize(DefaultNodeWakeSec)
	c.Radio.normalize()
	c.Storage.normalize()
}

func (s *StorageConfig) normalize() {
	if s.StatePath == "" {
		s.StatePath = DefaultStatePath
	}
	if s.MeasurementsPath == "" {
		s.MeasurementsPath = DefaultMeasurementsPath
	}
}

func (c *NodeConfig) Validate() error {
	if c.NodeID == 0 {
		return errors.Wrap(ErrInvalidConfig, "nodeId must not be zero")
	}
	if err := c.Timing.validate(); err != nil {
		return err
	}
	return c.Radio.validate()
}

func (t *TimingConfig) normalize(wakeBefore uint32) {
	if t.PaddingSec == 0 {
		t.PaddingSec = DefaultPaddingSec
	}
	if t.WakeBeforeSec == 0 {
		t.WakeBeforeSec = wakeBefore
	}
	if t.DefaultSleepSec == 0 {
		t.DefaultSleepSec = DefaultSleepSec
	}
	if t.DiscoveryTimeoutMs == 0 {
		t.DiscoveryTimeoutMs = DefaultDiscoveryTimeoutMs
	}
	if t.ConfigTimeoutMs == 0 {
		t.ConfigTimeoutMs = DefaultConfigTimeoutMs
	}
	if t.DataTimeoutMs == 0 {
		t.DataTimeoutMs = DefaultDataTimeoutMs
	}
	if t.GuardMs == 0 {
		t.GuardMs = DefaultGuardMs
	}
}

func (t TimingConfig) validate() error {
	if t.ConfigTimeoutMs == 0 || t.DataTimeoutMs == 0 {
		return errors.Wrap(ErrInvalidConfig, "exchange timeouts must not be zero")
	}
	return nil
}

func (r *RadioConfig) normalize() {
	if r.BaudRate == 0 {
		r.BaudRate = 115200
	}
	if r.SpreadingFactor == 0 {
		r.SpreadingFactor = 9
	}
	if r.BandwidthKHz == 0 {
		r.BandwidthKHz = 125
	}
	if r.CodingRate == 0 {
		r.CodingRate = 6
	}
	if r.Preamble == 0 {
		r.Preamble = 8
	}
}

func (r RadioConfig) validate() error {
	if r.SpreadingFactor < 6 || r.SpreadingFactor > 12 {
		return errors.Wrapf(ErrInvalidConfig, "spreading factor %d", r.SpreadingFactor)
	}
	switch r.BandwidthKHz {
	case 125, 250, 500:
	default:
		return errors.Wrapf(ErrInvalidConfig, "bandwidth %d kHz", r.BandwidthKHz)
	}
	if r.CodingRate < 5 || r.CodingRate > 8 {
		return errors.Wrapf(ErrInvalidConfig, "coding rate 4/%d", r.CodingRate)
	}
	return nil
}
