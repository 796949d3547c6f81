package config

import (
	"fmt"
	"os"
	"time"

	"github.com/itohio/gomq/pkg/mq"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Serial  SerialConfig  `yaml:"serial"`
	Sensor  SensorConfig  `yaml:"sensor"`
	Monitor MonitorConfig `yaml:"monitor"`
	Mock    MockConfig    `yaml:"mock"`
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// SensorConfig describes the sensor module and its timing.
type SensorConfig struct {
	Model              string        `yaml:"model"`               // MQ2, MQ7, ...
	BoardResistance    float64       `yaml:"board_resistance"`    // Load resistor (ohms)
	BaseVoltage        float64       `yaml:"base_voltage"`        // Supply voltage (V)
	FullScale          uint16        `yaml:"full_scale"`          // ADC code at base voltage
	Strategy           string        `yaml:"strategy"`            // fast | accurate
	SampleCount        int           `yaml:"sample_count"`        // Readings per accurate measurement
	SampleInterval     time.Duration `yaml:"sample_interval"`     // Delay between readings
	HeatingPeriod      time.Duration `yaml:"heating_period"`      // High heater phase
	CoolingPeriod      time.Duration `yaml:"cooling_period"`      // Low heater phase
	Heater             bool          `yaml:"heater"`              // Heater is driven by the board
	BaselineResistance float64       `yaml:"baseline_resistance"` // Stored R0 (0 = calibrate on start)
}

// MonitorConfig contains the control loop parameters.
type MonitorConfig struct {
	Mode           string        `yaml:"mode"`            // continuous | cycle
	Tick           time.Duration `yaml:"tick"`            // Heater state machine tick
	ReadInterval   time.Duration `yaml:"read_interval"`   // Delay between continuous reads
	AverageSamples int           `yaml:"average_samples"` // Moving average window (0 = disabled)
	MetricsFile    string        `yaml:"metrics_file"`    // Prometheus textfile ("" = disabled)
}

// MockConfig contains simulated board configuration.
type MockConfig struct {
	BaselineResistance float64       `yaml:"baseline_resistance"` // Simulated R0 (ohms, in board resistance units)
	Gas                string        `yaml:"gas"`                 // Gas present in the simulated air
	Concentration      float64       `yaml:"concentration"`       // Concentration of Gas (ppm, 0 = clean air)
	NoiseLevel         float64       `yaml:"noise_level"`         // Relative resistance noise
	WarmupTime         time.Duration `yaml:"warmup_time"`         // Heater time constant
	SampleRate         time.Duration `yaml:"sample_rate"`         // Sample rate
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	def := mq.DefaultConfig()
	return &Config{
		Serial: SerialConfig{
			Port:     "/dev/ttyACM0",
			BaudRate: 115200,
		},
		Sensor: SensorConfig{
			Model:           "MQ2",
			BoardResistance: def.BoardResistance,
			BaseVoltage:     def.BaseVoltage,
			FullScale:       def.FullScale,
			Strategy:        def.Strategy.String(),
			SampleCount:     def.SampleCount,
			SampleInterval:  def.SampleInterval,
			HeatingPeriod:   def.HeatingPeriod,
			CoolingPeriod:   def.CoolingPeriod,
		},
		Monitor: MonitorConfig{
			Mode:         "continuous",
			Tick:         100 * time.Millisecond,
			ReadInterval: 500 * time.Millisecond,
		},
		Mock: MockConfig{
			BaselineResistance: 10,
			Gas:                "smoke",
			Concentration:      0,
			NoiseLevel:         0.01,
			WarmupTime:         20 * time.Second,
			SampleRate:         20 * time.Millisecond,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SensorParams converts the sensor section into driver parameters.
func (c *Config) SensorParams() (mq.Config, error) {
	strategy, err := mq.ParseStrategy(c.Sensor.Strategy)
	if err != nil {
		return mq.Config{}, err
	}

	return mq.Config{
		BoardResistance: c.Sensor.BoardResistance,
		BaseVoltage:     c.Sensor.BaseVoltage,
		FullScale:       c.Sensor.FullScale,
		Strategy:        strategy,
		SampleCount:     c.Sensor.SampleCount,
		SampleInterval:  c.Sensor.SampleInterval,
		HeatingPeriod:   c.Sensor.HeatingPeriod,
		CoolingPeriod:   c.Sensor.CoolingPeriod,
	}, nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}

	if c.Sensor.Model == "" {
		c.Sensor.Model = def.Sensor.Model
	}
	if c.Sensor.BoardResistance == 0 {
		c.Sensor.BoardResistance = def.Sensor.BoardResistance
	}
	if c.Sensor.BaseVoltage == 0 {
		c.Sensor.BaseVoltage = def.Sensor.BaseVoltage
	}
	if c.Sensor.FullScale == 0 {
		c.Sensor.FullScale = def.Sensor.FullScale
	}
	if c.Sensor.Strategy == "" {
		c.Sensor.Strategy = def.Sensor.Strategy
	}
	if c.Sensor.SampleCount == 0 {
		c.Sensor.SampleCount = def.Sensor.SampleCount
	}
	if c.Sensor.SampleInterval <= 0 {
		c.Sensor.SampleInterval = def.Sensor.SampleInterval
	}
	if c.Sensor.HeatingPeriod <= 0 {
		c.Sensor.HeatingPeriod = def.Sensor.HeatingPeriod
	}
	if c.Sensor.CoolingPeriod <= 0 {
		c.Sensor.CoolingPeriod = def.Sensor.CoolingPeriod
	}

	if c.Monitor.Mode == "" {
		c.Monitor.Mode = def.Monitor.Mode
	}
	if c.Monitor.Tick <= 0 {
		c.Monitor.Tick = def.Monitor.Tick
	}
	if c.Monitor.ReadInterval == 0 {
		c.Monitor.ReadInterval = def.Monitor.ReadInterval
	}

	if c.Mock.BaselineResistance <= 0 {
		c.Mock.BaselineResistance = def.Mock.BaselineResistance
	}
	if c.Mock.Gas == "" {
		c.Mock.Gas = def.Mock.Gas
	}
	if c.Mock.WarmupTime <= 0 {
		c.Mock.WarmupTime = def.Mock.WarmupTime
	}
	if c.Mock.SampleRate <= 0 {
		c.Mock.SampleRate = def.Mock.SampleRate
	}
}
