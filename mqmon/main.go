package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/itohio/gomq/pkg/board"
	"github.com/itohio/gomq/pkg/config"
	"github.com/itohio/gomq/pkg/monitor"
	"github.com/itohio/gomq/pkg/mq"
	"github.com/itohio/gomq/pkg/sample"
	"github.com/itohio/gomq/pkg/species"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	version = "dev"
	commit  = "none"
)

type options struct {
	configPath     string
	port           string
	model          string
	mock           bool
	averageSamples int
	metricsFile    string
	saveBaseline   bool
	listPorts      bool
	listModels     bool
	debug          bool
	json           bool
}

func main() {
	var opts options
	pflag.StringVarP(&opts.configPath, "config", "c", "config.yaml", "Configuration file path")
	pflag.StringVarP(&opts.port, "port", "p", "", "Serial port override (e.g. /dev/ttyACM0)")
	pflag.StringVarP(&opts.model, "model", "m", "", "Sensor model override (e.g. MQ2, MQ-7)")
	pflag.BoolVar(&opts.mock, "mock", false, "Use a simulated board instead of the serial port")
	pflag.IntVar(&opts.averageSamples, "average-samples", -1, "Moving average window (0 = disabled, overrides config)")
	pflag.StringVar(&opts.metricsFile, "metrics-file", "", "Write prometheus metrics to this textfile (overrides config)")
	pflag.BoolVar(&opts.saveBaseline, "save-baseline", true, "Store the calibrated R0 in the configuration file")
	pflag.BoolVar(&opts.listPorts, "list-ports", false, "List serial ports and exit")
	pflag.BoolVar(&opts.listModels, "list-models", false, "List supported sensor models and exit")
	pflag.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	pflag.BoolVar(&opts.json, "json", false, "Log in JSON")
	pflag.Parse()

	logger := newLogger(opts.debug, opts.json)
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	switch {
	case opts.listPorts:
		ports, err := board.Ports()
		if err != nil {
			logger.Fatal("cannot list ports", zap.Error(err))
		}
		for _, p := range ports {
			fmt.Println(p.Name)
		}
		return
	case opts.listModels:
		for _, name := range species.Names() {
			m, _ := species.Lookup(name)
			fmt.Println(name, m.Gases())
		}
		return
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	applyOverrides(cfg, &opts)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting up",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("model", cfg.Sensor.Model),
		zap.Bool("mock", opts.mock),
	)

	if err := run(ctx, cfg, &opts, logger); err != nil {
		logger.Fatal("monitor failed", zap.Error(err))
	}
}

func applyOverrides(cfg *config.Config, opts *options) {
	if opts.port != "" {
		cfg.Serial.Port = opts.port
	}
	if opts.model != "" {
		cfg.Sensor.Model = opts.model
	}
	if opts.averageSamples >= 0 {
		cfg.Monitor.AverageSamples = opts.averageSamples
	}
	if opts.metricsFile != "" {
		cfg.Monitor.MetricsFile = opts.metricsFile
	}
}

func newLogger(debug, json bool) *zap.Logger {
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewConsoleEncoder(encoderCfg)
	if json {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	return zap.New(zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), level))
}

func openBoard(cfg *config.Config, model species.Model, mock bool, logger *zap.Logger) board.Board {
	if mock {
		return board.NewMock(&cfg.Mock, model, cfg.Sensor.BoardResistance, cfg.Sensor.FullScale)
	}
	return board.New(cfg.Serial.Port, cfg.Serial.BaudRate, logger.Named("board"))
}

func run(ctx context.Context, cfg *config.Config, opts *options, logger *zap.Logger) error {
	model, err := species.Lookup(cfg.Sensor.Model)
	if err != nil {
		return err
	}
	params, err := cfg.SensorParams()
	if err != nil {
		return err
	}
	mode, err := monitor.ParseMode(cfg.Monitor.Mode)
	if err != nil {
		return err
	}

	b := openBoard(cfg, model, opts.mock, logger)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("%w: %w", mq.ErrHardwareUnavailable, err)
	}
	defer b.Close()

	sensorOpts := []mq.Option{mq.WithLogger(logger.Named("sensor"))}
	if cfg.Sensor.Heater {
		sensorOpts = append(sensorOpts, mq.WithHeater(board.Heater{Board: b}))
	} else if opts.mock {
		// The heater of a 3-wire module is always powered.
		if err := b.SetHeater(board.HeaterOn); err != nil {
			return err
		}
	}

	driver, err := species.New(model, board.Input{Board: b}, params, sensorOpts...)
	if err != nil {
		return err
	}
	defer driver.Close()

	reg := prometheus.NewRegistry()
	metrics, err := monitor.NewMetrics(reg, model.Name)
	if err != nil {
		return err
	}

	mon, err := monitor.New(driver, monitor.Config{
		Mode:         mode,
		Tick:         cfg.Monitor.Tick,
		ReadInterval: cfg.Monitor.ReadInterval,
		Baseline:     cfg.Sensor.BaselineResistance,
	}, monitor.WithLogger(logger.Named("monitor")), monitor.WithMetrics(metrics))
	if err != nil {
		return err
	}

	raw := make(chan sample.Sample, 10)
	runErr := make(chan error, 1)
	go func() { runErr <- mon.Run(ctx, raw) }()

	var stream <-chan sample.Sample = raw
	if cfg.Monitor.AverageSamples > 0 {
		stream = sample.NewAveragingConverter(cfg.Monitor.AverageSamples, 10)(raw)
	}

	saved := false
	for s := range stream {
		logSample(logger, s)

		if cfg.Monitor.MetricsFile != "" {
			if err := prometheus.WriteToTextfile(cfg.Monitor.MetricsFile, reg); err != nil {
				logger.Warn("failed to write metrics", zap.String("file", cfg.Monitor.MetricsFile), zap.Error(err))
			}
		}

		if opts.saveBaseline && !saved {
			saved = true
			if err := saveBaseline(cfg, opts.configPath, mon); err != nil {
				logger.Warn("failed to save baseline", zap.Error(err))
			}
		}
	}

	return <-runErr
}

// saveBaseline stores a freshly calibrated R0 so later runs can skip calibration.
func saveBaseline(cfg *config.Config, path string, mon *monitor.Monitor) error {
	ro, ok := mon.Baseline()
	if !ok || ro == cfg.Sensor.BaselineResistance {
		return nil
	}
	cfg.Sensor.BaselineResistance = ro
	if err := cfg.Save(path); err != nil {
		return err
	}
	zap.L().Info("saved baseline resistance", zap.Float64("ro", ro), zap.String("config", path))
	return nil
}

func logSample(logger *zap.Logger, s sample.Sample) {
	gases := make([]species.Gas, 0, len(s.Concentrations))
	for g := range s.Concentrations {
		gases = append(gases, g)
	}
	sort.Slice(gases, func(i, j int) bool { return gases[i] < gases[j] })

	fields := []zap.Field{
		zap.Float64("rs", s.Resistance),
		zap.Float64("ratio", s.Ratio),
		zap.Bool("reliable", s.Reliable),
		zap.Stringer("heater", s.Heater),
	}
	for _, g := range gases {
		fields = append(fields, zap.Float64(string(g), s.Concentrations[g]))
	}
	logger.Info("reading", fields...)
}
