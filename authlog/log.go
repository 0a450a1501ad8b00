// Package authlog provides logging with areas and verbosity control for the
// ticket services, backed by zap.
package authlog

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Area identifies different logging areas for filtering.
type Area int

const (
	AreaGeneral Area = iota
	AreaKDC
	AreaTGS
	AreaService
	AreaClient
	AreaRegistry
)

var areaNames = [...]string{
	AreaGeneral:  "general",
	AreaKDC:      "kdc",
	AreaTGS:      "tgs",
	AreaService:  "ss",
	AreaClient:   "client",
	AreaRegistry: "registry",
}

func (a Area) String() string {
	if a >= 0 && int(a) < len(areaNames) {
		return areaNames[a]
	}
	return fmt.Sprintf("area(%d)", int(a))
}

// ParseArea returns the Area with the given name.
func ParseArea(name string) (Area, error) {
	for i, n := range areaNames {
		if strings.EqualFold(n, name) {
			return Area(i), nil
		}
	}
	return 0, fmt.Errorf("unknown log area %q", name)
}

// Config selects the zap environment and output and the initial
// verbosity. Environment is "development" or "production"; empty means
// production.
type Config struct {
	Environment      string   `toml:"env"`
	Path             string   `toml:"path,omitempty"`
	Verbosity        int      `toml:"verbosity"`
	EnableStacktrace bool     `toml:"enable_stacktrace,omitempty"`
	Areas            []string `toml:"areas,omitempty"`
}

// Logger provides logging with areas and verbosity control.
// A nil *Logger discards everything. Configure areas and verbosity before
// sharing the logger between goroutines.
type Logger struct {
	z         *zap.SugaredLogger
	verbosity int           // 0=errors only, 1=info, 2=debug, 3=trace
	areas     map[Area]bool // nil means all areas enabled
}

// New builds a console logger writing to stderr and, if set, conf.Path.
func New(conf Config) (*Logger, error) {
	level := zap.NewAtomicLevel()
	switch {
	case conf.Environment == "", strings.EqualFold("production", conf.Environment):
		level.SetLevel(zap.InfoLevel)
	case strings.EqualFold("development", conf.Environment):
		level.SetLevel(zap.DebugLevel)
	default:
		return nil, fmt.Errorf("log environment must be development or production, got %q", conf.Environment)
	}
	if conf.Verbosity >= 2 {
		level.SetLevel(zap.DebugLevel)
	}

	outputs := []string{"stderr"}
	if conf.Path != "" {
		outputs = append(outputs, conf.Path)
	}

	zc := zap.Config{
		Level:             level,
		Encoding:          "console",
		DisableStacktrace: !conf.EnableStacktrace,
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			NameKey:        "area",
			MessageKey:     "msg",
			StacktraceKey:  "stack",
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeName:     zapcore.FullNameEncoder,
		},
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}
	z, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	l := NewZap(z, conf.Verbosity)
	for _, name := range conf.Areas {
		a, err := ParseArea(name)
		if err != nil {
			return nil, err
		}
		l.EnableArea(a)
	}
	return l, nil
}

// NewZap wraps an existing zap logger, for example one from zaptest.
func NewZap(z *zap.Logger, verbosity int) *Logger {
	return &Logger{z: z.Sugar(), verbosity: verbosity}
}

// SetVerbosity sets the verbosity level (0-3).
func (l *Logger) SetVerbosity(level int) {
	if l == nil {
		return
	}
	l.verbosity = level
}

// EnableArea enables logging for a specific area. Once any area is
// enabled only enabled areas are logged.
func (l *Logger) EnableArea(area Area) {
	if l == nil {
		return
	}
	if l.areas == nil {
		l.areas = make(map[Area]bool)
	}
	l.areas[area] = true
}

// DisableArea disables logging for a specific area.
func (l *Logger) DisableArea(area Area) {
	if l == nil || l.areas == nil {
		return
	}
	delete(l.areas, area)
}

func (l *Logger) shouldLog(area Area, level int) bool {
	if l == nil || l.z == nil {
		return false
	}
	if level > l.verbosity {
		return false
	}
	if l.areas != nil && !l.areas[area] {
		return false
	}
	return true
}

// Error logs a failure. It is emitted at every verbosity.
func (l *Logger) Error(area Area, msg string, keysAndValues ...any) {
	if !l.shouldLog(area, 0) {
		return
	}
	l.z.Named(area.String()).Errorw(msg, keysAndValues...)
}

// Info logs a general message at info level.
func (l *Logger) Info(area Area, msg string, keysAndValues ...any) {
	if !l.shouldLog(area, 1) {
		return
	}
	l.z.Named(area.String()).Infow(msg, keysAndValues...)
}

// Debug logs a debug message.
func (l *Logger) Debug(area Area, msg string, keysAndValues ...any) {
	if !l.shouldLog(area, 2) {
		return
	}
	l.z.Named(area.String()).Debugw(msg, keysAndValues...)
}

// Trace logs a trace message (most verbose).
func (l *Logger) Trace(area Area, msg string, keysAndValues ...any) {
	if !l.shouldLog(area, 3) {
		return
	}
	l.z.Named(area.String()).Debugw(msg, append(keysAndValues, "trace", true)...)
}

// Sync flushes buffered output.
func (l *Logger) Sync() error {
	if l == nil || l.z == nil {
		return nil
	}
	return l.z.Sync()
}
