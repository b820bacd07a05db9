package logutil

import (
    "io"
    "log"
    "os"
    "reflect"
    "sync"
    "sync/atomic"

    "go.uber.org/zap"
    "go.uber.org/zap/zapcore"
)

var (
    jsonMode  atomic.Bool
    debugMode atomic.Bool

    // zap loggers per output and mode
    zapCache sync.Map
)

func init() {
    if os.Getenv("CLUSTERVIEW_LOG_JSON") == "1" || os.Getenv("CLUSTERVIEW_LOG_FORMAT") == "json" {
        jsonMode.Store(true)
    }
    if os.Getenv("CLUSTERVIEW_LOG_DEBUG") == "1" {
        debugMode.Store(true)
    }
}

func prefix(l *log.Logger, p string) *log.Logger {
    if l == nil { l = log.Default() }
    return log.New(l.Writer(), p, l.Flags())
}

// SetJSON switches every logger to one JSON object per line.
func SetJSON(enabled bool) { jsonMode.Store(enabled) }

// SetDebug enables Debugf output.
func SetDebug(enabled bool) { debugMode.Store(enabled) }

type zapKey struct {
    w           io.Writer
    json, debug bool
}

// Zap returns a zap logger writing to l's output, JSON encoded when JSON mode
// is on. Libraries that log through zap (the etcd client) use it so that their
// output matches ours.
func Zap(l *log.Logger) *zap.Logger {
    if l == nil { l = log.Default() }
    key := zapKey{w: l.Writer(), json: jsonMode.Load(), debug: debugMode.Load()}
    cacheable := reflect.TypeOf(key.w).Comparable()
    if cacheable {
        if z, ok := zapCache.Load(key); ok { return z.(*zap.Logger) }
    }
    cfg := zapcore.EncoderConfig{
        TimeKey:        "ts",
        LevelKey:       "level",
        NameKey:        "logger",
        MessageKey:     "msg",
        LineEnding:     zapcore.DefaultLineEnding,
        EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
        EncodeLevel:    zapcore.LowercaseLevelEncoder,
        EncodeDuration: zapcore.StringDurationEncoder,
    }
    var enc zapcore.Encoder
    if key.json {
        enc = zapcore.NewJSONEncoder(cfg)
    } else {
        cfg.EncodeLevel = zapcore.CapitalLevelEncoder
        enc = zapcore.NewConsoleEncoder(cfg)
    }
    lvl := zapcore.InfoLevel
    if key.debug { lvl = zapcore.DebugLevel }
    z := zap.New(zapcore.NewCore(enc, zapcore.AddSync(key.w), lvl))
    if cacheable { zapCache.Store(key, z) }
    return z
}

func Debugf(l *log.Logger, f string, args ...any) {
    if !debugMode.Load() { return }
    logf(l, "debug", f, args...)
}
func Infof(l *log.Logger, f string, args ...any)  { logf(l, "info", f, args...) }
func Warnf(l *log.Logger, f string, args ...any)  { logf(l, "warn", f, args...) }
func Errorf(l *log.Logger, f string, args ...any) { logf(l, "error", f, args...) }

func logf(l *log.Logger, level, f string, args ...any) {
    if l == nil { l = log.Default() }
    if jsonMode.Load() {
        s := Zap(l).Sugar()
        switch level {
        case "debug":
            s.Debugf(f, args...)
        case "info":
            s.Infof(f, args...)
        case "warn":
            s.Warnf(f, args...)
        default:
            s.Errorf(f, args...)
        }
        return
    }
    switch level {
    case "debug":
        prefix(l, "DEBUG ").Printf(f, args...)
    case "info":
        prefix(l, "INFO ").Printf(f, args...)
    case "warn":
        prefix(l, "WARN ").Printf(f, args...)
    default:
        prefix(l, "ERROR ").Printf(f, args...)
    }
}
