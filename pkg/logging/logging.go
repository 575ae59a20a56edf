package logging

import (
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Fields struct {
	Service    string
	UserID     string
	OrderID    string
	EventID    string
	Step       string
	Status     string
	DurationMS int64
	Message    string
	Err        error
}

var global atomic.Pointer[zap.Logger]

func init() {
	global.Store(zap.NewNop())
}

// Init builds the process logger. dev switches to zap's console encoder.
func Init(service string, dev bool) (*zap.Logger, error) {
	var (
		l   *zap.Logger
		err error
	)
	if dev {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	l = l.With(zap.String("service", service))
	Set(l)
	return l, nil
}

// Set replaces the process logger.
func Set(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	global.Store(l)
}

func L() *zap.Logger { return global.Load() }

// Log writes one step record. Records with an error or a failed status are
// logged at warn level.
func Log(fields Fields) {
	zf := make([]zap.Field, 0, 8)
	add := func(key, val string) {
		if val != "" {
			zf = append(zf, zap.String(key, val))
		}
	}
	add("svc", fields.Service)
	add("user_id", fields.UserID)
	add("order_id", fields.OrderID)
	add("event_id", fields.EventID)
	add("step", fields.Step)
	add("status", fields.Status)
	if fields.DurationMS > 0 {
		zf = append(zf, zap.Int64("duration_ms", fields.DurationMS))
	}
	level := zapcore.InfoLevel
	if fields.Err != nil {
		zf = append(zf, zap.Error(fields.Err))
		level = zapcore.WarnLevel
	}
	if fields.Status == "failed" {
		level = zapcore.WarnLevel
	}
	msg := fields.Message
	if msg == "" {
		msg = fields.Step
	}
	if ce := L().Check(level, msg); ce != nil {
		ce.Write(zf...)
	}
}
