// Package temporal bridges the orchestrator's zap logging into the Temporal
// SDK's keyval logger interface.
package temporal

import (
	"fmt"
	"reflect"

	"go.temporal.io/sdk/log"
	"go.uber.org/zap"
)

type zapAdapter struct {
	logger *zap.Logger
}

// NewZapAdapter wraps a zap logger for use as the SDK client logger.
func NewZapAdapter(logger *zap.Logger) log.Logger {
	return &zapAdapter{logger: logger}
}

func (z *zapAdapter) Debug(msg string, keyvals ...interface{}) {
	z.logger.Debug(msg, fields(keyvals)...)
}

func (z *zapAdapter) Info(msg string, keyvals ...interface{}) {
	z.logger.Info(msg, fields(keyvals)...)
}

func (z *zapAdapter) Warn(msg string, keyvals ...interface{}) {
	z.logger.Warn(msg, fields(keyvals)...)
}

func (z *zapAdapter) Error(msg string, keyvals ...interface{}) {
	z.logger.Error(msg, fields(keyvals)...)
}

func (z *zapAdapter) With(keyvals ...interface{}) log.Logger {
	return &zapAdapter{logger: z.logger.With(fields(keyvals)...)}
}

func fields(keyvals []interface{}) []zap.Field {
	out := make([]zap.Field, 0, len(keyvals)/2)
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		out = append(out, safeField(key, keyvals[i+1]))
	}
	return out
}

// safeField guards against values zap.Any cannot serialize. The SDK passes
// arbitrary keyvals through here, including the occasional channel.
func safeField(key string, val interface{}) (field zap.Field) {
	defer func() {
		if r := recover(); r != nil {
			field = zap.String(key, fmt.Sprintf("<unserializable: %v>", r))
		}
	}()

	if val == nil {
		return zap.String(key, "<nil>")
	}
	switch reflect.ValueOf(val).Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer, reflect.Invalid:
		return zap.String(key, fmt.Sprintf("<%T>", val))
	default:
		return zap.Any(key, val)
	}
}
