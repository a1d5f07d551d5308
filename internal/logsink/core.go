package logsink

import (
	"fmt"

	"github.com/smallbiznis/posbridge/internal/logsink/domain"
	"github.com/smallbiznis/posbridge/internal/observability/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/datatypes"
)

// Core is a zapcore.Core that forwards entries tagged with an operation
// field to a Writer. Untagged entries are ignored.
type Core struct {
	zapcore.LevelEnabler
	fields []zapcore.Field
	out    domain.Writer
}

func NewCore(out domain.Writer) *Core {
	return &Core{LevelEnabler: zapcore.InfoLevel, out: out}
}

// Tee returns a logger that also writes to the sink core.
func Tee(base *zap.Logger, out domain.Writer) *zap.Logger {
	return base.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, NewCore(out))
	}))
}

func (c *Core) With(fields []zapcore.Field) zapcore.Core {
	clone := &Core{LevelEnabler: c.LevelEnabler, out: c.out}
	clone.fields = make([]zapcore.Field, 0, len(c.fields)+len(fields))
	clone.fields = append(clone.fields, c.fields...)
	clone.fields = append(clone.fields, fields...)
	return clone
}

func (c *Core) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *Core) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}

	operation := stringField(enc.Fields, logger.FieldOperation)
	if operation == "" || c.out == nil {
		return nil
	}

	entry := domain.LogEntry{
		Timestamp:     ent.Time.UTC(),
		Level:         levelName(ent.Level),
		Message:       ent.Message,
		Operation:     operation,
		ProfileID:     stringField(enc.Fields, logger.FieldProfileID),
		CorrelationID: stringField(enc.Fields, logger.FieldCorrelationID),
		Exception:     stringField(enc.Fields, "error"),
	}

	attrs := datatypes.JSONMap{}
	for k, v := range enc.Fields {
		switch k {
		case logger.FieldOperation, logger.FieldProfileID, logger.FieldCorrelationID, "error", "errorVerbose", "stacktrace":
			continue
		}
		attrs[k] = v
	}
	if len(attrs) > 0 {
		entry.Attributes = attrs
	}

	c.out.Write(entry)
	return nil
}

func (c *Core) Sync() error { return nil }

func levelName(l zapcore.Level) string {
	switch {
	case l >= zapcore.ErrorLevel:
		return domain.LevelError
	case l == zapcore.WarnLevel:
		return domain.LevelWarn
	default:
		return domain.LevelInfo
	}
}

func stringField(fields map[string]interface{}, key string) string {
	v, ok := fields[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
