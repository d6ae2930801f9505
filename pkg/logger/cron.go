package logger

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
)

// Cron adapts l to cron.Logger so job panics and skipped runs land in the
// structured log.
func Cron(l Logger) cron.Logger {
	return cronLogger{l: l}
}

type cronLogger struct {
	l Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(context.Background(), msg, pairs(keysAndValues)...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(context.Background(), msg, append(pairs(keysAndValues), Error(err))...)
}

func pairs(kv []interface{}) []Field {
	fields := make([]Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return fields
}
