package logger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

const queryMessage = "db.query"

type GormLoggerConfig struct {
	Level         gormlogger.LogLevel
	SlowThreshold time.Duration
	// IgnoreRecordNotFound treats gorm.ErrRecordNotFound as a successful query.
	IgnoreRecordNotFound bool
	// ExpectedError reports driver errors the caller resolves itself, such
	// as the unique violation that loses a concurrent reconcile. They log at debug.
	ExpectedError func(error) bool
}

func DefaultGormLoggerConfig() GormLoggerConfig {
	return GormLoggerConfig{
		Level:         gormlogger.Warn,
		SlowThreshold: 200 * time.Millisecond,
	}
}

// GormLogger writes GORM statements to zap with the table they touch and
// the request fields carried by ctx. Bound values are never logged.
type GormLogger struct {
	log *zap.Logger
	cfg GormLoggerConfig
}

func NewGormLogger(log *zap.Logger, cfg GormLoggerConfig) *GormLogger {
	if log == nil {
		log = zap.NewNop()
	}
	return &GormLogger{log: log.Named("db"), cfg: cfg}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.cfg.Level = level
	return &next
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Info, zapcore.InfoLevel, msg, data)
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Warn, zapcore.WarnLevel, msg, data)
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Error, zapcore.ErrorLevel, msg, data)
}

func (l *GormLogger) message(ctx context.Context, min gormlogger.LogLevel, level zapcore.Level, msg string, data []interface{}) {
	if l.cfg.Level < min {
		return
	}
	WithContext(ctx, l.log).Log(level, fmt.Sprintf(msg, data...))
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.cfg.Level <= gormlogger.Silent {
		return
	}
	if errors.Is(err, gormlogger.ErrRecordNotFound) && l.cfg.IgnoreRecordNotFound {
		err = nil
	}

	elapsed := time.Since(begin)
	level, ok := l.queryLevel(elapsed, err)
	if !ok {
		return
	}

	sql, rows := fc()
	sql = strings.TrimSpace(sql)
	fields := []zap.Field{
		zap.String("sql", sql),
		zap.String("operation", operationFromSQL(sql)),
		zap.String("table", tableFromSQL(sql)),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows_affected", rows))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	WithContext(ctx, l.log).Log(level, queryMessage, fields...)
}

func (l *GormLogger) queryLevel(elapsed time.Duration, err error) (zapcore.Level, bool) {
	switch {
	case err != nil && l.cfg.ExpectedError != nil && l.cfg.ExpectedError(err):
		return zapcore.DebugLevel, true
	case err != nil && l.cfg.Level >= gormlogger.Error:
		return zapcore.ErrorLevel, true
	case l.cfg.SlowThreshold > 0 && elapsed > l.cfg.SlowThreshold && l.cfg.Level >= gormlogger.Warn:
		return zapcore.WarnLevel, true
	case l.cfg.Level >= gormlogger.Info:
		return zapcore.DebugLevel, true
	default:
		return zapcore.DebugLevel, false
	}
}

// ParamsFilter drops bound values; they carry emails and provider refs.
func (l *GormLogger) ParamsFilter(_ context.Context, sql string, _ ...interface{}) (string, []interface{}) {
	return sql, nil
}

func operationFromSQL(sql string) string {
	for _, token := range strings.Fields(strings.ToUpper(sql)) {
		switch token = strings.Trim(token, "();"); token {
		case "SELECT", "INSERT", "UPDATE", "DELETE":
			return token
		}
	}
	return "UNKNOWN"
}

// tableFromSQL returns the first table named after FROM, INTO or UPDATE.
func tableFromSQL(sql string) string {
	tokens := strings.Fields(sql)
	for i := 0; i < len(tokens)-1; i++ {
		switch strings.ToUpper(tokens[i]) {
		case "FROM", "INTO", "UPDATE":
			name := tokens[i+1]
			if j := strings.IndexByte(name, '('); j >= 0 {
				name = name[:j]
			}
			name = strings.Trim(name, "\"`;")
			if j := strings.LastIndexByte(name, '.'); j >= 0 {
				name = strings.Trim(name[j+1:], "\"`")
			}
			if name != "" {
				return strings.ToLower(name)
			}
		}
	}
	return "unknown"
}

var _ gormlogger.Interface = (*GormLogger)(nil)
