package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

// insufficient_privilege, raised when a row level security policy rejects a write.
const sqlStateRLSDenied = "42501"

type QueryLoggerConfig struct {
	Level         gormlogger.LogLevel
	SlowThreshold time.Duration
}

func DefaultQueryLoggerConfig() QueryLoggerConfig {
	return QueryLoggerConfig{
		Level:         gormlogger.Warn,
		SlowThreshold: 200 * time.Millisecond,
	}
}

// QueryLogger writes gorm statements through zap. Bound parameters are never
// logged; statements carry subscriber contacts and amounts.
type QueryLogger struct {
	base *zap.Logger
	cfg  QueryLoggerConfig
}

func NewQueryLogger(base *zap.Logger, cfg QueryLoggerConfig) *QueryLogger {
	if base == nil {
		base = zap.L()
	}
	return &QueryLogger{base: base.With(zap.String("component", "gorm")), cfg: cfg}
}

func (l *QueryLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.cfg.Level = level
	return &next
}

func (l *QueryLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	l.emit(ctx, gormlogger.Info, zapcore.InfoLevel, msg, zap.Any("data", data))
}

func (l *QueryLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.emit(ctx, gormlogger.Warn, zapcore.WarnLevel, msg, zap.Any("data", data))
}

func (l *QueryLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	l.emit(ctx, gormlogger.Error, zapcore.ErrorLevel, msg, zap.Any("data", data))
}

func (l *QueryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.cfg.Level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)

	if errors.Is(err, gormlogger.ErrRecordNotFound) {
		// Lookups that miss are normal in a scoped ledger.
		err = nil
	}

	var (
		msg   = "gorm.query"
		level zapcore.Level
		min   gormlogger.LogLevel
	)
	switch {
	case err != nil && isRLSDenied(err):
		msg, level, min = "gorm.rls_denied", zapcore.ErrorLevel, gormlogger.Error
	case err != nil:
		level, min = zapcore.ErrorLevel, gormlogger.Error
	case l.cfg.SlowThreshold > 0 && elapsed > l.cfg.SlowThreshold:
		msg, level, min = "gorm.slow_query", zapcore.WarnLevel, gormlogger.Warn
	default:
		level, min = zapcore.DebugLevel, gormlogger.Info
	}
	if l.cfg.Level < min {
		return
	}

	sql, rows := fc()
	fields := []zap.Field{
		zap.String("sql", strings.TrimSpace(sql)),
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
	l.emit(ctx, min, level, msg, fields...)
}

func (l *QueryLogger) ParamsFilter(_ context.Context, sql string, _ ...interface{}) (string, []interface{}) {
	return sql, nil
}

func (l *QueryLogger) emit(ctx context.Context, min gormlogger.LogLevel, level zapcore.Level, msg string, fields ...zap.Field) {
	if l.cfg.Level < min {
		return
	}
	if ce := WithContext(ctx, l.base).Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
}

func isRLSDenied(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == sqlStateRLSDenied
}

func operationFromSQL(sql string) string {
	for _, token := range strings.Fields(strings.ToUpper(sql)) {
		token = strings.Trim(token, "();")
		switch token {
		case "SELECT", "INSERT", "UPDATE", "DELETE", "SET":
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
			name := strings.Trim(tokens[i+1], "\"`();")
			if name != "" && !strings.EqualFold(name, "SELECT") {
				return strings.ToLower(name)
			}
		}
	}
	return ""
}

var _ gormlogger.Interface = (*QueryLogger)(nil)
