package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gatekeep-io/gatekeep/internal/logutil"
)

type queryStartKey struct{}

type queryStart struct {
	sql   string
	begin time.Time
}

// queryTracer logs every statement at debug level and failed or slow
// statements at warn level. SQL is sanitized before logging so literal
// values never reach the log stream.
type queryTracer struct {
	slowThreshold time.Duration
}

func newQueryTracer() *queryTracer {
	return &queryTracer{slowThreshold: 200 * time.Millisecond}
}

func (t *queryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryStartKey{}, queryStart{sql: data.SQL, begin: time.Now()})
}

func (t *queryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	start, ok := ctx.Value(queryStartKey{}).(queryStart)
	if !ok {
		return
	}
	elapsed := time.Since(start.begin)

	var event *zerolog.Event
	switch {
	case data.Err != nil:
		event = log.Warn().Err(data.Err)
	case elapsed >= t.slowThreshold:
		event = log.Warn().Str("reason", "slow query")
	default:
		event = log.Debug()
	}
	event.Str("sql", logutil.SanitizeSQL(start.sql)).Dur("elapsed", elapsed).Msg("query")
}
