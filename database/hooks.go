package dbops

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/go-pg/pg/v10"
	"github.com/pkg/errors"
)

// Context key marking a connection whose queries must not be traced.
type traceSuppression struct{}

// Returns a database instance whose queries are excluded from the query
// tracing even when it is enabled.
func SuppressQueryLogging(db *PgDB) *PgDB {
	return db.WithContext(context.WithValue(db.Context(), traceSuppression{}, true))
}

// Checks if the query tracing is suppressed for a given context.
func HasSuppressedQueryLogging(ctx context.Context) bool {
	suppressed, _ := ctx.Value(traceSuppression{}).(bool)
	return suppressed
}

// A go-pg query hook printing every executed statement. The statements go
// to stderr rather than through the logger, so a trace can be redirected
// to a file and replayed as an SQL script.
type queryTracer struct{}

func (queryTracer) BeforeQuery(ctx context.Context, event *pg.QueryEvent) (context.Context, error) {
	if HasSuppressedQueryLogging(ctx) {
		return ctx, nil
	}

	stmt, err := event.FormattedQuery()
	if err != nil {
		// Emit the error as an SQL comment to keep the trace replayable.
		fmt.Fprintf(os.Stderr, "%s -- error:%s\n", string(stmt), err)
	} else {
		fmt.Fprintln(os.Stderr, string(stmt))
	}
	return ctx, nil
}

func (queryTracer) AfterQuery(context.Context, *pg.QueryEvent) error {
	return nil
}

// The largest statement that fits the PostgreSQL protocol frame: the
// uint32 length field covers itself (4 bytes) and the frame is preceded
// by a type byte, leaving 2^32-5 bytes for the payload.
const maxQueryPayload = math.MaxUint32 - 5

// QuerySizeLimiter is a go-pg query hook rejecting statements whose size
// would overflow the uint32 length field go-pg writes into the protocol
// frame. go-pg casts the buffer length without a bounds check but still
// sends the whole buffer, which opens an SQL injection when a query is
// built from user input (CVE-2024-44905 / GO-2025-3764). No upstream fix
// is available, so oversized statements are refused before sending.
type QuerySizeLimiter struct {
	limit int
}

// Creates the limiter hook. Pass maxQueryPayload outside of tests.
func NewQuerySizeLimiter(limit int) QuerySizeLimiter {
	return QuerySizeLimiter{limit: limit}
}

func (l QuerySizeLimiter) BeforeQuery(ctx context.Context, event *pg.QueryEvent) (context.Context, error) {
	// The formatted query is the payload that goes on the wire untruncated,
	// so its length tells whether the length field would overflow.
	stmt, err := event.FormattedQuery()
	if err != nil {
		return ctx, nil
	}

	if len(stmt) > l.limit {
		return ctx, errors.Errorf("query size exceeds %dB limit, got: %dB", l.limit, len(stmt))
	}
	return ctx, nil
}

func (QuerySizeLimiter) AfterQuery(context.Context, *pg.QueryEvent) error {
	return nil
}
