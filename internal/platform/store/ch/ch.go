// Package ch provides a clickhouse client over the native protocol
package ch

import (
	"context"
	"reflect"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// Config configures clickhouse client
type Config struct {
	URL  string
	Role string // process role stamped into client info ("api", "screener", "reindex")
	Tag  string
}

// Rows is the minimal result set iteration for ch
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
	Columns() []string
}

// CH wraps a native clickhouse connection
type CH struct {
	conn driver.Conn
}

// Open parses the DSN and dials clickhouse
func Open(ctx context.Context, cfg Config) (*CH, error) {
	opts, err := clickhouse.ParseDSN(cfg.URL)
	if err != nil {
		return nil, err
	}
	opts.ClientInfo = BuildClientInfo(cfg.Role, cfg.Tag)
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &CH{conn: conn}, nil
}

// Insert batches data into table via AppendStruct.
// data may be a struct pointer, a slice of structs, or a slice of struct pointers
func (c *CH) Insert(ctx context.Context, table string, data any) error {
	batch, err := c.conn.PrepareBatch(ctx, "INSERT INTO "+table)
	if err != nil {
		return err
	}
	rv := reflect.ValueOf(data)
	if rv.Kind() == reflect.Slice {
		for i := 0; i < rv.Len(); i++ {
			ev := rv.Index(i)
			var item any
			if ev.Kind() == reflect.Pointer {
				item = ev.Interface()
			} else {
				item = ev.Addr().Interface()
			}
			if err := batch.AppendStruct(item); err != nil {
				return err
			}
		}
	} else if err := batch.AppendStruct(data); err != nil {
		return err
	}
	return batch.Send()
}

// Query runs a query and returns ch.Rows
func (c *CH) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	r, err := c.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return nativeRows{r: r}, nil
}

// Exec runs a statement that returns no rows (DDL, lightweight deletes)
func (c *CH) Exec(ctx context.Context, sql string, args ...any) error {
	return c.conn.Exec(ctx, sql, args...)
}

// Ping verifies connectivity
func (c *CH) Ping(ctx context.Context) error { return c.conn.Ping(ctx) }

// Close closes resources
func (c *CH) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// nativeRows adapts driver.Rows to ch.Rows
type nativeRows struct{ r driver.Rows }

func (x nativeRows) Next() bool             { return x.r.Next() }
func (x nativeRows) Scan(dest ...any) error { return x.r.Scan(dest...) }
func (x nativeRows) Err() error             { return x.r.Err() }
func (x nativeRows) Close() error           { return x.r.Close() }
func (x nativeRows) Columns() []string      { return x.r.Columns() }
