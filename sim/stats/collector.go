// Package stats turns per-replication samples into rows of summary statistics.
//
// A Collector is built around a three-phase protocol per row: StartRow opens an accumulation
// buffer, Collect appends raw samples to it, and DoneRow reduces the buffer with the configured
// Table and discards it. Rows keep their insertion order, which for a sweep is the order of the
// swept values.
package stats

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

var (
	// ErrNoOpenRow is returned by Collect and DoneRow when no row is open.
	ErrNoOpenRow = errors.New("no open row")
	// ErrRowMismatch is returned by DoneRow when the key differs from the open row's.
	ErrRowMismatch = errors.New("row key mismatch")
)

// Value is one statistic of a closed row.
type Value struct {
	Name  string
	Value float64
}

type row struct {
	key    string
	values []Value
	closed bool
}

// Collector accumulates samples into named rows.
//
// Thread-safety: NOT thread-safe. Must be called from single goroutine.
type Collector struct {
	table  Table
	rows   []*row
	index  map[string]*row
	open   *row
	buffer []float64
}

// NewCollector returns a collector that reduces each row with table.
func NewCollector(table Table) *Collector {
	return &Collector{table: table, index: make(map[string]*row)}
}

// Table returns the statistics table.
func (c *Collector) Table() Table { return c.table }

// StartRow opens a row keyed by key. Reopening an existing key clears its values but keeps
// its position. Opening a row while another is open abandons the other's samples.
func (c *Collector) StartRow(key string) {
	if c.open != nil {
		logrus.Warnf("stats: row %q abandoned with %d samples; starting row %q", c.open.key, len(c.buffer), key)
	}
	r, ok := c.index[key]
	if !ok {
		r = &row{key: key}
		c.rows = append(c.rows, r)
		c.index[key] = r
	}
	r.values = nil
	r.closed = false
	c.open = r
	c.buffer = c.buffer[:0]
}

// Collect appends one raw sample to the open row.
func (c *Collector) Collect(sample float64) error {
	if c.open == nil {
		return fmt.Errorf("collect %v: %w", sample, ErrNoOpenRow)
	}
	c.buffer = append(c.buffer, sample)
	return nil
}

// Buffered returns the number of samples in the open row.
func (c *Collector) Buffered() int { return len(c.buffer) }

// DoneRow reduces the open row's samples with the table, stores the results and clears the buffer.
func (c *Collector) DoneRow(key string) error {
	if c.open == nil {
		return fmt.Errorf("done row %q: %w", key, ErrNoOpenRow)
	}
	if c.open.key != key {
		return fmt.Errorf("done row %q: %w: open row is %q", key, ErrRowMismatch, c.open.key)
	}
	values := make([]Value, len(c.table))
	for i, s := range c.table {
		values[i] = Value{Name: s.Name, Value: s.Fn(c.buffer)}
	}
	c.open.values = values
	c.open.closed = true
	logrus.Debugf("stats: row %q closed over %d samples", key, len(c.buffer))
	c.open = nil
	c.buffer = nil
	return nil
}

// Rows returns the row keys in insertion order.
func (c *Collector) Rows() []string {
	keys := make([]string, len(c.rows))
	for i, r := range c.rows {
		keys[i] = r.key
	}
	return keys
}

// Row returns the statistics of a closed row in table order.
func (c *Collector) Row(key string) ([]Value, bool) {
	r, ok := c.index[key]
	if !ok || !r.closed {
		return nil, false
	}
	out := make([]Value, len(r.values))
	copy(out, r.values)
	return out, true
}

// Stats returns a closed row's statistics keyed by name. Open or unknown rows yield an empty map.
func (c *Collector) Stats(key string) map[string]float64 {
	out := make(map[string]float64)
	values, _ := c.Row(key)
	for _, v := range values {
		out[v.Name] = v.Value
	}
	return out
}

// Get returns one statistic of one row.
func (c *Collector) Get(key, name string) (float64, bool) {
	values, _ := c.Row(key)
	for _, v := range values {
		if v.Name == name {
			return v.Value, true
		}
	}
	return 0, false
}

// Extract returns the named statistic across all closed rows in insertion order.
// Rows without it are skipped, so an unknown name yields an empty slice.
func (c *Collector) Extract(name string) []float64 {
	out := []float64{}
	for _, r := range c.rows {
		if !r.closed {
			continue
		}
		for _, v := range r.values {
			if v.Name == name {
				out = append(out, v.Value)
				break
			}
		}
	}
	return out
}
