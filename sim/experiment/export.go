package experiment

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/inference-sim/faultsim/sim/stats"
)

// WriteCSV writes one line per closed row of coll, in insertion order. The first column is
// the row key under keyHeader; the rest follow the collector's table.
func WriteCSV(w io.Writer, coll *stats.Collector, keyHeader string) error {
	names := coll.Table().Names()
	cw := csv.NewWriter(w)

	header := append([]string{keyHeader}, names...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, key := range coll.Rows() {
		values, ok := coll.Row(key)
		if !ok {
			continue
		}
		record := make([]string, 0, len(values)+1)
		record = append(record, key)
		for _, v := range values {
			record = append(record, strconv.FormatFloat(v.Value, 'g', -1, 64))
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing csv row %q: %w", key, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
