package stats

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Func reduces the raw samples of a row to one value. Implementations must not modify samples.
// An empty input yields NaN unless the statistic has a natural zero (count).
type Func func(samples []float64) float64

// Stat is one named column of a statistics table.
type Stat struct {
	Name string
	Fn   Func
}

// Table is an ordered list of statistics; the order is the column order of reports.
type Table []Stat

// Names returns the column names in order.
func (t Table) Names() []string {
	names := make([]string, len(t))
	for i, s := range t {
		names[i] = s.Name
	}
	return names
}

// Mean is the arithmetic mean.
func Mean(samples []float64) float64 {
	if len(samples) == 0 {
		return math.NaN()
	}
	return stat.Mean(samples, nil)
}

// StdDev is the sample standard deviation; NaN for fewer than two samples.
func StdDev(samples []float64) float64 {
	if len(samples) < 2 {
		return math.NaN()
	}
	return stat.StdDev(samples, nil)
}

// Min is the smallest sample.
func Min(samples []float64) float64 {
	if len(samples) == 0 {
		return math.NaN()
	}
	return floats.Min(samples)
}

// Max is the largest sample.
func Max(samples []float64) float64 {
	if len(samples) == 0 {
		return math.NaN()
	}
	return floats.Max(samples)
}

// Count is the number of samples.
func Count(samples []float64) float64 {
	return float64(len(samples))
}

// Percentile returns the p-th percentile (0..100), interpolating linearly between the two
// closest ranks. Percentile(50) is the median.
func Percentile(p float64) Func {
	return func(samples []float64) float64 {
		n := len(samples)
		if n == 0 {
			return math.NaN()
		}
		data := make([]float64, n)
		copy(data, samples)
		sort.Float64s(data)

		rank := p / 100.0 * float64(n-1)
		lowerIdx := int(math.Floor(rank))
		upperIdx := int(math.Ceil(rank))
		if upperIdx >= n {
			return data[n-1]
		}
		if lowerIdx == upperIdx {
			return data[lowerIdx]
		}
		return data[lowerIdx] + (data[upperIdx]-data[lowerIdx])*(rank-float64(lowerIdx))
	}
}

// Median is Percentile(50).
func Median(samples []float64) float64 {
	return Percentile(50)(samples)
}

// ConfidenceInterval returns the normal-approximation interval mean ± z·SEM at the given
// confidence level (e.g. 0.95). Both bounds are NaN for fewer than two samples.
func ConfidenceInterval(confidence float64, samples []float64) (lo, hi float64) {
	n := len(samples)
	if n < 2 {
		return math.NaN(), math.NaN()
	}
	mean, std := stat.MeanStdDev(samples, nil)
	sem := stat.StdErr(std, float64(n))
	z := distuv.UnitNormal.Quantile(0.5 + confidence/2)
	return mean - z*sem, mean + z*sem
}

func intervalStats(name string, confidence float64) Table {
	return Table{
		{Name: name + "_lo", Fn: func(x []float64) float64 { lo, _ := ConfidenceInterval(confidence, x); return lo }},
		{Name: name + "_hi", Fn: func(x []float64) float64 { _, hi := ConfidenceInterval(confidence, x); return hi }},
	}
}

// registry maps a configuration name to the columns it contributes.
var registry = map[string]func() Table{
	"average":    func() Table { return Table{{Name: "average", Fn: Mean}} },
	"mean":       func() Table { return Table{{Name: "mean", Fn: Mean}} },
	"median":     func() Table { return Table{{Name: "median", Fn: Median}} },
	"stddev":     func() Table { return Table{{Name: "stddev", Fn: StdDev}} },
	"min":        func() Table { return Table{{Name: "min", Fn: Min}} },
	"max":        func() Table { return Table{{Name: "max", Fn: Max}} },
	"count":      func() Table { return Table{{Name: "count", Fn: Count}} },
	"p90":        func() Table { return Table{{Name: "p90", Fn: Percentile(90)}} },
	"p99":        func() Table { return Table{{Name: "p99", Fn: Percentile(99)}} },
	"interval90": func() Table { return intervalStats("interval90", 0.90) },
	"interval95": func() Table { return intervalStats("interval95", 0.95) },
	"interval99": func() Table { return intervalStats("interval99", 0.99) },
}

// Names lists the statistic names accepted by TableFor.
func Names() []string {
	names := make([]string, 0, len(registry))
	for k := range registry {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// TableFor builds a table from configuration names, in the given order.
func TableFor(names []string) (Table, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("statistics table: at least one statistic is required")
	}
	var table Table
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		build, ok := registry[name]
		if !ok {
			return nil, fmt.Errorf("unknown statistic %q (valid: %s)", name, strings.Join(Names(), ", "))
		}
		if seen[name] {
			return nil, fmt.Errorf("statistic %q listed twice", name)
		}
		seen[name] = true
		table = append(table, build()...)
	}
	return table, nil
}

// SimpleStats is the default table: median, average and the 95% confidence interval.
func SimpleStats() Table {
	table, _ := TableFor([]string{"median", "average", "interval95"})
	return table
}
