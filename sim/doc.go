// Package sim provides the discrete-event kernel for faultsim, a simulator of component
// failure and recovery built from composable random processes.
//
// # Reading Guide
//
// Start with these files to understand the simulation kernel:
//   - scheduler.go: the clock, Schedule/Await/Advance/Run and the RaceFirst primitive
//   - event.go: Event handles and the deterministic (time, insertion order) queue
//   - rng.go: the experiment-wide random Stream and its one-time seeding
//   - errors.go: error kinds shared by every layer
//
// # Architecture
//
// The sim package holds the kernel only; everything built on top lives in sub-packages:
//   - sim/dist/: leaf distributions (exponential, uniform, weibull, constant)
//   - sim/process/: the Process interface and the Leaf, Sequential, Parallel and Branching nodes
//   - sim/stats/: the row-oriented statistics Collector and its summary functions
//   - sim/experiment/: YAML configuration, the kind registry, the replication Runner and sweeps
//
// A replication owns exactly one Scheduler and one freshly built process tree. The only state
// shared between replications is the Stream.
package sim
