package sim

import "container/heap"

type eventState int

const (
	eventPending eventState = iota
	eventFired
	eventDiscarded
)

// Resume is the continuation run when an awaited event fires.
// now is the scheduler clock at the time of firing.
type Resume func(now float64) error

// Event is a handle for "fires at time At". Events are created only by Scheduler.Schedule
// and are ordered by time, then by insertion sequence.
type Event struct {
	at     float64
	seq    uint64
	owner  string
	state  eventState
	resume Resume
	index  int // position in the heap, maintained by eventQueue
}

// Time returns the simulated time at which the event fires.
func (e *Event) Time() float64 {
	return e.at
}

// Owner returns the name of the process that scheduled the event.
func (e *Event) Owner() string {
	return e.owner
}

// Seq returns the insertion sequence number used to break time ties.
func (e *Event) Seq() uint64 {
	return e.seq
}

// Pending reports whether the event has neither fired nor been discarded.
func (e *Event) Pending() bool {
	return e.state == eventPending
}

// Fired reports whether the scheduler has delivered the event.
func (e *Event) Fired() bool {
	return e.state == eventFired
}

// Discarded reports whether the event lost a race and will never fire.
func (e *Event) Discarded() bool {
	return e.state == eventDiscarded
}

// before is the total order of the queue: timestamp, then insertion order.
func (e *Event) before(o *Event) bool {
	if e.at != o.at {
		return e.at < o.at
	}
	return e.seq < o.seq
}

// eventQueue implements heap.Interface with deterministic ordering.
// See canonical Golang example here: https://pkg.go.dev/container/heap#example-package-PriorityQueue
type eventQueue []*Event

func (q eventQueue) Len() int           { return len(q) }
func (q eventQueue) Less(i, j int) bool { return q[i].before(q[j]) }

func (q eventQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *eventQueue) Push(x any) {
	ev := x.(*Event)
	ev.index = len(*q)
	*q = append(*q, ev)
}

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	ev.index = -1
	*q = old[0 : n-1]
	return ev
}

func (q *eventQueue) push(ev *Event) {
	heap.Push(q, ev)
}

func (q *eventQueue) popNext() *Event {
	if q.Len() == 0 {
		return nil
	}
	return heap.Pop(q).(*Event)
}

func (q eventQueue) peek() *Event {
	if len(q) == 0 {
		return nil
	}
	return q[0]
}
