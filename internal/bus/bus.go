package bus

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dyra-12/cogniviz/internal/snapshot"
)

// #region types

// Update is one delivered snapshot.
type Update struct {
	TaskID    string
	Data      snapshot.Snapshot
	Timestamp time.Time
}

// Listener receives updates. A listener may publish or subscribe on the
// same bus. Listeners can run concurrently when publishers do.
type Listener func(Update)

// entry is a retained update with its per-task sequence number.
type entry struct {
	u   Update
	seq uint64
}

// subscriber tracks the newest sequence delivered per task so that a
// listener never sees a task's updates out of publish order.
type subscriber struct {
	id   int
	fn   Listener
	seen map[string]uint64
}

// #endregion types

// #region bus

// Bus is an in-process publish/subscribe hub keyed by task id. It retains
// the latest snapshot per task and replays it to late subscribers.
type Bus struct {
	mu        sync.Mutex
	latest    map[string]entry
	seq       map[string]uint64
	listeners map[int]*subscriber
	order     []int
	nextID    int

	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(b *Bus) { b.now = now }
}

// WithLogger sets the logger used for listener failures.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bus) { b.logger = l }
}

// New creates an empty Bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		latest:    make(map[string]entry),
		seq:       make(map[string]uint64),
		listeners: make(map[int]*subscriber),
		now:       time.Now,
		logger:    zap.NewNop(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// #endregion bus

// #region publish

// Publish stores a deep copy of data under taskID and notifies every
// current subscriber before returning. An update is skipped for a listener
// that has already seen a newer one for the same task.
func (b *Bus) Publish(taskID string, data snapshot.Snapshot) {
	if data == nil {
		b.logger.Warn("publish of nil snapshot ignored", zap.String("task", taskID))
		return
	}
	b.mu.Lock()
	b.seq[taskID]++
	e := entry{
		u:   Update{TaskID: taskID, Data: data.CloneSnapshot(), Timestamp: b.now()},
		seq: b.seq[taskID],
	}
	b.latest[taskID] = e
	targets := b.snapshotListeners()
	b.mu.Unlock()

	for _, sub := range targets {
		b.notify(sub, e)
	}
}

// Subscribe registers l and immediately replays the latest snapshot of
// every known task to it. The returned function unsubscribes.
func (b *Bus) Subscribe(l Listener) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	sub := &subscriber{id: id, fn: l, seen: make(map[string]uint64)}
	b.listeners[id] = sub
	b.order = append(b.order, id)
	replay := make([]entry, 0, len(b.latest))
	for _, task := range []string{snapshot.Task1, snapshot.Task2, snapshot.Task3} {
		if e, ok := b.latest[task]; ok {
			replay = append(replay, e)
		}
	}
	for task, e := range b.latest {
		if task != snapshot.Task1 && task != snapshot.Task2 && task != snapshot.Task3 {
			replay = append(replay, e)
		}
	}
	b.mu.Unlock()

	for _, e := range replay {
		b.notify(sub, e)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.listeners, id)
			for i, v := range b.order {
				if v == id {
					b.order = append(b.order[:i:i], b.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Latest returns a copy of the last snapshot published for taskID.
func (b *Bus) Latest(taskID string) (Update, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.latest[taskID]
	if ok {
		e.u.Data = e.u.Data.CloneSnapshot()
	}
	return e.u, ok
}

// #endregion publish

// #region helpers

func (b *Bus) snapshotListeners() []*subscriber {
	out := make([]*subscriber, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.listeners[id])
	}
	return out
}

// notify hands sub its own copy of e unless sub has unsubscribed or already
// seen a newer update for the task. Listener panics are contained.
func (b *Bus) notify(sub *subscriber, e entry) {
	b.mu.Lock()
	if _, live := b.listeners[sub.id]; !live || e.seq <= sub.seen[e.u.TaskID] {
		b.mu.Unlock()
		return
	}
	sub.seen[e.u.TaskID] = e.seq
	b.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("bus listener failed",
				zap.String("task", e.u.TaskID),
				zap.Error(fmt.Errorf("panic: %v", r)))
		}
	}()
	u := e.u
	u.Data = u.Data.CloneSnapshot()
	sub.fn(u)
}

// #endregion helpers
