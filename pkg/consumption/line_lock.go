package consumption

import (
	"sort"
	"sync"
)

// LineLocks is an in-process try-lock registry keyed by BOQ line id. It is
// the SELECT ... FOR UPDATE NOWAIT of the gate: acquisition either succeeds
// immediately or fails, it never blocks. Contention surfaces as a retryable
// error instead of a lock queue.
type LineLocks struct {
	mu   sync.Mutex
	held map[int]struct{}
}

func NewLineLocks() *LineLocks {
	return &LineLocks{held: make(map[int]struct{})}
}

// TryLock acquires the lock for the given line id, or reports false if a
// concurrent holder exists.
func (l *LineLocks) TryLock(lineId int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, taken := l.held[lineId]; taken {
		return false
	}
	l.held[lineId] = struct{}{}
	return true
}

func (l *LineLocks) Unlock(lineId int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, lineId)
}

// TryLockAll acquires the locks for every given line id in sorted order,
// failing immediately on contention. On success release frees all of them; on
// failure nothing stays held and contended names the line that was taken.
func (l *LineLocks) TryLockAll(lineIds []int) (release func(), contended int, ok bool) {
	ids := make([]int, len(lineIds))
	copy(ids, lineIds)
	sort.Ints(ids)

	locked := make([]int, 0, len(ids))
	release = func() {
		for _, id := range locked {
			l.Unlock(id)
		}
	}
	for _, id := range ids {
		if !l.TryLock(id) {
			release()
			return nil, id, false
		}
		locked = append(locked, id)
	}
	return release, 0, true
}
