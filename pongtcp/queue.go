package pongtcp

import (
	"github.com/castaneai/pongcoord"
)

// searchQueue is a FIFO of searching clients. A client appears at most once.
// It is owned by the multiplexer loop and is not safe for concurrent use.
type searchQueue struct {
	order   []pongcoord.ClientID
	members map[pongcoord.ClientID]struct{}
}

func newSearchQueue() *searchQueue {
	return &searchQueue{members: make(map[pongcoord.ClientID]struct{})}
}

// Push appends id and reports whether it was not queued yet.
func (q *searchQueue) Push(id pongcoord.ClientID) bool {
	if _, ok := q.members[id]; ok {
		return false
	}
	q.members[id] = struct{}{}
	q.order = append(q.order, id)
	return true
}

func (q *searchQueue) Remove(id pongcoord.ClientID) bool {
	if _, ok := q.members[id]; !ok {
		return false
	}
	delete(q.members, id)
	for i, queued := range q.order {
		if queued == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return true
}

// Pop removes and returns the longest-waiting client.
func (q *searchQueue) Pop() (pongcoord.ClientID, bool) {
	if len(q.order) == 0 {
		return "", false
	}
	id := q.order[0]
	q.order = q.order[1:]
	delete(q.members, id)
	return id, true
}

func (q *searchQueue) Contains(id pongcoord.ClientID) bool {
	_, ok := q.members[id]
	return ok
}

func (q *searchQueue) Len() int {
	return len(q.order)
}
