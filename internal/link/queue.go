package link

// queue is the outbound FIFO. It is guarded by Link.mu.
type queue struct {
	items [][]byte
}

func (q *queue) push(pkt []byte) { q.items = append(q.items, pkt) }

// take removes and returns everything queued, oldest first.
func (q *queue) take() [][]byte {
	items := q.items
	q.items = nil
	return items
}

// reset discards everything queued and reports how many packets were dropped.
func (q *queue) reset() int {
	n := len(q.items)
	q.items = nil
	return n
}

func (q *queue) len() int { return len(q.items) }
