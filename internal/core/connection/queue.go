package connection

import "sync"

// Queue is the outbound frame queue used while disconnected. Strictly FIFO:
// frames are flushed in arrival order on reconnect, and a frame that fails
// to send mid-flush goes back to the front so ordering survives the retry.
type Queue struct {
	mu     sync.Mutex
	frames [][]byte
}

func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue appends a frame to the back.
func (q *Queue) Enqueue(frame []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.frames = append(q.frames, frame)
}

// Dequeue removes and returns the frame at the front.
func (q *Queue) Dequeue() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.frames) == 0 {
		return nil, false
	}
	frame := q.frames[0]
	q.frames[0] = nil // avoid memory leak
	q.frames = q.frames[1:]
	return frame, true
}

// Requeue puts a frame back at the front after a failed send.
func (q *Queue) Requeue(frame []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.frames = append([][]byte{frame}, q.frames...)
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}
