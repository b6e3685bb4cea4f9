package queue

import (
	"errors"
	"sync"
)

var (
	ErrQueueClosed = errors.New("the queue is closed for reading and writing")
	ErrQueueEmpty  = errors.New("the queue is empty")
)

// MessageQueue is a thread safe FIFO queue.
//
// A queue created with [NewBoundedMessageQueue] blocks writers while it is full.
type MessageQueue struct {
	m        sync.Mutex
	c        *sync.Cond
	messages []interface{}
	capacity int
	closed   bool
}

// NewMessageQueue returns a new unbounded MessageQueue.
func NewMessageQueue() *MessageQueue {
	return NewBoundedMessageQueue(0)
}

// NewBoundedMessageQueue returns a MessageQueue holding at most capacity messages.
// A capacity of zero or less means unbounded.
func NewBoundedMessageQueue(capacity int) *MessageQueue {
	if capacity < 0 {
		capacity = 0
	}
	q := &MessageQueue{capacity: capacity}
	q.c = sync.NewCond(&q.m)
	return q
}

// Write writes `msg` to the queue, waiting for space if the queue is bounded and full.
func (mq *MessageQueue) Write(msg interface{}) error {
	mq.m.Lock()
	defer mq.m.Unlock()

	for !mq.closed && mq.capacity > 0 && len(mq.messages) >= mq.capacity {
		mq.c.Wait()
	}
	if mq.closed {
		return ErrQueueClosed
	}
	mq.messages = append(mq.messages, msg)
	// Readers and writers share the condition variable.
	mq.c.Broadcast()
	return nil
}

// Read will read a value from the queue if available, otherwise return an error.
func (mq *MessageQueue) Read() (interface{}, error) {
	mq.m.Lock()
	defer mq.m.Unlock()

	if len(mq.messages) == 0 {
		if mq.closed {
			return nil, ErrQueueClosed
		}
		return nil, ErrQueueEmpty
	}
	return mq.pop(), nil
}

// ReadOrWait will read a value from the queue if available, else it will wait for a
// value to become available. Messages written before [MessageQueue.Close] are still
// returned; ErrQueueClosed is returned once the queue is closed and empty.
func (mq *MessageQueue) ReadOrWait() (interface{}, error) {
	mq.m.Lock()
	defer mq.m.Unlock()

	for !mq.closed && len(mq.messages) == 0 {
		mq.c.Wait()
	}
	if len(mq.messages) == 0 {
		return nil, ErrQueueClosed
	}
	return mq.pop(), nil
}

// Size returns the number of messages currently in the queue.
func (mq *MessageQueue) Size() int {
	mq.m.Lock()
	defer mq.m.Unlock()
	return len(mq.messages)
}

// Close closes the queue for future writes and wakes up all waiting readers and writers.
// Calling Close more than once is a no-op.
func (mq *MessageQueue) Close() {
	mq.m.Lock()
	defer mq.m.Unlock()

	if mq.closed {
		return
	}
	mq.closed = true
	mq.c.Broadcast()
}

func (mq *MessageQueue) pop() interface{} {
	msg := mq.messages[0]
	mq.messages[0] = nil
	mq.messages = mq.messages[1:]
	mq.c.Broadcast()
	return msg
}
