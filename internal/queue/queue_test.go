package queue

import (
	"sync"
	"testing"
	"time"
)

func TestReadWrite(t *testing.T) {
	q := NewMessageQueue()

	// Reading from an empty queue should return ErrQueueEmpty
	if _, err := q.Read(); err != ErrQueueEmpty {
		t.Fatal("expected to receive `ErrQueueEmpty` for reading from empty queue")
	}

	if err := q.Write(1); err != nil {
		t.Fatal(err)
	}

	if msg, err := q.Read(); err != nil || msg != 1 {
		t.Fatalf("expected to read 1, got %v (%v)", msg, err)
	}

	if _, err := q.Read(); err != ErrQueueEmpty {
		t.Fatal(err)
	}

	q.Close()
	if err := q.Write(1); err != ErrQueueClosed {
		t.Fatal(err)
	}
	if _, err := q.Read(); err != ErrQueueClosed {
		t.Fatal(err)
	}
}

func TestReadOrWaitDrainsAfterClose(t *testing.T) {
	q := NewMessageQueue()
	for i := 1; i <= 3; i++ {
		if err := q.Write(i); err != nil {
			t.Fatal(err)
		}
	}
	q.Close()

	for i := 1; i <= 3; i++ {
		msg, err := q.ReadOrWait()
		if err != nil {
			t.Fatal(err)
		}
		if msg != i {
			t.Fatalf("expected %d, got %v", i, msg)
		}
	}
	if _, err := q.ReadOrWait(); err != ErrQueueClosed {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
}

func TestReadOrWait(t *testing.T) {
	q := NewMessageQueue()

	go func() {
		_ = q.Write(1)
		_ = q.Write(2)
		time.Sleep(100 * time.Millisecond)
		_ = q.Write(3)
	}()

	timeout := time.After(10 * time.Second)
	done := make(chan struct{})
	readErr := make(chan error, 1)

	go func() {
		for {
			msg, err := q.ReadOrWait()
			if err != nil {
				readErr <- err
				return
			}
			if msg == 3 {
				close(done)
				return
			}
		}
	}()

	select {
	case <-timeout:
		t.Fatal("timed out waiting for all queue values to be read")
	case <-done:
	case err := <-readErr:
		t.Fatal(err)
	}
}

func TestBoundedWriteBlocksUntilRead(t *testing.T) {
	q := NewBoundedMessageQueue(1)
	if err := q.Write("a"); err != nil {
		t.Fatal(err)
	}

	written := make(chan error, 1)
	go func() {
		written <- q.Write("b")
	}()

	select {
	case err := <-written:
		t.Fatalf("expected write to a full queue to block, returned %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	if msg, err := q.Read(); err != nil || msg != "a" {
		t.Fatalf("expected to read a, got %v (%v)", msg, err)
	}

	select {
	case err := <-written:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for blocked write")
	}
	if q.Size() != 1 {
		t.Fatalf("expected 1 queued message, got %d", q.Size())
	}
}

func TestBoundedWriteUnblocksOnClose(t *testing.T) {
	q := NewBoundedMessageQueue(1)
	if err := q.Write(1); err != nil {
		t.Fatal(err)
	}

	written := make(chan error, 1)
	go func() {
		written <- q.Write(2)
	}()

	time.Sleep(50 * time.Millisecond)
	q.Close()

	select {
	case err := <-written:
		if err != ErrQueueClosed {
			t.Fatalf("expected ErrQueueClosed, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for blocked write")
	}
}

func TestMultipleReadersClose(t *testing.T) {
	q := NewMessageQueue()
	errChan := make(chan error, 2)

	wg := sync.WaitGroup{}
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func() {
			defer wg.Done()
			if _, err := q.ReadOrWait(); err != ErrQueueClosed {
				errChan <- err
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	// Close the queue and this should signal both readers to return ErrQueueClosed.
	q.Close()

	select {
	case err := <-errChan:
		t.Fatalf("failed in read: %v", err)
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatalf("timeout exceeded waiting for reads to complete")
	}
}
