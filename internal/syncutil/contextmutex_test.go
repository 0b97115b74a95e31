package syncutil

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestShardedMutex_SerializesSameKey(t *testing.T) {
	var m ShardedMutex

	counter := 0
	var wg sync.WaitGroup
	const n = 100

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			unlock := m.Lock("wallet:0xabc")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	if counter != n {
		t.Fatalf("lost updates under lock: got %d, want %d", counter, n)
	}
}

func TestContextShardedMutex_ZeroValueUsable(t *testing.T) {
	var m ContextShardedMutex

	unlock, err := m.LockContext(context.Background(), "tx-1")
	if err != nil {
		t.Fatalf("LockContext: %v", err)
	}
	unlock()
}

func TestContextShardedMutex_SerializesSameKey(t *testing.T) {
	m := NewContextShardedMutex()
	ctx := context.Background()

	counter := 0
	var wg sync.WaitGroup
	const n = 100

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			unlock, err := m.LockContext(ctx, "tx-42")
			if err != nil {
				t.Errorf("LockContext: %v", err)
				return
			}
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	if counter != n {
		t.Fatalf("lost updates under lock: got %d, want %d", counter, n)
	}
}

func TestContextShardedMutex_DeadlineWhileWaiting(t *testing.T) {
	m := NewContextShardedMutex()

	unlock, err := m.LockContext(context.Background(), "held")
	if err != nil {
		t.Fatalf("LockContext: %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := m.LockContext(ctx, "held"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestContextShardedMutex_UnlockHandsOff(t *testing.T) {
	m := NewContextShardedMutex()
	ctx := context.Background()

	unlock, err := m.LockContext(ctx, "relay")
	if err != nil {
		t.Fatalf("LockContext: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		u, err := m.LockContext(ctx, "relay")
		if err != nil {
			return
		}
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second caller got the lock while first still held it")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second caller never got the lock after release")
	}
}

func TestShardIndex_Stable(t *testing.T) {
	if shardIndex("tx-1") != shardIndex("tx-1") {
		t.Fatal("same key must map to the same shard")
	}
	if shardIndex("tx-1") >= shardCount {
		t.Fatal("shard index out of range")
	}
}
