// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// fakeTransport scripts one response per request, delivered as chunks.
type fakeTransport struct {
	mu    sync.Mutex
	calls []string

	chunks [][]byte
	status int
	err    error
}

func (f *fakeTransport) Do(_ context.Context, method, path string, _ any, sink func([]byte) error) (int, error) {
	f.mu.Lock()
	f.calls = append(f.calls, method+" "+path)
	chunks, status, err := f.chunks, f.status, f.err
	f.mu.Unlock()

	if err != nil {
		return status, err
	}
	for _, ch := range chunks {
		if serr := sink(ch); serr != nil {
			return status, serr
		}
	}
	return status, nil
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestTickDispatchesOnePerCall(t *testing.T) {
	ft := &fakeTransport{status: 200}
	r := New(ft, nil)

	done := make(chan struct{}, 3)
	for i := 0; i < 3; i++ {
		r.Enqueue(&Operation{
			Method: "GET", Path: "/a", Name: "op",
			Done: func([]byte, error) { done <- struct{}{} },
		})
	}
	if r.Pending() != 3 {
		t.Fatalf("Pending = %d, want 3", r.Pending())
	}

	if !r.Tick(context.Background()) {
		t.Fatal("Tick returned false with a non-empty queue")
	}
	<-done
	if r.Pending() != 2 {
		t.Errorf("Pending after one tick = %d, want 2", r.Pending())
	}

	r.Tick(context.Background())
	r.Tick(context.Background())
	<-done
	<-done
	if r.Tick(context.Background()) {
		t.Error("Tick returned true on an empty queue")
	}
}

func TestChunkReassembly(t *testing.T) {
	ft := &fakeTransport{
		chunks: [][]byte{[]byte("hello "), []byte("wor"), []byte("ld")},
		status: 200,
	}
	r := New(ft, nil)

	got := make(chan []byte, 1)
	r.Enqueue(&Operation{
		Method: "GET", Path: "/a", Name: "op",
		Done: func(body []byte, err error) {
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			got <- body
		},
	})
	r.Tick(context.Background())

	if body := <-got; string(body) != "hello world" {
		t.Errorf("body = %q, want %q", body, "hello world")
	}
	if r.InFlight() != 0 {
		t.Errorf("InFlight = %d, want 0 after completion", r.InFlight())
	}
}

func TestTransportErrorReachesContinuation(t *testing.T) {
	wantErr := errors.New("boom")
	ft := &fakeTransport{err: wantErr}
	r := New(ft, nil)

	got := make(chan error, 1)
	r.Enqueue(&Operation{
		Method: "GET", Path: "/a", Name: "op",
		Done: func(body []byte, err error) {
			if len(body) != 0 {
				t.Errorf("body = %q, want empty on error", body)
			}
			got <- err
		},
	})
	r.Tick(context.Background())

	if err := <-got; !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want %v", err, wantErr)
	}
}

func TestConcurrentIdenticalRequestsDoNotShareAccumulators(t *testing.T) {
	ft := &fakeTransport{chunks: [][]byte{[]byte("x")}, status: 200}
	r := New(ft, nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	fired := 0
	for i := 0; i < 2; i++ {
		wg.Add(1)
		r.Enqueue(&Operation{
			Method: "GET", Path: "/same", Name: "same",
			Done: func(body []byte, err error) {
				mu.Lock()
				fired++
				if string(body) != "x" {
					t.Errorf("body = %q, want %q", body, "x")
				}
				mu.Unlock()
				wg.Done()
			},
		})
	}
	r.Drain(context.Background())
	wg.Wait()

	if fired != 2 {
		t.Errorf("continuations fired %d times, want 2", fired)
	}
}

func TestStrayFinalDropped(t *testing.T) {
	r := New(&fakeTransport{status: 200}, nil)
	// No such key: must not panic or invoke anything.
	r.BufferedResponse("ghost|op|key", 200, nil, nil)
	r.BufferedResponse("ghost|op|key", StatusPartial, []byte("late"), nil)
}

func TestContinuationRunsThroughDeliver(t *testing.T) {
	ft := &fakeTransport{status: 200}

	delivered := make(chan func(), 1)
	r := New(ft, func(fn func()) { delivered <- fn })

	fired := make(chan struct{}, 1)
	r.Enqueue(&Operation{
		Method: "GET", Path: "/a", Name: "op",
		Done: func([]byte, error) { fired <- struct{}{} },
	})
	r.Tick(context.Background())

	fn := <-delivered
	select {
	case <-fired:
		t.Fatal("continuation ran before deliver invoked it")
	default:
	}
	fn()
	<-fired
}

func TestDrainEmptiesQueue(t *testing.T) {
	ft := &fakeTransport{status: 200}
	r := New(ft, nil)
	for i := 0; i < 5; i++ {
		r.Enqueue(&Operation{Method: "GET", Path: "/a", Name: "op"})
	}
	r.Drain(context.Background())
	if r.Pending() != 0 {
		t.Errorf("Pending = %d after Drain, want 0", r.Pending())
	}
}
