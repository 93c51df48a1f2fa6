// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package router provides the asynchronous request router.
//
// Collaborators enqueue operation descriptors (method + path + continuation)
// into a FIFO. A driver pops and dispatches at most one operation per
// scheduler tick, so REST calls never block the host event loop and the
// number of newly started requests is bounded by the tick rate. Responses
// stream back in chunks keyed by a per-request correlation key; when the
// transport signals completion the original caller's continuation is
// invoked exactly once with the reassembled body.
package router

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"
)

// StatusPartial marks a buffered-response callback that carries a body
// chunk. Any other status is final and closes the request.
const StatusPartial = 0

// Continuation receives the reassembled response body, or the request's
// error. Exactly one of the two paths runs, exactly once. The continuation
// decides whether a failure is user-visible; the router never retries.
type Continuation func(body []byte, err error)

// Operation describes one pending REST call.
type Operation struct {
	Method string
	Path   string
	Body   any

	// Name identifies the continuation in the correlation key, which aids
	// log correlation; uniqueness comes from the per-request id.
	Name string
	Done Continuation
}

// Transport executes one request, feeding body chunks to sink and returning
// the final status. rest.Client.Do satisfies this.
type Transport interface {
	Do(ctx context.Context, method, path string, body any, sink func(chunk []byte) error) (int, error)
}

// =============================================================================
// ROUTER
// =============================================================================

// accumulator reassembles one request's chunked response.
type accumulator struct {
	op   *Operation
	body []byte
	done bool
}

// Router is the FIFO of pending operations plus the correlation table of
// in-flight ones. The mutex only guards the queue and table; continuations
// run through deliver, which the owner loop points at itself so model
// mutation stays single-threaded.
type Router struct {
	mu        sync.Mutex
	transport Transport
	queue     []*Operation
	table     map[string]*accumulator

	// deliver hands a continuation invocation to the mutation owner.
	deliver func(fn func())
}

// New creates a router over the given transport. deliver may be nil, in
// which case continuations run on the transport goroutine (tests only).
func New(transport Transport, deliver func(fn func())) *Router {
	if deliver == nil {
		deliver = func(fn func()) { fn() }
	}
	return &Router{
		transport: transport,
		table:     make(map[string]*accumulator),
		deliver:   deliver,
	}
}

// Enqueue appends an operation to the FIFO. It never blocks and never
// dispatches; dispatch happens on the next tick.
func (r *Router) Enqueue(op *Operation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = append(r.queue, op)
}

// Pending returns the number of queued (not yet dispatched) operations.
func (r *Router) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// InFlight returns the number of dispatched, unfinished operations.
func (r *Router) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.table)
}

// Tick pops and dispatches at most one operation. It returns true when an
// operation was dispatched. The driver calls this once per scheduler tick.
func (r *Router) Tick(ctx context.Context) bool {
	r.mu.Lock()
	if len(r.queue) == 0 {
		r.mu.Unlock()
		return false
	}
	op := r.queue[0]
	r.queue = r.queue[1:]

	// The correlation key embeds a generated id so two concurrent identical
	// requests never share an accumulator.
	key := op.Path + "|" + op.Name + "|" + uuid.NewString()
	r.table[key] = &accumulator{op: op}
	r.mu.Unlock()

	go r.execute(ctx, key, op)
	return true
}

// execute runs one request on the transport, forwarding chunks and the
// final status into the correlation table.
func (r *Router) execute(ctx context.Context, key string, op *Operation) {
	status, err := r.transport.Do(ctx, op.Method, op.Path, op.Body, func(chunk []byte) error {
		r.BufferedResponse(key, StatusPartial, chunk, nil)
		return nil
	})
	if status == StatusPartial {
		// Transport failed before producing a status; any nonzero status
		// closes the request, so borrow the generic server-error code.
		status = 599
	}
	r.BufferedResponse(key, status, nil, err)
}

// BufferedResponse records one transport callback for the request keyed by
// key. Partial statuses append the chunk; any other status is final and
// fires the continuation exactly once with the accumulated body. Callbacks
// for unknown or already-finished keys are dropped.
func (r *Router) BufferedResponse(key string, status int, chunk []byte, err error) {
	r.mu.Lock()
	acc, ok := r.table[key]
	if !ok || acc.done {
		r.mu.Unlock()
		if status != StatusPartial {
			log.Printf("router: dropping stray final response for %q", key)
		}
		return
	}
	if status == StatusPartial && err == nil {
		acc.body = append(acc.body, chunk...)
		r.mu.Unlock()
		return
	}

	acc.done = true
	delete(r.table, key)
	body := acc.body
	done := acc.op.Done
	r.mu.Unlock()

	if done == nil {
		return
	}
	r.deliver(func() { done(body, err) })
}

// Drain dispatches queued operations until the queue is empty, one per
// iteration. Used on shutdown and in tests; the steady state driver is Tick.
func (r *Router) Drain(ctx context.Context) {
	for r.Tick(ctx) {
	}
}
