// Copyright (C) 2026 The detd Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package mapping implements spec §4.5: the resource allocator that assigns
// each admitted scheduled stream to a hardware Tx queue and derives the
// socket-priority<->traffic-class and priority<->PCP egress maps.
//
// Socket-priority allocation order is an Open Question the worked example
// in spec §8 resolves concretely (see DESIGN.md, Open Question decisions):
// handles are drawn from the classic 8-band priority set {7,6,...,0},
// counting down in lockstep with the queue countdown, rather than
// literally "smallest unused in 0-15".
package mapping

import (
	"github.com/avnu-tsn/detd/internal/errors"
	"github.com/avnu-tsn/detd/internal/stream"
)

// NumPriorities is the number of Linux socket priorities the map covers.
const NumPriorities = 16

// NumHandlePriorities is the size of the pool scheduled streams draw
// priority handles from (see package doc).
const NumHandlePriorities = 8

// BestEffortTC and BestEffortQueue are the fixed assignment for
// non-scheduled traffic.
const (
	BestEffortTC    = 0
	BestEffortQueue = 0
)

// Assignment is the result of a successful AssignAndMap call.
type Assignment struct {
	Priority int
	TC       int
	Queue    int
}

// State is the per-interface mapping table.
type State struct {
	queueCount int

	usedQueues   map[int]bool
	usedPriority map[int]bool
	nextTC       int

	priorityToTC  [NumPriorities]int
	priorityToPCP [NumPriorities]uint8
	priorityQueue [NumPriorities]int
}

// New creates mapping state for an interface with queueCount hardware Tx
// queues. Every priority initially maps to the best-effort TC/queue.
func New(queueCount int) *State {
	s := &State{
		queueCount:   queueCount,
		usedQueues:   make(map[int]bool),
		usedPriority: make(map[int]bool),
		nextTC:       1,
	}
	return s
}

// Clone returns an independent copy of s.
func (s *State) Clone() *State {
	cp := &State{
		queueCount:   s.queueCount,
		usedQueues:   make(map[int]bool, len(s.usedQueues)),
		usedPriority: make(map[int]bool, len(s.usedPriority)),
		nextTC:       s.nextTC,
	}
	for k, v := range s.usedQueues {
		cp.usedQueues[k] = v
	}
	for k, v := range s.usedPriority {
		cp.usedPriority[k] = v
	}
	cp.priorityToTC = s.priorityToTC
	cp.priorityToPCP = s.priorityToPCP
	cp.priorityQueue = s.priorityQueue
	return cp
}

// PriorityToTC returns the full 16-entry priority->TC map.
func (s *State) PriorityToTC() [NumPriorities]int { return s.priorityToTC }

// PriorityToPCP returns the full 16-entry priority->PCP egress map.
func (s *State) PriorityToPCP() [NumPriorities]uint8 { return s.priorityToPCP }

// TCToQueue returns the tc->queue table for all TCs assigned so far,
// including the fixed best-effort TC0->queue0 entry.
func (s *State) TCToQueue() map[int]int {
	out := map[int]int{BestEffortTC: BestEffortQueue}
	// usedQueues records queue->claimed; reconstruct tc->queue by walking
	// the priority map, since that is the only place tc assignments are
	// recorded once assigned.
	for p, tc := range s.priorityToTC {
		if tc == BestEffortTC {
			continue
		}
		out[tc] = s.queueForPriority(p)
	}
	return out
}

func (s *State) queueForPriority(p int) int {
	return s.priorityQueue[p]
}

// AssignAndMap allocates a TC, queue and socket-priority handle for cfg on
// a copy of s and returns both the updated mapping and the assignment. s
// itself is never mutated.
func (s *State) AssignAndMap(cfg stream.Config) (*State, Assignment, error) {
	next := s.Clone()

	priority, ok := next.nextFreePriority()
	if !ok {
		return nil, Assignment{}, errors.New(errors.KindNoCapacity, "no free socket priority handle")
	}
	queue, ok := next.nextFreeQueue()
	if !ok {
		return nil, Assignment{}, errors.New(errors.KindNoCapacity, "no free hardware queue")
	}
	tc := next.nextTC
	next.nextTC++

	next.usedPriority[priority] = true
	next.usedQueues[queue] = true
	next.priorityToTC[priority] = tc
	next.priorityToPCP[priority] = cfg.PCP
	next.priorityQueue[priority] = queue

	return next, Assignment{Priority: priority, TC: tc, Queue: queue}, nil
}

func (s *State) nextFreePriority() (int, bool) {
	for p := NumHandlePriorities - 1; p >= 0; p-- {
		if !s.usedPriority[p] {
			return p, true
		}
	}
	return 0, false
}

func (s *State) nextFreeQueue() (int, bool) {
	for q := s.queueCount - 1; q >= 0; q-- {
		if !s.usedQueues[q] {
			return q, true
		}
	}
	return 0, false
}

// release drops the priority/queue/tc assignment from a copy of s. Stream
// removal is not implemented (spec §9 Design Notes (c)); see the matching
// stub in package scheduler.
// TODO: wire this up once StreamQosRequest gains a remove/talker-id field.
func (s *State) release(priority int) *State { //nolint:unused
	next := s.Clone()
	tc := next.priorityToTC[priority]
	q := next.priorityQueue[priority]
	delete(next.usedPriority, priority)
	delete(next.usedQueues, q)
	next.priorityToTC[priority] = BestEffortTC
	next.priorityToPCP[priority] = 0
	_ = tc
	return next
}
