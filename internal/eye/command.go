package eye

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"sync"
)

// Command is a control message from the UI/orchestrator to the processor.
type Command interface {
	command()
}

// ChangeVictimCore tells the processor a different core is now under
// stimulus; all accumulated eye state is discarded.
type ChangeVictimCore struct {
	CoreID int
}

// ChangeAccumulations updates the per-bin accumulation cap; existing queues
// are trimmed on the next finalization.
type ChangeAccumulations struct {
	Cap int
}

func (ChangeVictimCore) command()    {}
func (ChangeAccumulations) command() {}

// CommandQueue is a mutex-guarded FIFO of commands. Enqueue is unconditional;
// the processor drains opportunistically once per outer loop iteration.
// Command order is preserved.
type CommandQueue struct {
	mu   sync.Mutex
	cmds []Command
}

// Push appends a command.
func (q *CommandQueue) Push(cmd Command) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cmds = append(q.cmds, cmd)
}

// TryPop removes and returns the oldest command, if any.
func (q *CommandQueue) TryPop() (Command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.cmds) == 0 {
		return nil, false
	}
	cmd := q.cmds[0]
	q.cmds = q.cmds[1:]
	return cmd, true
}
