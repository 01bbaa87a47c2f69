package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

const (
	defaultUndoHistoryDepth = 20

	eventCommandPanic = "orders.command.panic"
)

// Command is one order lifecycle operation with execute and undo semantics.
// Execute and Undo report their outcome as a CommandResult; read failures and
// business rejections ride inside the result, never as a bare error.
type Command interface {
	Execute(ctx context.Context) CommandResult
	Undo(ctx context.Context) CommandResult
	SupportsUndo() bool
	Description() string
}

// CommandInvoker executes commands and keeps a bounded per-caller history of
// the undoable ones. It is safe for concurrent use; the lock guards only the
// history, not command execution.
type CommandInvoker struct {
	mu      sync.Mutex
	depth   int
	history map[string][]Command
	logger  Logger
}

// NewCommandInvoker builds an invoker keeping up to depth undoable commands
// per caller. Older entries fall off when the bound is reached.
func NewCommandInvoker(depth int, logger Logger) *CommandInvoker {
	if depth <= 0 {
		depth = defaultUndoHistoryDepth
	}
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &CommandInvoker{
		depth:   depth,
		history: make(map[string][]Command),
		logger:  logger,
	}
}

// Execute runs the command and, when it succeeds and supports undo, records it
// on the caller's history. A panic inside the command becomes a failed result.
func (inv *CommandInvoker) Execute(ctx context.Context, callerID string, cmd Command) CommandResult {
	if cmd == nil {
		return failedResult("no command to execute", nil)
	}

	result := inv.run(ctx, cmd, cmd.Execute)
	if result.Success && cmd.SupportsUndo() {
		inv.push(normalizeCaller(callerID), cmd)
	}
	return result
}

// UndoLast pops the caller's most recent undoable command and undoes it. A
// failed undo pushes the command back so the history entry is not lost.
func (inv *CommandInvoker) UndoLast(ctx context.Context, callerID string) CommandResult {
	caller := normalizeCaller(callerID)
	cmd, ok := inv.pop(caller)
	if !ok {
		return failedResult("No commands available to undo", nil)
	}

	result := inv.run(ctx, cmd, cmd.Undo)
	if !result.Success {
		inv.push(caller, cmd)
	}
	return result
}

// UndoableCount reports how many commands the caller can currently undo.
func (inv *CommandInvoker) UndoableCount(callerID string) int {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return len(inv.history[normalizeCaller(callerID)])
}

// LastUndoableDescription describes the command UndoLast would pop, or "".
func (inv *CommandInvoker) LastUndoableDescription(callerID string) string {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	stack := inv.history[normalizeCaller(callerID)]
	if len(stack) == 0 {
		return ""
	}
	return stack[len(stack)-1].Description()
}

func (inv *CommandInvoker) run(ctx context.Context, cmd Command, op func(context.Context) CommandResult) (result CommandResult) {
	defer func() {
		if r := recover(); r != nil {
			inv.logger(ctx, eventCommandPanic, map[string]any{
				"command": cmd.Description(),
				"panic":   fmt.Sprintf("%v", r),
			})
			result = failedResult(fmt.Sprintf("command failed: %v", r), fmt.Errorf("command panic: %v", r))
		}
	}()
	return op(ctx)
}

func (inv *CommandInvoker) push(caller string, cmd Command) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	stack := inv.history[caller]
	if len(stack) >= inv.depth {
		stack = stack[len(stack)-inv.depth+1:]
	}
	inv.history[caller] = append(stack, cmd)
}

func (inv *CommandInvoker) pop(caller string) (Command, bool) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	stack := inv.history[caller]
	if len(stack) == 0 {
		return nil, false
	}
	cmd := stack[len(stack)-1]
	inv.history[caller] = stack[:len(stack)-1]
	return cmd, true
}

// normalizeCaller maps blank caller ids onto a shared anonymous history.
func normalizeCaller(callerID string) string {
	if trimmed := strings.TrimSpace(callerID); trimmed != "" {
		return trimmed
	}
	return "anonymous"
}
