// Package executor implements one handler per command family (process,
// service, container, file, shell, update, config, packages, logs,
// scripts), each consuming validated inputs and returning a typed
// model.CommandResult. None of the executors hold state across commands;
// the only exception is UpdateExecutor's apply step, which mutates the
// running executable's on-disk image.
package executor

import (
	"context"
	"fmt"

	"github.com/nanoagent/nanoagent/internal/model"
	"github.com/nanoagent/nanoagent/internal/security"
	"go.uber.org/zap"
)

// Handler executes one validated Command and returns its reply. Handlers
// never panic on malformed input -- every failure path returns
// model.Fail(cmd.ID, ...)
type Handler func(ctx context.Context, cmd model.Command) model.CommandResult

// Dispatcher maps CommandKind to Handler and gates every dispatch through
// the permission lattice before the handler ever runs.
type Dispatcher struct {
	handlers map[model.CommandKind]Handler
	log      *zap.SugaredLogger
}

func NewDispatcher(log *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{handlers: make(map[model.CommandKind]Handler), log: log}
}

// Register binds a handler to a command kind. Re-registering a kind
// replaces the prior handler (used only by tests).
func (d *Dispatcher) Register(kind model.CommandKind, h Handler) {
	d.handlers[kind] = h
}

// Dispatch authorizes cmd against heldLevel and, if permitted, runs its
// registered handler. Permission and validation failures are reported back
// to the server and audit-logged with a [SECURITY] tag; they are never
// retried.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd model.Command, heldLevel model.PermissionLevel) model.CommandResult {
	if err := security.Authorize(cmd.Kind, heldLevel); err != nil {
		d.logSecurity(cmd, err)
		return model.Fail(cmd.ID, err.Error())
	}
	h, ok := d.handlers[cmd.Kind]
	if !ok {
		return model.Fail(cmd.ID, fmt.Sprintf("no executor registered for command kind %q", cmd.Kind))
	}
	result := h(ctx, cmd)
	if !result.Success && looksLikeValidationFailure(result.Error) {
		d.logSecurity(cmd, fmt.Errorf("%s", result.Error))
	}
	return result
}

func (d *Dispatcher) logSecurity(cmd model.Command, err error) {
	if d.log == nil {
		return
	}
	d.log.Warnw("[SECURITY] command rejected", "command_id", cmd.ID, "kind", cmd.Kind, "target", cmd.Target, "reason", err.Error())
}

// looksLikeValidationFailure is a best-effort classifier used only to decide
// whether to add the [SECURITY] audit tag on handler-reported failures (as
// opposed to e.g. a subprocess timeout, which is also success=false but not
// a security event).
func looksLikeValidationFailure(errMsg string) bool {
	for _, marker := range []string{"traversal", "disallowed character", "injection", "dangerous pattern", "denied location", "invalid format", "not in the configured"} {
		if containsFold(errMsg, marker) {
			return true
		}
	}
	return false
}

func containsFold(s, sub string) bool {
	sl, subl := []rune(s), []rune(sub)
	if len(subl) == 0 {
		return true
	}
	for i := 0; i+len(subl) <= len(sl); i++ {
		match := true
		for j := range subl {
			a, b := sl[i+j], subl[j]
			if a >= 'A' && a <= 'Z' {
				a += 'a' - 'A'
			}
			if b >= 'A' && b <= 'Z' {
				b += 'a' - 'A'
			}
			if a != b {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
