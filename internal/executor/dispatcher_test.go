package executor

import (
	"context"
	"testing"

	"github.com/nanoagent/nanoagent/internal/model"
)

func TestDispatchDeniesInsufficientPermission(t *testing.T) {
	d := NewDispatcher(nil)
	d.Register(model.CmdProcessKill, func(ctx context.Context, cmd model.Command) model.CommandResult {
		t.Fatal("handler must not run when permission is denied")
		return model.CommandResult{}
	})

	result := d.Dispatch(context.Background(), model.Command{ID: "c1", Kind: model.CmdProcessKill, Target: "4321"}, model.BasicWrite)
	if result.Success {
		t.Fatal("expected denial")
	}
	if result.ID != "c1" {
		t.Errorf("expected id echoed, got %q", result.ID)
	}
}

func TestDispatchRunsHandlerWhenPermitted(t *testing.T) {
	d := NewDispatcher(nil)
	called := false
	d.Register(model.CmdProcessList, func(ctx context.Context, cmd model.Command) model.CommandResult {
		called = true
		return model.OK(cmd.ID, "ok")
	})

	result := d.Dispatch(context.Background(), model.Command{ID: "c2", Kind: model.CmdProcessList}, model.ReadOnly)
	if !called {
		t.Fatal("expected handler to run")
	}
	if !result.Success {
		t.Errorf("expected success, got error: %s", result.Error)
	}
}

func TestDispatchUnknownKind(t *testing.T) {
	d := NewDispatcher(nil)
	result := d.Dispatch(context.Background(), model.Command{ID: "c3", Kind: model.CommandKind("nonexistent")}, model.SystemAdmin)
	if result.Success {
		t.Fatal("expected failure for unregistered kind")
	}
}
