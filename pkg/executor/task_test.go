package executor

import (
	"context"
	"strings"
	"testing"

	"palisade-hq/palisade/pkg/ledger"
	"palisade-hq/palisade/pkg/policy"

	"palisade-hq/palisade/internal/winfake"
)

const winSATPath = `\Microsoft\Windows\Maintenance\WinSAT`

const winSATXML = `<?xml version="1.0" encoding="UTF-16"?>
<Task version="1.2" xmlns="http://schemas.microsoft.com/windows/2004/02/mit/task">
  <Triggers>
    <IdleTrigger>
      <Enabled>true</Enabled>
    </IdleTrigger>
  </Triggers>
  <Actions>
    <Exec>
      <Command>%SystemRoot%\system32\WinSAT.exe</Command>
    </Exec>
  </Actions>
</Task>`

func taskPolicy(id string, details *policy.TaskDetails) *policy.PolicyDefinition {
	return &policy.PolicyDefinition{
		ID:         id,
		Name:       "Test task policy " + id,
		Mechanism:  policy.MechanismScheduledTask,
		Risk:       policy.RiskLow,
		Reversible: true,
		Details:    details,
	}
}

func TestTaskExecutor_DisableRoundTrip(t *testing.T) {
	store := winfake.NewTasks()
	store.Seed(winSATPath, winfake.TaskState{Enabled: true, XML: winSATXML})

	exec := NewTaskExecutor(store)
	def := taskPolicy("disable-winsat", &policy.TaskDetails{
		TaskPath: winSATPath,
		Action:   policy.TaskActionDisable,
	})

	rec := exec.Apply(context.Background(), def)
	if !rec.Success {
		t.Fatalf("Apply() failed: %s", rec.ErrorMessage)
	}
	if rec.PreviousState == nil || *rec.PreviousState != taskStateEnabled {
		t.Errorf("PreviousState = %v, want enabled", rec.PreviousState)
	}
	if rec.NewState != taskStateDisabled {
		t.Errorf("NewState = %q, want disabled", rec.NewState)
	}

	applied, err := exec.IsApplied(context.Background(), def)
	if err != nil || !applied {
		t.Fatalf("IsApplied() = (%v, %v), want (true, nil)", applied, err)
	}

	revert := exec.Revert(context.Background(), def, rec)
	if !revert.Success {
		t.Fatalf("Revert() failed: %s", revert.ErrorMessage)
	}
	state, _ := store.State(winSATPath)
	if !state.Enabled {
		t.Error("task still disabled after revert")
	}
}

func TestTaskExecutor_DeleteCapturesDefinition(t *testing.T) {
	store := winfake.NewTasks()
	store.Seed(winSATPath, winfake.TaskState{Enabled: true, XML: winSATXML})

	exec := NewTaskExecutor(store)
	def := taskPolicy("delete-winsat", &policy.TaskDetails{
		TaskPath: winSATPath,
		Action:   policy.TaskActionDelete,
	})

	rec := exec.Apply(context.Background(), def)
	if !rec.Success {
		t.Fatalf("Apply() failed: %s", rec.ErrorMessage)
	}
	if rec.PreviousState == nil || !strings.Contains(*rec.PreviousState, "<Task version=") {
		t.Fatal("PreviousState does not carry the exported definition")
	}
	if _, ok := store.State(winSATPath); ok {
		t.Fatal("task still present after delete")
	}

	revert := exec.Revert(context.Background(), def, rec)
	if !revert.Success {
		t.Fatalf("Revert() failed: %s", revert.ErrorMessage)
	}
	state, ok := store.State(winSATPath)
	if !ok {
		t.Fatal("task not re-registered by revert")
	}
	if state.XML != winSATXML {
		t.Error("re-registered definition differs from the captured one")
	}
	if !state.Enabled {
		t.Error("re-registered task is not enabled")
	}
}

func TestTaskExecutor_DeleteMissingTaskFails(t *testing.T) {
	exec := NewTaskExecutor(winfake.NewTasks())
	def := taskPolicy("delete-ghost", &policy.TaskDetails{
		TaskPath: `\Vendor\DoesNotExist`,
		Action:   policy.TaskActionDelete,
	})

	rec := exec.Apply(context.Background(), def)
	if rec.Success {
		t.Fatal("Apply() succeeded deleting a missing task")
	}
	if rec.ErrorCategory != ledger.CategoryNotFound {
		t.Errorf("ErrorCategory = %q, want not_found", rec.ErrorCategory)
	}
}

func TestTaskExecutor_ModifyTriggers(t *testing.T) {
	store := winfake.NewTasks()
	store.Seed(winSATPath, winfake.TaskState{Enabled: true, XML: winSATXML})

	newTriggers := `<Triggers>
    <CalendarTrigger>
      <Enabled>false</Enabled>
    </CalendarTrigger>
  </Triggers>`

	exec := NewTaskExecutor(store)
	def := taskPolicy("retrigger-winsat", &policy.TaskDetails{
		TaskPath:    winSATPath,
		Action:      policy.TaskActionModifyTriggers,
		TriggersXML: newTriggers,
	})

	rec := exec.Apply(context.Background(), def)
	if !rec.Success {
		t.Fatalf("Apply() failed: %s", rec.ErrorMessage)
	}

	state, _ := store.State(winSATPath)
	if !strings.Contains(state.XML, "CalendarTrigger") {
		t.Error("new triggers not registered")
	}
	if strings.Contains(state.XML, "IdleTrigger") {
		t.Error("old triggers still present")
	}
	if !strings.Contains(state.XML, "WinSAT.exe") {
		t.Error("actions lost during trigger splice")
	}

	applied, err := exec.IsApplied(context.Background(), def)
	if err != nil || !applied {
		t.Fatalf("IsApplied() = (%v, %v) after trigger change, want (true, nil)", applied, err)
	}

	revert := exec.Revert(context.Background(), def, rec)
	if !revert.Success {
		t.Fatalf("Revert() failed: %s", revert.ErrorMessage)
	}
	state, _ = store.State(winSATPath)
	if state.XML != winSATXML {
		t.Error("definition not restored after revert")
	}
}

func TestTaskExecutor_ExportOnly(t *testing.T) {
	store := winfake.NewTasks()
	store.Seed(winSATPath, winfake.TaskState{Enabled: true, XML: winSATXML})

	exec := NewTaskExecutor(store)
	def := taskPolicy("export-winsat", &policy.TaskDetails{
		TaskPath: winSATPath,
		Action:   policy.TaskActionExportOnly,
	})

	rec := exec.Apply(context.Background(), def)
	if !rec.Success {
		t.Fatalf("Apply() failed: %s", rec.ErrorMessage)
	}
	if !strings.Contains(rec.NewState, "<Task version=") {
		t.Error("NewState does not carry the exported definition")
	}
	if len(store.Ops) != 0 {
		t.Errorf("export_only mutated the store: %v", store.Ops)
	}

	revert := exec.Revert(context.Background(), def, rec)
	if !revert.Success {
		t.Fatalf("Revert() failed: %s", revert.ErrorMessage)
	}
	if len(store.Ops) != 0 {
		t.Errorf("export_only revert mutated the store: %v", store.Ops)
	}
}

func TestSpliceTriggers(t *testing.T) {
	t.Run("replaces block", func(t *testing.T) {
		out, err := spliceTriggers(winSATXML, "<Triggers><BootTrigger/></Triggers>")
		if err != nil {
			t.Fatalf("spliceTriggers() failed: %v", err)
		}
		if !strings.Contains(out, "<BootTrigger/>") || strings.Contains(out, "IdleTrigger") {
			t.Errorf("splice produced: %s", out)
		}
	})

	t.Run("replaces self-closing element", func(t *testing.T) {
		xml := `<Task><Triggers/><Actions/></Task>`
		out, err := spliceTriggers(xml, "<Triggers><BootTrigger/></Triggers>")
		if err != nil {
			t.Fatalf("spliceTriggers() failed: %v", err)
		}
		if out != `<Task><Triggers><BootTrigger/></Triggers><Actions/></Task>` {
			t.Errorf("splice produced: %s", out)
		}
	})

	t.Run("missing element", func(t *testing.T) {
		if _, err := spliceTriggers(`<Task><Actions/></Task>`, "<Triggers/>"); err == nil {
			t.Error("expected error for definition without Triggers")
		}
	})
}
