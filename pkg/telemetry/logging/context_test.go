package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestContextAccessors(t *testing.T) {
	tests := []struct {
		name string
		set  func(context.Context, string) context.Context
		get  func(context.Context) string
	}{
		{"command_id", WithCommandID, GetCommandID},
		{"command_type", WithCommandType, GetCommandType},
		{"policy_id", WithPolicyID, GetPolicyID},
		{"snapshot_id", WithSnapshotID, GetSnapshotID},
		{"caller", WithCaller, GetCaller},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()

			// Absent value returns empty string
			if got := tt.get(ctx); got != "" {
				t.Errorf("expected empty value on fresh context, got %q", got)
			}

			ctx = tt.set(ctx, "value-1")
			if got := tt.get(ctx); got != "value-1" {
				t.Errorf("expected %q, got %q", "value-1", got)
			}

			// Overwriting replaces the value
			ctx = tt.set(ctx, "value-2")
			if got := tt.get(ctx); got != "value-2" {
				t.Errorf("expected %q after overwrite, got %q", "value-2", got)
			}
		})
	}
}

func TestFields(t *testing.T) {
	tests := []struct {
		name       string
		ctx        func() context.Context
		wantFields []string
		wantEmpty  bool
	}{
		{
			name:      "empty context yields no fields",
			ctx:       context.Background,
			wantEmpty: true,
		},
		{
			name: "single field",
			ctx: func() context.Context {
				return WithCommandID(context.Background(), "cmd-1")
			},
			wantFields: []string{"command_id", "cmd-1"},
		},
		{
			name: "multiple fields",
			ctx: func() context.Context {
				ctx := WithCommandID(context.Background(), "cmd-1")
				ctx = WithCommandType(ctx, "apply")
				ctx = WithSnapshotID(ctx, "snap-9")
				return ctx
			},
			wantFields: []string{"command_id", "cmd-1", "command_type", "apply", "snapshot_id", "snap-9"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := Fields(tt.ctx())

			if tt.wantEmpty {
				if len(fields) != 0 {
					t.Errorf("expected no fields, got %v", fields)
				}
				return
			}

			if len(fields) != len(tt.wantFields) {
				t.Fatalf("expected %d fields, got %d: %v", len(tt.wantFields), len(fields), fields)
			}
			for i, want := range tt.wantFields {
				if fields[i] != want {
					t.Errorf("field[%d] = %v, want %v", i, fields[i], want)
				}
			}
		})
	}
}

func TestLogger_WithContext(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := New(Config{
		Level:  "info",
		Format: "json",
		Writer: buf,
	})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	ctx := WithCommandID(context.Background(), "cmd-77")
	ctxLogger := logger.WithContext(ctx)

	ctxLogger.Info("bound to command")

	if !strings.Contains(buf.String(), `"command_id":"cmd-77"`) {
		t.Errorf("expected command_id in output, got %q", buf.String())
	}
}

func TestLogger_WithContext_EmptyReturnsSame(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := New(Config{
		Level:  "info",
		Format: "json",
		Writer: buf,
	})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	if got := logger.WithContext(context.Background()); got != logger {
		t.Error("WithContext on an empty context should return the same logger")
	}
}

func TestContextLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := New(Config{
		Level:  "debug",
		Format: "json",
		Writer: buf,
	})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	ctx := WithCommandID(context.Background(), "cmd-ctx")
	cl := NewContextLogger(logger, ctx)

	cl.Info("from context logger", "extra", "field")

	out := buf.String()
	if !strings.Contains(out, `"command_id":"cmd-ctx"`) {
		t.Errorf("expected command_id in output, got %q", out)
	}
	if !strings.Contains(out, `"extra":"field"`) {
		t.Errorf("expected extra field in output, got %q", out)
	}
}

func TestContextLogger_With(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := New(Config{
		Level:  "info",
		Format: "json",
		Writer: buf,
	})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	ctx := WithCommandID(context.Background(), "cmd-with")
	cl := NewContextLogger(logger, ctx).With("component", "server")

	cl.Warn("slow command")

	out := buf.String()
	if !strings.Contains(out, `"component":"server"`) {
		t.Errorf("expected component in output, got %q", out)
	}
	if !strings.Contains(out, `"command_id":"cmd-with"`) {
		t.Errorf("expected command_id in output, got %q", out)
	}
}
