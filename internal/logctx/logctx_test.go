package logctx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func logLine(t *testing.T, ctx context.Context) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	log := slog.New(Handler{Handler: slog.NewJSONHandler(&buf, nil)})

	log.InfoContext(ctx, "cli.command_handled")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	return record
}

func TestHandlerAddsFormAndStepGroups(t *testing.T) {
	ctx := WithFormData(context.Background(), &FormData{FormID: "signup", Source: "signup.html"})
	ctx = WithStepData(ctx, &StepData{StepID: "branchB", Index: 2})

	record := logLine(t, ctx)

	form, ok := record["form"].(map[string]any)
	if !ok {
		t.Fatalf("form group missing: %v", record)
	}
	if form["id"] != "signup" || form["source"] != "signup.html" {
		t.Fatalf("form group = %v", form)
	}

	step, ok := record["step"].(map[string]any)
	if !ok {
		t.Fatalf("step group missing: %v", record)
	}
	if step["id"] != "branchB" || step["index"] != float64(2) {
		t.Fatalf("step group = %v", step)
	}
}

func TestHandlerPassesThroughBareContext(t *testing.T) {
	record := logLine(t, context.Background())

	if _, ok := record["form"]; ok {
		t.Fatal("form group should not appear without form data")
	}
	if _, ok := record["step"]; ok {
		t.Fatal("step group should not appear without step data")
	}
	if record["msg"] != "cli.command_handled" {
		t.Fatalf("record = %v", record)
	}
}
