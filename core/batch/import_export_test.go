package batch

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"fintechx-ops/core/utils"
)

func TestExportCSVRoundTrip(t *testing.T) {
	e := NewEngine(nil, utils.NewLogger())
	e.RegisterProcessor(TypeCustomerImport, flagProcessor("fail"))

	items := []map[string]any{
		{"email": "a@x.com", "first_name": "A"},
		{"email": "b@x.com", "first_name": "B", "fail": true},
	}
	id, err := e.CreateJob("customers", TypeCustomerImport, items, "", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := e.StartJob(context.Background(), id); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitTerminal(t, e, id)

	var buf bytes.Buffer
	if err := e.ExportCSV(&buf, id); err != nil {
		t.Fatalf("export: %v", err)
	}
	out := buf.String()
	header := strings.SplitN(out, "\n", 2)[0]
	if header != "id,status,error_message,processed_at,data_email,data_first_name" {
		t.Fatalf("unexpected header: %s", header)
	}
	if !strings.Contains(out, "a@x.com") || !strings.Contains(out, "forced failure") {
		t.Fatalf("export missing rows:\n%s", out)
	}

	// Reimporting yields a fresh pending job; bookkeeping columns are
	// dropped and the data_ prefix stripped.
	importedID, err := e.ImportCSV(strings.NewReader(out), TypeCustomerImport, "", "", nil)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	job, ok := e.GetJob(importedID)
	if !ok {
		t.Fatalf("imported job missing")
	}
	if job.Status != StatusPending || job.TotalItems != 2 {
		t.Fatalf("imported job: %+v", job)
	}
	if !strings.HasPrefix(job.Name, "Imported Customer Import Batch - ") {
		t.Fatalf("inferred name: %s", job.Name)
	}
	if got := job.Items[0].Data["email"]; got != "a@x.com" {
		t.Fatalf("payload lost: %v", job.Items[0].Data)
	}
	if _, has := job.Items[0].Data["status"]; has {
		t.Fatalf("bookkeeping column leaked into payload")
	}
}

func TestExportImportJSON(t *testing.T) {
	e := NewEngine(nil, utils.NewLogger())
	e.RegisterProcessor(TypePayment, flagProcessor("fail"))

	id, _ := e.CreateJob("payments", TypePayment, []map[string]any{{"n": 1}, {"n": 2, "fail": true}}, "nightly run", nil)
	if err := e.StartJob(context.Background(), id); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitTerminal(t, e, id)

	var buf bytes.Buffer
	if err := e.ExportJSON(&buf, id); err != nil {
		t.Fatalf("export: %v", err)
	}

	other := NewEngine(nil, utils.NewLogger())
	restoredID, err := other.ImportJSON(&buf)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if restoredID != id {
		t.Fatalf("restored id %s, want %s", restoredID, id)
	}
	job, ok := other.GetJob(id)
	if !ok {
		t.Fatalf("restored job missing")
	}
	if job.Status != StatusPartiallyCompleted || job.SuccessfulItems != 1 || job.FailedItems != 1 {
		t.Fatalf("restored state diverged: %+v", job)
	}
	if job.Description != "nightly run" {
		t.Fatalf("description lost: %s", job.Description)
	}

	// Restoring on top of an existing job is rejected.
	buf.Reset()
	if err := e.ExportJSON(&buf, id); err != nil {
		t.Fatalf("export: %v", err)
	}
	if _, err := other.ImportJSON(&buf); err == nil {
		t.Fatalf("expected duplicate rejection")
	}
}

func TestImportCSVRejectsUnknownType(t *testing.T) {
	e := NewEngine(nil, utils.NewLogger())
	if _, err := e.ImportCSV(strings.NewReader("a,b\n1,2\n"), Type("Lottery"), "", "", nil); err == nil {
		t.Fatalf("expected error for unknown type")
	}
}
