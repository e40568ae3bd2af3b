package main

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"evocore/internal/core"
	"evocore/pkg/domain"
)

func testEnv(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("EVOCORE_STORAGE_DRIVER", "sqlite")
	t.Setenv("EVOCORE_SQLITE_PATH", filepath.Join(dir, "campaign.db"))
	t.Setenv("EVOCORE_BLOB_DRIVER", "fs")
	t.Setenv("EVOCORE_BLOB_FS_ROOT", filepath.Join(dir, "archive"))
}

func invoke(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	if err := run(args, &out); err != nil {
		t.Fatalf("run %v: %v", args, err)
	}
	return out.String()
}

func TestCampaignLifecycleThroughCLI(t *testing.T) {
	testEnv(t)

	out := invoke(t, "root", "-sequence", "MKVL")
	rootID := domain.SequenceID("MKVL")
	if !strings.Contains(out, rootID) {
		t.Fatalf("root output %q missing id %s", out, rootID)
	}

	out = invoke(t, "round", "-index", "0", "-expect", "fitness")
	if !strings.Contains(out, "ready") {
		t.Fatalf("round output = %q", out)
	}

	out = invoke(t, "generate", "-round", "0", "-parent", rootID, "-positions", "1", "-alphabet", "AMC")
	if !strings.Contains(out, "2 candidates") {
		t.Fatalf("generate output = %q", out)
	}

	out = invoke(t, "select", "-round", "0")
	if !strings.Contains(out, "selected 2") {
		t.Fatalf("select output = %q", out)
	}

	// Build the measurement sheet from the exported experiment library.
	fasta := invoke(t, "export", "-round", "0")
	records, err := core.ReadFASTA(strings.NewReader(fasta))
	if err != nil {
		t.Fatalf("parse export: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("exported %d records, want 2", len(records))
	}

	sheet := filepath.Join(t.TempDir(), "labels.csv")
	f, err := os.Create(sheet)
	if err != nil {
		t.Fatalf("create sheet: %v", err)
	}
	w := csv.NewWriter(f)
	_ = w.Write([]string{"variant_id", "name", "value"})
	for i, rec := range records {
		_ = w.Write([]string{rec.ID, "fitness", strconv.Itoa(i + 1)})
	}
	w.Flush()
	if err := f.Close(); err != nil {
		t.Fatalf("close sheet: %v", err)
	}

	out = invoke(t, "labels", "-round", "0", "-file", sheet)
	if !strings.Contains(out, "2/2 labeled") {
		t.Fatalf("labels output = %q", out)
	}

	out = invoke(t, "commit", "-round", "0")
	if !strings.Contains(out, "round 0 committed") {
		t.Fatalf("commit output = %q", out)
	}

	out = invoke(t, "archive", "-round", "0")
	for _, key := range []string{"rounds/0/library.fasta", "rounds/0/labels.csv", "rounds/0/round.json"} {
		if !strings.Contains(out, key) {
			t.Fatalf("archive output %q missing %s", out, key)
		}
	}

	out = invoke(t, "stats")
	if !strings.Contains(out, "variants: 3") {
		t.Fatalf("stats output = %q", out)
	}
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	testEnv(t)
	var out bytes.Buffer
	if err := run([]string{"bogus"}, &out); err == nil {
		t.Fatalf("expected unknown command error")
	}
	if err := run(nil, &out); err == nil {
		t.Fatalf("expected missing command error")
	}
}

func TestParsePositions(t *testing.T) {
	got, err := parsePositions("1, 5,12")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got) != 3 || got[0] != 1 || got[1] != 5 || got[2] != 12 {
		t.Fatalf("positions = %v", got)
	}
	if _, err := parsePositions(""); err == nil {
		t.Fatalf("expected empty positions to fail")
	}
	if _, err := parsePositions("1,x"); err == nil {
		t.Fatalf("expected invalid position to fail")
	}
}
