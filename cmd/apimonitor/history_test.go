package main

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/jpalmerr/apimonitor/internal/history"
	"github.com/jpalmerr/apimonitor/internal/settings"
	"github.com/jpalmerr/apimonitor/internal/status"
	"github.com/jpalmerr/apimonitor/internal/store"
)

// seedHistory writes entries into a fresh settings database in a temp dir.
func seedHistory(t *testing.T, entries ...history.Entry) string {
	t.Helper()
	dir := t.TempDir()

	st, err := settings.Open(dir)
	if err != nil {
		t.Fatalf("settings.Open() error = %v", err)
	}
	defer func() { _ = st.Close() }()

	log := history.New(history.DefaultCapacity)
	for _, e := range entries {
		log.Append(e)
	}
	count, blob := log.Serialize()
	if err := st.SaveHistory(count, blob); err != nil {
		t.Fatalf("SaveHistory() error = %v", err)
	}
	return dir
}

func sampleEntries() []history.Entry {
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return []history.Entry{
		{Time: base, OldResult: status.Success, NewResult: status.Fail, NewMessage: "db down"},
		{Time: base.Add(time.Minute), OldResult: status.Fail, OldMessage: "db down", NewResult: status.Success},
	}
}

func TestRunHistory_Table(t *testing.T) {
	dir := seedHistory(t, sampleEntries()...)

	output, err := executeCmd(t, "history", "--data-dir", dir, "--json=false")
	if err != nil {
		t.Fatalf("history error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header + 2:\n%s", len(lines), output)
	}
	if !strings.HasPrefix(lines[0], "TIME") {
		t.Errorf("header = %q", lines[0])
	}
	// newest first
	if !strings.Contains(lines[1], "Fail") || !strings.Contains(lines[1], "Success") || strings.Contains(lines[1], "db down") {
		t.Errorf("first row = %q, want Fail -> Success", lines[1])
	}
	if !strings.Contains(lines[2], "db down") {
		t.Errorf("second row = %q, want message", lines[2])
	}
}

func TestRunHistory_JSON(t *testing.T) {
	dir := seedHistory(t, sampleEntries()...)

	output, err := executeCmd(t, "history", "--data-dir", dir, "--json")
	if err != nil {
		t.Fatalf("history error = %v", err)
	}

	var view store.HistoryView
	if err := json.Unmarshal([]byte(output), &view); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, output)
	}
	if len(view.Entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(view.Entries))
	}
	if view.Entries[0].From != "Fail" || view.Entries[0].To != "Success" {
		t.Errorf("newest entry = %+v", view.Entries[0])
	}
}

func TestRunHistory_Empty(t *testing.T) {
	dir := seedHistory(t)

	output, err := executeCmd(t, "history", "--data-dir", dir, "--json=false")
	if err != nil {
		t.Fatalf("history error = %v", err)
	}
	if !strings.Contains(output, "No history recorded.") {
		t.Errorf("output = %q", output)
	}
}

func TestRunHistoryClear(t *testing.T) {
	dir := seedHistory(t, sampleEntries()...)

	output, err := executeCmd(t, "history", "clear", "--data-dir", dir)
	if err != nil {
		t.Fatalf("history clear error = %v", err)
	}
	if !strings.Contains(output, "History cleared.") {
		t.Errorf("output = %q", output)
	}

	st, err := settings.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = st.Close() }()
	if count, _, _ := st.LoadHistory(); count != 0 {
		t.Errorf("count = %d after clear, want 0", count)
	}
}

func TestRunHistory_DatabaseInUse(t *testing.T) {
	dir := seedHistory(t)

	st, err := settings.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = st.Close() }()

	_, err = executeCmd(t, "history", "--data-dir", dir, "--json=false")
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Errorf("history error = %v, want already running", err)
	}
}
