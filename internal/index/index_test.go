package index

import (
	"os"
	"path/filepath"
	"testing"
)

func testIndex(t *testing.T) *Index {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "index_test.db")
	ix, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open(%q): %v", dbPath, err)
	}
	t.Cleanup(func() { ix.Close() })
	return ix
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile(%q): %v", path, err)
	}
}

func TestRebuild_EmptyDirsIsNotAnError(t *testing.T) {
	ix := testIndex(t)
	stateDir, memoryDir := t.TempDir(), t.TempDir()
	if err := ix.Rebuild(stateDir, memoryDir); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	hits, err := ix.QueryStdout("anything")
	if err != nil {
		t.Fatalf("QueryStdout: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected no hits, got %d", len(hits))
	}
}

func TestRebuild_IndexesSpacesStdoutAndExecutions(t *testing.T) {
	ix := testIndex(t)
	stateDir, memoryDir := t.TempDir(), t.TempDir()

	writeFile(t, filepath.Join(memoryDir, "spaces", "hi-me.jsonl"),
		`{"tick":0,"sender":"@bob","content":"hello there","timestamp":"2026-01-01T00:00:00Z"}`+"\n")
	writeFile(t, filepath.Join(memoryDir, "stdout", "alice.jsonl"),
		`{"tick":0,"entity":"@alice","content":"startup complete","timestamp":"2026-01-01T00:00:00Z"}`+"\n")
	writeFile(t, filepath.Join(stateDir, "logs", "log_0.json"),
		`{"version":"0.1.0","tick":0,"executions":[{"executor":"@alice","command":"\\echo hi ---","output":"Echo: hi","request_id":"r1"}]}`)

	if err := ix.Rebuild(stateDir, memoryDir); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	spaceHits, err := ix.QuerySpaceMessages("hello")
	if err != nil {
		t.Fatalf("QuerySpaceMessages: %v", err)
	}
	if len(spaceHits) != 1 || spaceHits[0].Space != "hi-me" {
		t.Fatalf("got %+v", spaceHits)
	}

	stdoutHits, err := ix.QueryStdout("startup")
	if err != nil {
		t.Fatalf("QueryStdout: %v", err)
	}
	if len(stdoutHits) != 1 || stdoutHits[0].Entity != "@alice" {
		t.Fatalf("got %+v", stdoutHits)
	}

	execHits, err := ix.QueryExecutions("echo")
	if err != nil {
		t.Fatalf("QueryExecutions: %v", err)
	}
	if len(execHits) != 1 || execHits[0].RequestID != "r1" {
		t.Fatalf("got %+v", execHits)
	}
}

func TestRebuild_ClearsPriorContents(t *testing.T) {
	ix := testIndex(t)
	stateDir, memoryDir := t.TempDir(), t.TempDir()

	writeFile(t, filepath.Join(memoryDir, "stdout", "alice.jsonl"),
		`{"tick":0,"entity":"@alice","content":"first run","timestamp":"2026-01-01T00:00:00Z"}`+"\n")
	if err := ix.Rebuild(stateDir, memoryDir); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	if err := os.WriteFile(filepath.Join(memoryDir, "stdout", "alice.jsonl"), nil, 0o644); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if err := ix.Rebuild(stateDir, memoryDir); err != nil {
		t.Fatalf("second Rebuild: %v", err)
	}

	hits, err := ix.QueryStdout("first run")
	if err != nil {
		t.Fatalf("QueryStdout: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected the stale entry to be gone after a rebuild, got %+v", hits)
	}
}
