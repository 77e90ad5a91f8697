package world

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mutantcacti/o/internal/grammar"
)

// logVersion tags every persisted tick log and is checked on load;
// unknown versions are refused rather than guessed at.
const logVersion = "0.1.0"

// Store persists World's effects to the on-disk layout: per-tick execution logs under stateDir, and per-space /
// per-entity JSON(L) snapshots under memoryDir. It holds no reference
// to a World — callers decide what to persist and when, so that the
// scheduler can batch writes at well-defined suspension points.
type Store struct {
	stateDir  string
	memoryDir string
	log       *slog.Logger

	mu sync.Mutex
}

// NewStore creates the directory structure under stateDir/memoryDir and
// returns a Store ready to use.
func NewStore(stateDir, memoryDir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{stateDir: stateDir, memoryDir: memoryDir, log: logger}
	dirs := []string{
		filepath.Join(stateDir, "logs"),
		filepath.Join(memoryDir, "spaces"),
		filepath.Join(memoryDir, "stdout"),
		filepath.Join(memoryDir, "listen"),
		filepath.Join(memoryDir, "incoming"),
		filepath.Join(memoryDir, "read"),
		filepath.Join(memoryDir, "wake"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("world: creating %s: %w", d, err)
		}
	}
	return s, nil
}

// tickLogEntry mirrors the on-disk shape of one execution inside a
// log_<tick>.json file.
type tickLogEntry struct {
	Executor  string `json:"executor"`
	Command   string `json:"command"`
	Output    string `json:"output"`
	RequestID string `json:"request_id,omitempty"`
}

type tickLogFile struct {
	Version    string         `json:"version"`
	Tick       int            `json:"tick"`
	Executions []tickLogEntry `json:"executions"`
}

// PersistTick writes state/logs/log_<tick>.json. A non-empty tick must
// be recorded durably before the clock advances;
// a write failure here is a FatalError that aborts the run.
func (s *Store) PersistTick(tick int, records []ExecutionRecord) error {
	if len(records) == 0 {
		return nil
	}
	entries := make([]tickLogEntry, len(records))
	for i, r := range records {
		entries[i] = tickLogEntry{
			Executor:  string(r.Executor),
			Command:   r.Command,
			Output:    r.Output,
			RequestID: r.RequestID,
		}
	}
	data, err := json.MarshalIndent(tickLogFile{Version: logVersion, Tick: tick, Executions: entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("world: marshaling tick %d log: %w", tick, err)
	}
	path := filepath.Join(s.stateDir, "logs", fmt.Sprintf("log_%d.json", tick))
	return writeFileAtomic(path, data)
}

type spaceLogLine struct {
	Tick      int    `json:"tick"`
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// AppendSpaceMessage appends one line to memory/spaces/<space-id>.jsonl.
func (s *Store) AppendSpaceMessage(id SpaceID, msg Message) error {
	line := spaceLogLine{
		Tick:      msg.Tick,
		Sender:    string(msg.Sender),
		Content:   msg.Content,
		Timestamp: msg.Timestamp.Format(time.RFC3339),
	}
	path := filepath.Join(s.memoryDir, "spaces", string(id)+".jsonl")
	return s.appendJSONLine(path, line)
}

type stdoutLogLine struct {
	Tick      int    `json:"tick"`
	Entity    string `json:"entity"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// StdoutEntry is one record in an entity's stdout log.
type StdoutEntry struct {
	Tick      int
	Entity    EntityID
	Content   string
	Timestamp time.Time
}

// AppendStdout appends one line to memory/stdout/<entity-without-@>.jsonl.
func (s *Store) AppendStdout(entry StdoutEntry) error {
	line := stdoutLogLine{
		Tick:      entry.Tick,
		Entity:    string(entry.Entity),
		Content:   entry.Content,
		Timestamp: entry.Timestamp.Format(time.RFC3339),
	}
	path := filepath.Join(s.memoryDir, "stdout", entry.Entity.Name()+".jsonl")
	return s.appendJSONLine(path, line)
}

// ReadStdout reads back an entity's full stdout log, in append order.
func (s *Store) ReadStdout(entity EntityID) ([]StdoutEntry, error) {
	path := filepath.Join(s.memoryDir, "stdout", entity.Name()+".jsonl")
	lines, err := readJSONLines(path)
	if err != nil {
		return nil, err
	}
	out := make([]StdoutEntry, 0, len(lines))
	for _, raw := range lines {
		var line stdoutLogLine
		if err := json.Unmarshal(raw, &line); err != nil {
			continue // tolerate unknown/corrupt lines rather than failing the whole read
		}
		ts, _ := time.Parse(time.RFC3339, line.Timestamp)
		out = append(out, StdoutEntry{
			Tick:      line.Tick,
			Entity:    EntityID(line.Entity),
			Content:   line.Content,
			Timestamp: ts,
		})
	}
	return out, nil
}

type listenSnapshot struct {
	Entity string   `json:"entity"`
	Spaces []string `json:"spaces"`
}

// WriteListenSnapshot writes memory/listen/<entity>.json.
func (s *Store) WriteListenSnapshot(entity EntityID, spaces []string) error {
	data, err := json.MarshalIndent(listenSnapshot{Entity: string(entity), Spaces: spaces}, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(s.memoryDir, "listen", string(entity)+".json"), data)
}

// WriteIncomingSnapshot writes memory/incoming/<entity>.json.
func (s *Store) WriteIncomingSnapshot(entity EntityID, counts map[SpaceID]int) error {
	return s.writeCountSnapshot(filepath.Join(s.memoryDir, "incoming", string(entity)+".json"), counts)
}

// WriteReadSnapshot writes memory/read/<entity>.json.
func (s *Store) WriteReadSnapshot(entity EntityID, counts map[SpaceID]int) error {
	return s.writeCountSnapshot(filepath.Join(s.memoryDir, "read", string(entity)+".json"), counts)
}

func (s *Store) writeCountSnapshot(path string, counts map[SpaceID]int) error {
	m := make(map[string]int, len(counts))
	for id, n := range counts {
		m[string(id)] = n
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

type wakeSnapshot struct {
	Entity     string          `json:"entity"`
	Condition  json.RawMessage `json:"condition"`
	SelfPrompt *string         `json:"self_prompt"`
}

// WriteWakeSnapshot writes memory/wake/<entity>.json.
func (s *Store) WriteWakeSnapshot(entity EntityID, entry *WakeEntry) error {
	condData, err := grammar.EncodeCondition(entry.Condition)
	if err != nil {
		return fmt.Errorf("world: encoding wake condition for %s: %w", entity, err)
	}
	var selfPrompt *string
	if entry.SelfPrompt != "" {
		selfPrompt = &entry.SelfPrompt
	}
	snap := wakeSnapshot{Entity: string(entity), Condition: condData, SelfPrompt: selfPrompt}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(s.memoryDir, "wake", string(entity)+".json"), data)
}

// ClearWakeSnapshot removes an entity's wake file, reflecting one-shot
// consumption on fire.
func (s *Store) ClearWakeSnapshot(entity EntityID) error {
	err := os.Remove(filepath.Join(s.memoryDir, "wake", string(entity)+".json"))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// LoadWakeSnapshot reads an entity's wake file back. A missing file, or
// one that fails to decode, is reported as ok=false — a malformed
// persisted wake record is treated as an absent registration, never as
// an always-true one.
func (s *Store) LoadWakeSnapshot(entity EntityID) (entry *WakeEntry, ok bool) {
	path := filepath.Join(s.memoryDir, "wake", string(entity)+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var snap wakeSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.log.Warn("world: malformed wake snapshot, treating as absent", "entity", entity, "error", err)
		return nil, false
	}
	cond, err := grammar.DecodeCondition(snap.Condition)
	if err != nil {
		s.log.Warn("world: malformed wake condition, treating as absent", "entity", entity, "error", err)
		return nil, false
	}
	selfPrompt := ""
	if snap.SelfPrompt != nil {
		selfPrompt = *snap.SelfPrompt
	}
	return &WakeEntry{Condition: cond, SelfPrompt: selfPrompt}, true
}

// RestoreWorld replays the persisted memory/ snapshots and state/ tick
// logs into w, so a restarted process resumes with the same space
// logs, subscriptions, read cursors, wake registrations, and clock it
// shut down with. Entities are re-registered from the per-entity
// snapshot files; named-space membership has no snapshot file and
// is not recovered. Malformed individual
// records are skipped, and a malformed wake record is an absent
// registration, never an always-firing one.
func (s *Store) RestoreWorld(w *World) error {
	if err := s.restoreSpaceLogs(w); err != nil {
		return err
	}
	if err := s.restoreSubscriptions(w); err != nil {
		return err
	}
	if err := s.restoreCursors(w); err != nil {
		return err
	}
	if err := s.restoreWakes(w); err != nil {
		return err
	}
	return s.restoreClock(w)
}

func (s *Store) restoreSpaceLogs(w *World) error {
	dir := filepath.Join(s.memoryDir, "spaces")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		id := SpaceID(strings.TrimSuffix(e.Name(), ".jsonl"))
		lines, err := readJSONLines(filepath.Join(dir, e.Name()))
		if err != nil {
			return err
		}
		msgs := make([]Message, 0, len(lines))
		for _, raw := range lines {
			var line spaceLogLine
			if err := json.Unmarshal(raw, &line); err != nil {
				continue
			}
			ts, _ := time.Parse(time.RFC3339, line.Timestamp)
			msgs = append(msgs, Message{Sender: EntityID(line.Sender), Content: line.Content, Tick: line.Tick, Timestamp: ts})
		}
		w.RestoreSpaceLog(id, msgs)
	}
	return nil
}

func (s *Store) restoreSubscriptions(w *World) error {
	dir := filepath.Join(s.memoryDir, "listen")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return err
		}
		var snap listenSnapshot
		if err := json.Unmarshal(data, &snap); err != nil || snap.Entity == "" {
			s.log.Warn("world: skipping malformed listen snapshot", "file", e.Name(), "error", err)
			continue
		}
		entity := EntityID(snap.Entity)
		respawn(w, entity)
		for _, target := range snap.Spaces {
			w.Subscribe(entity, target)
		}
	}
	return nil
}

// restoreCursors merges the read and incoming snapshots (both track
// the same per-space cursor in this implementation) taking the higher
// count, clamped to the restored log's length so a cursor never
// points past its log.
func (s *Store) restoreCursors(w *World) error {
	for _, sub := range []string{"read", "incoming"} {
		dir := filepath.Join(s.memoryDir, sub)
		entries, err := os.ReadDir(dir)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
				continue
			}
			data, err := os.ReadFile(filepath.Join(dir, e.Name()))
			if err != nil {
				return err
			}
			var counts map[string]int
			if err := json.Unmarshal(data, &counts); err != nil {
				s.log.Warn("world: skipping malformed cursor snapshot", "file", e.Name(), "error", err)
				continue
			}
			entity := EntityID(strings.TrimSuffix(e.Name(), ".json"))
			respawn(w, entity)
			for id, n := range counts {
				space := SpaceID(id)
				if max := w.SpaceLogLen(space); n > max {
					n = max
				}
				if n > w.ReadCursor(entity, space) {
					w.SetReadCursor(entity, space, n)
				}
			}
		}
	}
	return nil
}

func (s *Store) restoreWakes(w *World) error {
	dir := filepath.Join(s.memoryDir, "wake")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		entity := EntityID(strings.TrimSuffix(e.Name(), ".json"))
		entry, ok := s.LoadWakeSnapshot(entity)
		if !ok {
			continue
		}
		respawn(w, entity)
		w.SetWake(entity, entry.Condition, entry.SelfPrompt)
	}
	return nil
}

// restoreClock resumes the logical clock past the highest persisted
// tick log, so a restarted run never writes a log_<tick>.json it would
// clobber.
func (s *Store) restoreClock(w *World) error {
	dir := filepath.Join(s.stateDir, "logs")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	next := 0
	for _, e := range entries {
		var tick int
		if _, err := fmt.Sscanf(e.Name(), "log_%d.json", &tick); err != nil {
			continue
		}
		if tick+1 > next {
			next = tick + 1
		}
	}
	if next > 0 {
		w.SetClock(next)
	}
	return nil
}

// respawn re-registers an entity recovered from a persisted snapshot,
// skipping ones already present.
func respawn(w *World, e EntityID) {
	if !w.HasEntity(e) {
		w.Spawn(e)
	}
}

func (s *Store) appendJSONLine(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(data, '\n'))
	return err
}

// writeFileAtomic writes data to path via a temp file + rename, so a
// crash mid-write never leaves a half-written snapshot for the next
// startup to choke on.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

func readJSONLines(path string) ([][]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			if i > start {
				lines = append(lines, data[start:i])
			}
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines, nil
}
