// Package heartbeat implements the periodic work-item poller: it parses a
// HEARTBEAT.md checklist, diffs an external item source against persisted
// watermarks, and spawns one detached agent invocation per new or changed
// item.
package heartbeat

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/huanluu/claude-history-server/internal/apperr"
	"github.com/huanluu/claude-history-server/internal/config"
	"github.com/huanluu/claude-history-server/internal/executor"
	. "github.com/huanluu/claude-history-server/internal/logging"
	"github.com/huanluu/claude-history-server/internal/model"
	"github.com/huanluu/claude-history-server/internal/store"
)

// changedDateField is the Azure-DevOps-style field key an item source is
// expected to populate on every returned item.
const changedDateField = "System.ChangedDate"

// WorkItem is one entry returned by an item source's stdout JSON array.
type WorkItem struct {
	ID     string            `json:"id"`
	Fields map[string]string `json:"fields"`
}

func (w WorkItem) changedDate() string {
	return w.Fields[changedDateField]
}

// RunResult is the shape returned by runHeartbeat and POST /heartbeat.
type RunResult struct {
	TasksProcessed  int      `json:"tasksProcessed"`
	SessionsCreated int      `json:"sessionsCreated"`
	SessionIDs      []string `json:"sessionIds"`
	Errors          []string `json:"errors"`
}

// Status is the shape returned by GET /heartbeat/status.
type Status struct {
	Enabled          bool                    `json:"enabled"`
	IntervalMs       int                     `json:"intervalMs"`
	WorkingDirectory string                  `json:"workingDirectory"`
	Watermarks       []model.HeartbeatState  `json:"watermarks"`
}

// checkForChangesFunc enumerates work items for one checklist task. The
// default implementation treats the task's own description as a shell
// command to run, matching the "invokes an external command" wording
// literally: each enabled checklist line names the command that lists its
// own work items.
type checkForChangesFunc func(ctx context.Context, task Task) ([]WorkItem, error)

// spawnFunc starts one detached agent run and returns its assigned session
// id, read from the first init line of its stream-json output.
type spawnFunc func(ctx context.Context, workingDir, prompt string) (string, error)

// Service owns the checklist parser, the item source, and the scheduler
// timer.
type Service struct {
	st  *store.Store
	cfg *config.Service

	checkForChanges checkForChangesFunc
	spawn           spawnFunc

	mu      sync.Mutex
	running bool
	timer   *time.Timer
	stopCh  chan struct{}
}

// New builds a Service wired to real subprocess-backed item checking and
// agent spawning.
func New(st *store.Store, cfg *config.Service) *Service {
	return &Service{
		st:              st,
		cfg:             cfg,
		checkForChanges: runItemSourceCommand,
		spawn:           spawnAgent,
	}
}

// RunHeartbeat executes one poll cycle. force bypasses the enabled check,
// matching /heartbeat's semantics of running on demand regardless of
// config.
func (s *Service) RunHeartbeat(force bool) RunResult {
	result := RunResult{SessionIDs: []string{}, Errors: []string{}}

	hb := s.cfg.Heartbeat()
	if !hb.Enabled && !force {
		return result
	}

	tasks, err := parseChecklist(hb.WorkingDirectory)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("parse checklist: %v", err))
		return result
	}

	ctx := context.Background()
	processed := 0

	for _, task := range tasks {
		if !task.Enabled {
			continue
		}
		result.TasksProcessed++

		items, err := s.checkForChanges(ctx, task)
		if err != nil {
			L_warn("heartbeat: item source failed", "section", task.Section, "error", err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", task.Description, err))
			continue
		}

		for _, item := range items {
			if hb.MaxItems > 0 && processed >= hb.MaxItems {
				break
			}

			key := "workitem:" + item.ID
			state, err := s.st.GetState(key)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("load watermark %s: %v", key, err))
				continue
			}
			changedDate := item.changedDate()
			if state.LastChanged == changedDate {
				continue // unchanged, §8 invariant
			}

			processed++
			sessionID, err := s.spawn(ctx, hb.WorkingDirectory, heartbeatPrompt(task, item))
			if err != nil {
				L_warn("heartbeat: spawn failed", "workItem", item.ID, "error", err)
				result.Errors = append(result.Errors, fmt.Sprintf("spawn for %s: %v", item.ID, err))
				continue
			}

			result.SessionsCreated++
			result.SessionIDs = append(result.SessionIDs, sessionID)

			// Watermark is persisted after the spawn; a persistence failure
			// here does not unwind the spawn that already happened.
			now := time.Now().UnixMilli()
			if err := s.st.UpsertState(model.HeartbeatState{Key: key, LastChanged: changedDate, LastProcessed: now}); err != nil {
				L_warn("heartbeat: failed to persist watermark", "key", key, "error", err)
			}
		}
	}

	return result
}

// Status reports the current configuration and every persisted watermark.
func (s *Service) Status() (Status, error) {
	hb := s.cfg.Heartbeat()
	watermarks, err := s.st.GetAllState()
	if err != nil {
		return Status{}, err
	}
	if watermarks == nil {
		watermarks = []model.HeartbeatState{}
	}
	return Status{
		Enabled:          hb.Enabled,
		IntervalMs:       hb.IntervalMs,
		WorkingDirectory: hb.WorkingDirectory,
		Watermarks:       watermarks,
	}, nil
}

// StartScheduler registers a timer at the configured interval; each tick
// calls RunHeartbeat(false). A no-op if already running.
func (s *Service) StartScheduler() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.timer = time.NewTimer(s.interval())
	s.mu.Unlock()

	go s.loop()
	L_info("heartbeat: scheduler started", "intervalMs", s.cfg.Heartbeat().IntervalMs)
}

// StopScheduler cancels the timer. Idempotent.
func (s *Service) StopScheduler() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()
	L_info("heartbeat: scheduler stopped")
}

// Reschedule re-reads the configured interval and resets the pending timer,
// for config hot-reload of the heartbeat section.
func (s *Service) Reschedule() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.timer == nil {
		return
	}
	s.timer.Reset(s.interval())
}

func (s *Service) interval() time.Duration {
	ms := s.cfg.Heartbeat().IntervalMs
	if ms <= 0 {
		ms = 300000
	}
	return time.Duration(ms) * time.Millisecond
}

func (s *Service) loop() {
	for {
		s.mu.Lock()
		timer := s.timer
		stopCh := s.stopCh
		s.mu.Unlock()
		if timer == nil {
			return
		}

		select {
		case <-stopCh:
			return
		case <-timer.C:
			s.RunHeartbeat(false)
			s.mu.Lock()
			if s.running && s.timer != nil {
				s.timer.Reset(s.interval())
			}
			s.mu.Unlock()
		}
	}
}

// heartbeatPrompt embeds the markers that later tag the resulting session
// isAutomatic on reindex.
func heartbeatPrompt(task Task, item WorkItem) string {
	return fmt.Sprintf("[Heartbeat] <!-- HEARTBEAT_SESSION -->\nSection: %s\nTask: %s\nWork item: %s (changed %s)",
		task.Section, task.Description, item.ID, item.changedDate())
}

// runItemSourceCommand runs task.Description as a shell command and parses
// its stdout as a JSON array of WorkItem.
func runItemSourceCommand(ctx context.Context, task Task) ([]WorkItem, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", task.Description)
	out, err := cmd.Output()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "item source command failed", err)
	}

	var items []WorkItem
	if err := json.Unmarshal(out, &items); err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "item source returned invalid JSON", err)
	}
	return items, nil
}

// initLine is the shape of the stream-json system/init record the agent
// binary emits as its first line.
type initLine struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	SessionID string `json:"session_id"`
}

// spawnAgent starts the agent binary via Executor, waits only for its init
// line, then drains the rest of the run in the background so the caller
// never blocks on completion.
func spawnAgent(ctx context.Context, workingDir, prompt string) (string, error) {
	ex := executor.New(uuid.NewString())
	if err := ex.Start(ctx, executor.StartOpts{Prompt: prompt, WorkingDir: workingDir}); err != nil {
		return "", err
	}

	events := ex.Events()
	for ev := range events {
		switch ev.Type {
		case executor.EventMessage:
			var line initLine
			if err := json.Unmarshal(ev.Message, &line); err == nil && line.Type == "system" && line.Subtype == "init" && line.SessionID != "" {
				go drain(events)
				return line.SessionID, nil
			}
		case executor.EventComplete:
			return "", apperr.New(apperr.KindSubprocess, "agent exited before producing an init line")
		}
	}
	return "", apperr.New(apperr.KindSubprocess, "agent stream closed before producing an init line")
}

func drain(events <-chan executor.Event) {
	for range events {
	}
}
