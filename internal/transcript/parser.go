// Package transcript parses Claude Code session transcript files (JSONL,
// one record per line) into the normalized model.ParsedSession shape.
package transcript

import (
	"bufio"
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/huanluu/claude-history-server/internal/apperr"
	. "github.com/huanluu/claude-history-server/internal/logging"
	"github.com/huanluu/claude-history-server/internal/model"
)

const maxLineSize = 10 * 1024 * 1024 // tool results can be huge

const previewMaxLen = 200

// rawEntry is the on-disk shape of one transcript line. Content may arrive
// as a plain string or as an array of content blocks (only "text" blocks
// are captured).
type rawEntry struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	CWD       string          `json:"cwd"`
	Timestamp string          `json:"timestamp"`
	UUID      string          `json:"uuid"`
	IsMeta    bool            `json:"isMeta"`
	Message   json.RawMessage `json:"message"`
}

type rawMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type rawContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Parse reads path line by line and returns the normalized session. Blank
// and unparseable lines are skipped rather than treated as fatal, since a
// transcript may be actively being appended to by a running session.
func Parse(path string) (model.ParsedSession, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.ParsedSession{}, apperr.Wrap(apperr.KindIO, "open transcript", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	var (
		parsed          model.ParsedSession
		havePreview     bool
		haveFirstMsg    bool
		firstMsgContent string
		haveEarliest    bool
		earliest        int64
		latest          int64
		lineNum         int
	)

	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}

		var entry rawEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			L_debug("transcript: skipping unparseable line", "path", path, "line", lineNum, "error", err)
			continue
		}

		if parsed.SessionID == "" && entry.SessionID != "" {
			parsed.SessionID = entry.SessionID
		}
		if parsed.Project == "" && entry.CWD != "" {
			parsed.Project = entry.CWD
		}

		if entry.Type != "user" && entry.Type != "assistant" {
			continue
		}
		if entry.IsMeta {
			continue
		}
		if len(entry.Message) == 0 {
			continue
		}

		var msg rawMessage
		if err := json.Unmarshal(entry.Message, &msg); err != nil {
			L_debug("transcript: skipping entry with unparseable message", "path", path, "line", lineNum, "error", err)
			continue
		}

		content := extractContent(msg.Content)
		if strings.TrimSpace(content) == "" {
			continue
		}

		ts, hasTime := parseTimestamp(entry.Timestamp)
		if hasTime {
			if !haveEarliest || ts < earliest {
				earliest = ts
				haveEarliest = true
			}
			if ts > latest {
				latest = ts
			}
		}

		role := entry.Type
		parsed.Messages = append(parsed.Messages, model.Message{
			UUID:      nonEmpty(entry.UUID, role, lineNum),
			SessionID: parsed.SessionID,
			Role:      role,
			Content:   content,
			Timestamp: ts,
			HasTime:   hasTime,
		})

		if !havePreview && role == model.RoleUser && !isCommandMessage(content) {
			parsed.Preview = truncatePreview(content)
			havePreview = true
		}

		if !haveFirstMsg {
			firstMsgContent = content
			haveFirstMsg = true
		}
	}
	if err := scanner.Err(); err != nil {
		return model.ParsedSession{}, apperr.Wrap(apperr.KindIO, "scan transcript", err)
	}

	parsed.StartedAt = earliest
	parsed.LastActivityAt = latest
	if parsed.LastActivityAt == 0 {
		parsed.LastActivityAt = parsed.StartedAt
	}
	parsed.IsAutomatic = isAutomaticMarker(parsed.Preview) || isAutomaticMarker(firstMsgContent)

	return parsed, nil
}

// extractContent handles both string content and content-block-array content.
func extractContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}

	var blocks []rawContentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var sb strings.Builder
		for _, b := range blocks {
			if b.Type != "text" {
				continue
			}
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(b.Text)
		}
		return sb.String()
	}

	return ""
}

// isCommandMessage reports whether content is a slash-command invocation
// rather than user-authored prose, per the transcript's own markers.
func isCommandMessage(content string) bool {
	trimmed := strings.TrimSpace(content)
	return strings.HasPrefix(trimmed, "<command-name>") || strings.HasPrefix(trimmed, "<local-command")
}

// isAutomaticMarker reports whether content marks the session as having
// been driven by the heartbeat scheduler rather than a human.
func isAutomaticMarker(content string) bool {
	return strings.HasPrefix(strings.TrimSpace(content), "[Heartbeat]") ||
		strings.Contains(content, "<!-- HEARTBEAT_SESSION -->")
}

func truncatePreview(content string) string {
	trimmed := strings.TrimSpace(content)
	if len(trimmed) <= previewMaxLen {
		return trimmed
	}
	return trimmed[:previewMaxLen]
}

// parseTimestamp accepts RFC3339 (the format Claude Code writes) and
// reports false if the field was absent or unparseable.
func parseTimestamp(raw string) (int64, bool) {
	if raw == "" {
		return 0, false
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return 0, false
		}
	}
	return t.UnixMilli(), true
}

func nonEmpty(uuid, role string, line int) string {
	if uuid != "" {
		return uuid
	}
	return role + ":" + strconv.Itoa(line)
}
