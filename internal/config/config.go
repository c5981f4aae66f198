// Package config owns the single on-disk JSON configuration document:
// heartbeat scheduling, security (allowlist, API key hash), and logging
// knobs, with atomic validated read-modify-write updates.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"dario.cat/mergo"

	"github.com/huanluu/claude-history-server/internal/apperr"
	. "github.com/huanluu/claude-history-server/internal/logging"
)

// HeartbeatConfig is the editable `heartbeat` section.
type HeartbeatConfig struct {
	Enabled          bool   `json:"enabled"`
	IntervalMs       int    `json:"intervalMs"`
	WorkingDirectory string `json:"workingDirectory"`
	MaxItems         int    `json:"maxItems"`
}

// SecurityConfig is the editable `security` section. ApiKeyHash and
// ApiKeyCreatedAt live here too but are never returned by the
// editable-section accessors.
type SecurityConfig struct {
	AllowedWorkingDirs []string `json:"allowedWorkingDirs"`
	ApiKeyHash         string   `json:"apiKeyHash,omitempty"`
	ApiKeyCreatedAt    string   `json:"apiKeyCreatedAt,omitempty"`
}

// LoggingConfig is the editable `logging` section.
type LoggingConfig struct {
	RequestLogLevel string `json:"requestLogLevel"`
}

// Document is the full on-disk shape. Extras carries any top-level key this
// struct doesn't model, so a config file written by a future version (or
// hand-edited with an extra field) round-trips that field unchanged rather
// than losing it on the next persist.
type Document struct {
	Heartbeat HeartbeatConfig            `json:"heartbeat"`
	Security  SecurityConfig             `json:"security"`
	Logging   LoggingConfig              `json:"logging"`
	Extras    map[string]json.RawMessage `json:"-"`
}

// documentAlias has Document's exact field set minus the custom
// MarshalJSON/UnmarshalJSON, so they can delegate to encoding/json's default
// struct (de)serialization for the fields they do know about.
type documentAlias Document

// MarshalJSON emits the known sections plus every untouched key from Extras.
func (d Document) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(documentAlias(d))
	if err != nil {
		return nil, err
	}
	if len(d.Extras) == 0 {
		return base, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range d.Extras {
		if _, known := merged[k]; !known {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// UnmarshalJSON decodes the known sections normally and stashes every other
// top-level key in Extras, verbatim, so it survives the next persist.
func (d *Document) UnmarshalJSON(data []byte) error {
	var known documentAlias
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	delete(raw, "heartbeat")
	delete(raw, "security")
	delete(raw, "logging")

	*d = Document(known)
	if len(raw) > 0 {
		d.Extras = raw
	}
	return nil
}

func defaultDocument() Document {
	return Document{
		Heartbeat: HeartbeatConfig{Enabled: false, IntervalMs: 300000, MaxItems: 0},
		Security:  SecurityConfig{AllowedWorkingDirs: []string{}},
		Logging:   LoggingConfig{RequestLogLevel: "errors-only"},
	}
}

// Section names the closed set of editable top-level keys.
type Section string

const (
	SectionHeartbeat Section = "heartbeat"
	SectionSecurity  Section = "security"
	SectionLogging   Section = "logging"
)

// OnChanged is invoked after a successful updateSection, with the name of
// the section that changed, so downstream services can rebind knobs.
type OnChanged func(section Section)

// Service owns the config document and serializes all reads/writes of it.
type Service struct {
	path string

	mu        sync.RWMutex
	doc       Document
	onChanged OnChanged
}

// Load reads path, merging onto defaults for any missing fields. A missing
// file is not an error: a fresh default document is written in its place.
func Load(path string) (*Service, error) {
	s := &Service{path: path, doc: defaultDocument()}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, apperr.Wrap(apperr.KindIO, "read config file", err)
		}
		if err := s.persist(); err != nil {
			return nil, err
		}
		return s, nil
	}

	var onDisk Document
	if err := json.Unmarshal(data, &onDisk); err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidInput, "parse config file", err)
	}

	merged := defaultDocument()
	if err := mergo.Merge(&merged, onDisk, mergo.WithOverride); err != nil {
		return nil, apperr.Wrap(apperr.KindIO, "merge config onto defaults", err)
	}
	s.doc = merged

	return s, nil
}

// SetOnChanged installs the composition root's rebind callback.
func (s *Service) SetOnChanged(cb OnChanged) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChanged = cb
}

// GetEditableSectionNames returns the closed set of sections that may be
// read or updated through this service.
func (s *Service) GetEditableSectionNames() []Section {
	return []Section{SectionHeartbeat, SectionSecurity, SectionLogging}
}

// GetAllEditableSections returns every editable section's contents, with
// apiKeyHash and apiKeyCreatedAt stripped from the security section.
func (s *Service) GetAllEditableSections() map[Section]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sec := s.doc.Security
	sec.ApiKeyHash = ""
	sec.ApiKeyCreatedAt = ""
	return map[Section]any{
		SectionHeartbeat: s.doc.Heartbeat,
		SectionSecurity:  sec,
		SectionLogging:   s.doc.Logging,
	}
}

// GetSection returns one section's contents, or ok=false for an unknown name.
func (s *Service) GetSection(name Section) (any, bool) {
	sections := s.GetAllEditableSections()
	v, ok := sections[name]
	return v, ok
}

// Heartbeat returns a copy of the current heartbeat section.
func (s *Service) Heartbeat() HeartbeatConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Heartbeat
}

// AllowedWorkingDirs returns a copy of the current security allowlist.
func (s *Service) AllowedWorkingDirs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.doc.Security.AllowedWorkingDirs...)
}

// ApiKeyHash returns the stored API key hash, or "" if none is configured.
func (s *Service) ApiKeyHash() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Security.ApiKeyHash
}

// SetApiKeyHash stores a freshly generated key hash and its creation
// timestamp (used by the one-shot keygen tool), bypassing the
// patch-validation path since neither is a user-editable field.
func (s *Service) SetApiKeyHash(hash string) error {
	s.mu.Lock()
	s.doc.Security.ApiKeyHash = hash
	s.doc.Security.ApiKeyCreatedAt = time.Now().UTC().Format(time.RFC3339)
	err := s.persistLocked()
	s.mu.Unlock()
	return err
}

// RequestLogLevel returns the current logging.requestLogLevel value.
func (s *Service) RequestLogLevel() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Logging.RequestLogLevel
}

// UpdateSection validates patch against name's schema and, on success,
// performs an atomic read-modify-write, preserving every untouched
// top-level key including apiKeyHash. Returns a human-readable error for
// unknown fields or type/range violations rather than panicking.
func (s *Service) UpdateSection(name Section, patch map[string]any) error {
	cb, err := s.updateSectionLocked(name, patch)
	if err != nil {
		return err
	}
	if cb != nil {
		cb(name)
	}
	return nil
}

func (s *Service) updateSectionLocked(name Section, patch map[string]any) (OnChanged, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch name {
	case SectionHeartbeat:
		next, err := applyHeartbeatPatch(s.doc.Heartbeat, patch)
		if err != nil {
			return nil, err
		}
		s.doc.Heartbeat = next
	case SectionSecurity:
		next, err := applySecurityPatch(s.doc.Security, patch)
		if err != nil {
			return nil, err
		}
		s.doc.Security = next
	case SectionLogging:
		next, err := applyLoggingPatch(s.doc.Logging, patch)
		if err != nil {
			return nil, err
		}
		s.doc.Logging = next
	default:
		return nil, apperr.New(apperr.KindInvalidInput, fmt.Sprintf("unknown config section %q", name))
	}

	if err := s.persistLocked(); err != nil {
		return nil, err
	}

	return s.onChanged, nil
}

func (s *Service) persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

// persistLocked marshals the document and writes it atomically via a
// temp-file-then-rename, so a crash mid-write never corrupts the config.
func (s *Service) persistLocked() error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.KindIO, "marshal config", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return apperr.Wrap(apperr.KindIO, "create config directory", err)
	}

	tmp, err := os.CreateTemp(dir, ".history-server-config-*.tmp")
	if err != nil {
		return apperr.Wrap(apperr.KindIO, "create temp config file", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if err := tmp.Chmod(0o640); err != nil {
		tmp.Close()
		return apperr.Wrap(apperr.KindIO, "chmod temp config file", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return apperr.Wrap(apperr.KindIO, "write temp config file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return apperr.Wrap(apperr.KindIO, "sync temp config file", err)
	}
	if err := tmp.Close(); err != nil {
		return apperr.Wrap(apperr.KindIO, "close temp config file", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return apperr.Wrap(apperr.KindIO, "rename temp config file into place", err)
	}

	success = true
	L_debug("config: persisted", "path", s.path)
	return nil
}
