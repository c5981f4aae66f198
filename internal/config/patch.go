package config

import (
	"fmt"

	"github.com/huanluu/claude-history-server/internal/apperr"
)

// applyHeartbeatPatch validates patch fields against HeartbeatConfig's
// schema and returns an updated copy, or a human-readable error.
func applyHeartbeatPatch(current HeartbeatConfig, patch map[string]any) (HeartbeatConfig, error) {
	allowed := map[string]bool{"enabled": true, "intervalMs": true, "workingDirectory": true, "maxItems": true}
	if err := rejectUnknownFields("heartbeat", patch, allowed); err != nil {
		return current, err
	}

	next := current
	if v, ok := patch["enabled"]; ok {
		b, err := asBool("heartbeat.enabled", v)
		if err != nil {
			return current, err
		}
		next.Enabled = b
	}
	if v, ok := patch["intervalMs"]; ok {
		n, err := asInt("heartbeat.intervalMs", v)
		if err != nil {
			return current, err
		}
		if n < 60000 {
			return current, apperr.New(apperr.KindInvalidInput, "heartbeat.intervalMs must be >= 60000")
		}
		next.IntervalMs = n
	}
	if v, ok := patch["workingDirectory"]; ok {
		str, err := asString("heartbeat.workingDirectory", v)
		if err != nil {
			return current, err
		}
		next.WorkingDirectory = str
	}
	if v, ok := patch["maxItems"]; ok {
		n, err := asInt("heartbeat.maxItems", v)
		if err != nil {
			return current, err
		}
		if n < 0 {
			return current, apperr.New(apperr.KindInvalidInput, "heartbeat.maxItems must be >= 0")
		}
		next.MaxItems = n
	}
	return next, nil
}

func applySecurityPatch(current SecurityConfig, patch map[string]any) (SecurityConfig, error) {
	allowed := map[string]bool{"allowedWorkingDirs": true}
	if err := rejectUnknownFields("security", patch, allowed); err != nil {
		return current, err
	}

	next := current
	if v, ok := patch["allowedWorkingDirs"]; ok {
		raw, ok := v.([]any)
		if !ok {
			return current, apperr.New(apperr.KindInvalidInput, "security.allowedWorkingDirs must be an array of strings")
		}
		dirs := make([]string, 0, len(raw))
		for i, item := range raw {
			str, ok := item.(string)
			if !ok || str == "" {
				return current, apperr.New(apperr.KindInvalidInput, fmt.Sprintf("security.allowedWorkingDirs[%d] must be a non-empty string", i))
			}
			dirs = append(dirs, str)
		}
		next.AllowedWorkingDirs = dirs
	}
	return next, nil
}

func applyLoggingPatch(current LoggingConfig, patch map[string]any) (LoggingConfig, error) {
	allowed := map[string]bool{"requestLogLevel": true}
	if err := rejectUnknownFields("logging", patch, allowed); err != nil {
		return current, err
	}

	next := current
	if v, ok := patch["requestLogLevel"]; ok {
		str, err := asString("logging.requestLogLevel", v)
		if err != nil {
			return current, err
		}
		switch str {
		case "all", "errors-only", "off":
			next.RequestLogLevel = str
		default:
			return current, apperr.New(apperr.KindInvalidInput, "logging.requestLogLevel must be one of: all, errors-only, off")
		}
	}
	return next, nil
}

func rejectUnknownFields(section string, patch map[string]any, allowed map[string]bool) error {
	for field := range patch {
		if !allowed[field] {
			return apperr.New(apperr.KindInvalidInput, fmt.Sprintf("unknown field %q in section %q", field, section))
		}
	}
	return nil
}

func asBool(field string, v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, apperr.New(apperr.KindInvalidInput, fmt.Sprintf("%s must be a boolean", field))
	}
	return b, nil
}

func asString(field string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", apperr.New(apperr.KindInvalidInput, fmt.Sprintf("%s must be a string", field))
	}
	return s, nil
}

// asInt accepts float64 since patches are decoded from JSON (encoding/json
// decodes all unmarshaled numbers into interface{} as float64), rejecting
// non-integral values.
func asInt(field string, v any) (int, error) {
	f, ok := v.(float64)
	if !ok {
		return 0, apperr.New(apperr.KindInvalidInput, fmt.Sprintf("%s must be a number", field))
	}
	if f != float64(int(f)) {
		return 0, apperr.New(apperr.KindInvalidInput, fmt.Sprintf("%s must be an integer", field))
	}
	return int(f), nil
}
