package errors

import (
	"context"
	"fmt"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// UnknownErrorMessage is the fixed fallback when no message can be extracted
// from a failure value. ExtractMessage never returns an empty string.
const UnknownErrorMessage = "An unknown error occurred"

// maxCauseDepth bounds cause-chain recursion so cyclic causes terminate.
const maxCauseDepth = 8

// maxDumpLen caps the structured dump of an unrecognized failure value.
const maxDumpLen = 200

// ExtractMessage produces a human-readable message from an arbitrary failure
// value: a Go error, a decoded JSON payload (map), a plain string, or
// anything else a collaborator hands back. It is total and deterministic.
func ExtractMessage(v interface{}) string {
	if msg := extractMessage(v, 0, make(map[string]bool)); msg != "" {
		return msg
	}

	return UnknownErrorMessage
}

func extractMessage(v interface{}, depth int, seen map[string]bool) string {
	if v == nil || depth > maxCauseDepth {
		return ""
	}

	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)

	case map[string]interface{}:
		// Guard against self-referencing payloads. Maps are not hashable, so
		// track identity via the fmt pointer representation.
		key := fmt.Sprintf("%p", val)
		if seen[key] {
			return ""
		}

		seen[key] = true

		return extractFromMap(val, depth, seen)

	case *Error:
		if val == nil {
			return ""
		}

		return val.Error()

	case error:
		if msg := strings.TrimSpace(val.Error()); msg != "" {
			return msg
		}

		if unwrapped := Unwrap(val); unwrapped != nil {
			return extractMessage(unwrapped, depth+1, seen)
		}

		return ""

	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	}

	return dumpValue(v)
}

// extractFromMap applies the field preference order: message, msg, error,
// cause (only when it yields something specific), then a name+code composite.
func extractFromMap(m map[string]interface{}, depth int, seen map[string]bool) string {
	if msg, ok := m["message"].(string); ok && strings.TrimSpace(msg) != "" {
		return strings.TrimSpace(msg)
	}

	if msg, ok := m["msg"].(string); ok && strings.TrimSpace(msg) != "" {
		return strings.TrimSpace(msg)
	}

	if errField, ok := m["error"]; ok && errField != nil {
		if msg := extractMessage(errField, depth+1, seen); msg != "" {
			return msg
		}
	}

	if cause, ok := m["cause"]; ok && cause != nil {
		if msg := extractMessage(cause, depth+1, seen); msg != "" && msg != UnknownErrorMessage {
			return msg
		}
	}

	if name, ok := m["name"].(string); ok && name != "" {
		if code, ok := m["code"]; ok && code != nil {
			return fmt.Sprintf("%s (code: %v)", name, code)
		}

		if kind, ok := m["kind"]; ok && kind != nil {
			return fmt.Sprintf("%s (%v)", name, kind)
		}

		return name
	}

	if len(m) == 0 {
		return ""
	}

	return dumpValue(m)
}

// dumpConfig sorts map keys so the dump of a given value is deterministic.
var dumpConfig = spew.ConfigState{Indent: " ", SortKeys: true}

func dumpValue(v interface{}) string {
	dump := strings.TrimSpace(dumpConfig.Sdump(v))
	if dump == "" {
		return ""
	}

	if len(dump) > maxDumpLen {
		dump = dump[:maxDumpLen] + "..."
	}

	return dump
}

// transientSubstrings are case-insensitive message fragments that mark a
// failure as worth retrying: platform/consensus unavailability, RPC status
// words, connectivity failures, temporariness words, and the wasm/memory
// hints the platform SDK surfaces when its runtime is still warming up.
var transientSubstrings = []string{
	// consensus layer unavailability
	"no available addresses",
	"masternode",
	"quorum not found",
	"not synced",

	// rpc status words
	"unavailable",
	"deadline exceeded",
	"resource exhausted",
	"aborted",
	"internal error",
	"unknown error",

	// broadcast / consensus
	"broadcast error",
	"rate limit",

	// connectivity
	"connection refused",
	"connection reset",
	"connection closed",
	"broken pipe",
	"socket",
	"econn",

	// temporariness
	"busy",
	"retry",
	"try again",
	"temporarily",
	"timed out",
	"timeout",

	// execution environment
	"wasm",
	"memory",
}

// networkSubstrings mark network-class failures from message text alone.
var networkSubstrings = []string{
	"network",
	"fetch",
	"load failed",
	"disconnected",
	"econnreset",
	"econnrefused",
	"enotfound",
}

// httpRetryableStatuses are HTTP statuses that signal a transient condition,
// matched as standalone tokens or by canonical phrase.
var httpRetryableStatuses = []string{"429", "500", "502", "503", "504"}

var httpRetryablePhrases = []string{
	"too many requests",
	"internal server error",
	"bad gateway",
	"service unavailable",
	"gateway timeout",
}

// retryableGRPCCodes is the fixed retryable status-code set.
var retryableGRPCCodes = map[int64]bool{
	int64(codes.DeadlineExceeded):  true,
	int64(codes.ResourceExhausted): true,
	int64(codes.Aborted):           true,
	int64(codes.Unavailable):       true,
}

// IsRetryable reports whether an arbitrary failure value is transient. It
// inspects strings and fields only; it performs no I/O and has no side
// effects. Context cancellation is never retryable.
func IsRetryable(v interface{}) bool {
	if v == nil {
		return false
	}

	if err, ok := v.(error); ok {
		if Is(err, context.Canceled) || Is(err, context.DeadlineExceeded) {
			return false
		}

		if IsRetryableError(err) {
			return true
		}

		if st, ok := status.FromError(err); ok {
			if retryableGRPCCodes[int64(st.Code())] {
				return true
			}
		}
	}

	msg := strings.ToLower(ExtractMessage(v))

	for _, s := range transientSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}

	if m, ok := v.(map[string]interface{}); ok {
		if retriable, ok := m["retriable"].(bool); ok && retriable {
			return true
		}

		if retryable, ok := m["retryable"].(bool); ok && retryable {
			return true
		}

		if code, ok := numericField(m, "code"); ok {
			if retryableGRPCCodes[code] {
				return true
			}

			if code == -1 && strings.Contains(msg, "not available") {
				return true
			}
		}

		// user or environment triggered abort, explicitly tagged
		if name, ok := m["name"].(string); ok && strings.EqualFold(name, "AbortError") {
			return true
		}
	}

	for _, s := range networkSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}

	for _, s := range httpRetryableStatuses {
		if containsToken(msg, s) {
			return true
		}
	}

	for _, s := range httpRetryablePhrases {
		if strings.Contains(msg, s) {
			return true
		}
	}

	return false
}

// numericField reads a numeric map field that may arrive as any of the
// numeric types a JSON decoder produces.
func numericField(m map[string]interface{}, key string) (int64, bool) {
	switch n := m[key].(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case float32:
		return int64(n), true
	}

	return 0, false
}

// containsToken reports whether token appears in s without being part of a
// longer digit run, so "503" matches "HTTP 503" but not "15030 duffs".
func containsToken(s, token string) bool {
	idx := 0

	for {
		i := strings.Index(s[idx:], token)
		if i < 0 {
			return false
		}

		start := idx + i
		end := start + len(token)

		beforeOK := start == 0 || !isDigit(s[start-1])
		afterOK := end == len(s) || !isDigit(s[end])

		if beforeOK && afterOK {
			return true
		}

		idx = start + 1
	}
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
