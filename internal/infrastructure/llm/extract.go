package llm

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"
)

// Provider request-id shapes that occasionally leak into content fields.
// A response that consists of nothing but one of these is an artifact of the
// routing layer, not an answer.
var (
	reGenID    = regexp.MustCompile(`^gen-\d{6,}-[A-Za-z0-9_-]{8,}$`)
	reVendorID = regexp.MustCompile(`^(chatcmpl|cmpl|req|run|msg)-[A-Za-z0-9-]{12,}$`)
	reBareID   = regexp.MustCompile(`^[A-Za-z0-9_-]{24,}$`)
)

// IsProviderArtifact reports whether s is a leaked provider id rather than
// model output. Only single whitespace-free tokens qualify.
func IsProviderArtifact(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, " \t\r\n") {
		return false
	}
	return reGenID.MatchString(s) || reVendorID.MatchString(s) || reBareID.MatchString(s)
}

// NormalizeContent flattens a message content field. Providers return a plain
// string, a list of typed parts, or nested {text:{value}}, {content:[…]},
// {output_text} shapes; all collapse to one string, parts in order.
func NormalizeContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var node interface{}
	if err := json.Unmarshal(raw, &node); err != nil {
		return ""
	}
	return flattenContent(node)
}

func flattenContent(node interface{}) string {
	switch v := node.(type) {
	case string:
		return v
	case []interface{}:
		var b strings.Builder
		for _, item := range v {
			b.WriteString(flattenContent(item))
		}
		return b.String()
	case map[string]interface{}:
		if s, ok := v["text"].(string); ok {
			return s
		}
		if inner, ok := v["text"].(map[string]interface{}); ok {
			if s, ok := inner["value"].(string); ok {
				return s
			}
		}
		if s, ok := v["output_text"].(string); ok {
			return s
		}
		if c, ok := v["content"]; ok {
			return flattenContent(c)
		}
	}
	return ""
}

// Metadata keys whose subtrees never contain answer text.
var ignoredKeys = map[string]bool{
	"id":                 true,
	"request_id":         true,
	"generation_id":      true,
	"model":              true,
	"provider":           true,
	"usage":              true,
	"created":            true,
	"timestamp":          true,
	"object":             true,
	"finish_reason":      true,
	"system_fingerprint": true,
}

func isIgnoredKey(key string) bool {
	key = strings.ToLower(key)
	return ignoredKeys[key] || strings.HasSuffix(key, "_id")
}

// Keys whose string values may carry answer text.
func isCandidateKey(key string) bool {
	switch key := strings.ToLower(key); key {
	case "content", "text", "value", "output_text":
		return true
	default:
		return strings.HasSuffix(key, "content")
	}
}

// DeepExtract scans a raw response body for answer text after the normal
// choices/message/content path produced nothing usable. Ignored-key subtrees
// are skipped wholesale; among candidate keys the longest non-id string wins.
func DeepExtract(body []byte) string {
	var root interface{}
	if err := json.Unmarshal(body, &root); err != nil {
		return ""
	}
	return strings.TrimSpace(deepScan("", root))
}

func deepScan(key string, node interface{}) string {
	switch v := node.(type) {
	case string:
		if !isCandidateKey(key) || IsProviderArtifact(v) {
			return ""
		}
		return v
	case map[string]interface{}:
		// Sorted keys keep the walk deterministic when lengths tie.
		keys := make([]string, 0, len(v))
		for k := range v {
			if !isIgnoredKey(k) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		best := ""
		for _, k := range keys {
			if s := deepScan(k, v[k]); len(s) > len(best) {
				best = s
			}
		}
		return best
	case []interface{}:
		best := ""
		for _, item := range v {
			if s := deepScan(key, item); len(s) > len(best) {
				best = s
			}
		}
		return best
	}
	return ""
}
