package service

import (
	"regexp"
	"strings"
)

// PlaceholderCritique fills a critique slot the judge left empty. The exact
// text is load-bearing: partial classification and the eval harness both key
// on it.
const PlaceholderCritique = "Strength: None; Flaw: Insufficient signal in text."

// ParsedRanking is a judge ranking completed over the label set.
type ParsedRanking struct {
	// Labels is the full label set, best-first.
	Labels []string
	// Matched counts distinct labels present before completion. A ranking
	// with Matched < len(Labels) was padded and carries less signal.
	Matched int
}

var (
	reFinalRanking = regexp.MustCompile(`(?i)FINAL[_ ]?RANKING\s*:\s*(.+)`)
	// Fuzzy recovery when the FINAL_RANKING prefix is missing.
	reLabeledChain = regexp.MustCompile(`(?i)(Response\s+[A-Z](?:\s*>\s*Response\s+[A-Z])+)`)
	reLetterChain  = regexp.MustCompile(`\b([A-Z](?:\s*>\s*[A-Z]){2,})\b`)

	reChunkLabel = regexp.MustCompile(`(?i)^(?:response\s*)?([a-z])$`)
	reFenceLine  = regexp.MustCompile("(?m)^\\s*```[a-zA-Z0-9]*\\s*$")
)

// Arrow glyphs judges substitute for ">". Normalized before any parsing.
var arrowReplacer = strings.NewReplacer(
	"→", ">", "⇒", ">", "->", ">", "＞", ">", "›", ">", "»", ">", "=>", ">",
)

// stripFences removes code-fence lines and surrounding backticks/quotes while
// keeping the enclosed content.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = reFenceLine.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	for _, wrap := range []string{"`", "\"", "'"} {
		if len(s) >= 2 && strings.HasPrefix(s, wrap) && strings.HasSuffix(s, wrap) {
			s = strings.TrimSpace(s[1 : len(s)-1])
		}
	}
	return s
}

// ParseRanking extracts a best-first label ranking from judge output.
//
// The last FINAL_RANKING line wins; when absent, the last bare ranking chain
// ("Response B > Response A > ..." or "B > A > C") is recovered. Chunks are
// normalized ("response b", bare "B", "(B)", "**B**" all become "Response B"),
// labels outside the allowed set are dropped, duplicates keep their first
// occurrence, and the result is completed with missing labels in label order.
// Returns nil when no ranking signal exists at all.
func ParseRanking(text string, labels []string) *ParsedRanking {
	s := arrowReplacer.Replace(stripFences(text))
	if s == "" || len(labels) == 0 {
		return nil
	}

	tail := ""
	if m := lastMatch(reFinalRanking, s); m != nil {
		tail = m[1]
	} else if m := lastMatch(reLabeledChain, s); m != nil {
		tail = m[1]
	} else if m := lastMatch(reLetterChain, s); m != nil {
		tail = m[1]
	}
	if tail == "" {
		return nil
	}

	// Truncate the tail at the first line break: the ranking is one line.
	if idx := strings.IndexByte(tail, '\n'); idx >= 0 {
		tail = tail[:idx]
	}

	chunks := strings.Split(tail, ">")
	if len(chunks) == 1 {
		chunks = strings.Split(tail, ",")
	}

	allowed := make(map[string]bool, len(labels))
	for _, l := range labels {
		allowed[l] = true
	}

	var out []string
	seen := make(map[string]bool)
	for _, chunk := range chunks {
		label, ok := normalizeChunk(chunk)
		if !ok || !allowed[label] || seen[label] {
			continue
		}
		seen[label] = true
		out = append(out, label)
	}
	if len(out) == 0 {
		return nil
	}

	matched := len(out)
	for _, l := range labels {
		if !seen[l] {
			out = append(out, l)
		}
	}
	return &ParsedRanking{Labels: out, Matched: matched}
}

// normalizeChunk maps one ">"-separated chunk to its canonical label.
func normalizeChunk(chunk string) (string, bool) {
	chunk = strings.TrimSpace(chunk)
	chunk = strings.Trim(chunk, "`*_()[]{}\"'.,;:!")
	chunk = strings.TrimSpace(chunk)
	m := reChunkLabel.FindStringSubmatch(chunk)
	if m == nil {
		return "", false
	}
	return "Response " + strings.ToUpper(m[1]), true
}

// lastMatch returns the last submatch of re in s.
func lastMatch(re *regexp.Regexp, s string) []string {
	all := re.FindAllStringSubmatch(s, -1)
	if len(all) == 0 {
		return nil
	}
	return all[len(all)-1]
}

// CoerceCanonical rebuilds judge output into the canonical verdict: one
// critique line per label in label order, then a single FINAL_RANKING line.
// Critique fragments are mined from the raw text; labels with no usable
// fragment get the placeholder. Returns ok=false when no ranking can be
// recovered, and coerced=true when the canonical text differs from the
// trivially-normalized input.
func CoerceCanonical(text string, labels []string) (canonical string, coerced bool, ok bool) {
	parsed := ParseRanking(text, labels)
	if parsed == nil {
		return "", false, false
	}

	critiques := mineCritiques(text, labels)

	var lines []string
	for _, label := range labels {
		critique := critiques[label]
		if critique == "" {
			critique = PlaceholderCritique
		}
		lines = append(lines, label+": "+critique)
	}
	lines = append(lines, "FINAL_RANKING: "+strings.Join(parsed.Labels, " > "))

	canonical = strings.Join(lines, "\n")
	coerced = canonical != strings.TrimSpace(stripFences(text))
	return canonical, coerced, true
}

// mineCritiques extracts one critique fragment per label from raw judge text.
// Accepts "Response A: ...", "- A: ...", "A) ...", "A — ..." line shapes.
func mineCritiques(text string, labels []string) map[string]string {
	letters := make([]string, 0, len(labels))
	for _, l := range labels {
		letters = append(letters, letterOf(l))
	}
	re := regexp.MustCompile(`(?i)^\s*(?:[-*•]\s*)?(?:response\s*)?([` + strings.Join(letters, "") + `])\s*[:\-–—.)]\s*(.+)$`)

	out := make(map[string]string, len(labels))
	for _, line := range strings.Split(stripFences(text), "\n") {
		if reFinalRanking.MatchString(line) {
			continue
		}
		m := re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		label := "Response " + strings.ToUpper(m[1])
		if _, exists := out[label]; exists {
			continue
		}
		out[label] = strings.TrimSpace(m[2])
	}
	return out
}

// letterOf returns the positional letter of a label ("Response B" -> "B").
func letterOf(label string) string {
	if idx := strings.LastIndexByte(label, ' '); idx >= 0 && idx+1 < len(label) {
		return label[idx+1:]
	}
	return label
}
