// Package anonymizer redacts sensitive substrings from telemetry strings
// before anything leaves the process toward the LLM advisory service. It
// is a pure, stateless transform once its regex table is compiled: no
// input is ever sent outward without passing through it first.
//
// Ordering of the compiled table matters. The UUID rule must run before
// the long-alphanumeric-run rule, or the latter swallows UUIDs whole
// before they can be recognized and masked distinctly (cf. the
// email/API-key/long-token ordering in the ai-anonymizing-proxy pattern
// this is grounded on).
package anonymizer

import "regexp"

type rule struct {
	re          *regexp.Regexp
	replacement string
}

// uuidMask is rule 6's replacement. Later rules leave it in place, so a
// masked UUID stays distinct from a redacted token.
const uuidMask = "00000000-0000-0000-0000-000000000000"

// Anonymizer applies a fixed, ordered table of redaction rules.
type Anonymizer struct {
	rules []rule
}

// New compiles the fixed rule table and returns a ready-to-use Anonymizer.
func New() *Anonymizer {
	a := &Anonymizer{}
	a.rules = []rule{
		// 1. email
		{regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`), "user@example.com"},
		// 2. SSN-like ddd-dd-dddd
		{regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), "XXX-XX-XXXX"},
		// 3. card-like 16-digit groups
		{regexp.MustCompile(`\b(?:\d{4}[- ]?){3}\d{4}\b`), "XXXX-XXXX-XXXX-XXXX"},
		// 4. IPv4
		{regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|1?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|1?\d?\d)\b`), "XXX.XXX.XXX.XXX"},
		// 5. user-<digits> identifiers
		{regexp.MustCompile(`\buser-\d+\b`), "user-XXXXX"},
		// 6. UUID — must precede rule 7, or the long-run rule eats it first
		{regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\b`), uuidMask},
		// 7. long alphanumeric runs (tokens, api keys, session ids)
		{regexp.MustCompile(`\b[A-Za-z0-9_\-]{20,}\b`), "REDACTED_TOKEN"},
	}
	return a
}

// String applies every rule, in order, to s. A UUID mask written by rule
// 6 is not rewritten by rule 7.
func (a *Anonymizer) String(s string) string {
	for _, r := range a.rules {
		s = r.re.ReplaceAllStringFunc(s, func(m string) string {
			if m == uuidMask {
				return m
			}
			return r.replacement
		})
	}
	return s
}

// StringMap applies String to every value of m, leaving keys untouched —
// keys are considered non-sensitive metadata (attribute names, label
// names), never payload.
func (a *Anonymizer) StringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = a.String(v)
	}
	return out
}
