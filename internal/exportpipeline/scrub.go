package exportpipeline

import "regexp"

// secretPattern is one recognized secret token shape: a name (used as
// the per-pattern counter key in the scrub summary) and the regex that
// matches it. Modeled on the teacher's PII detector (a name->priority
// ->pattern map with a dedicated Detect/Mask pass per type), adapted
// from personally-identifiable-information shapes to the export
// pipeline's secret-token shapes named in spec.md §4.5.
type secretPattern struct {
	name    string
	pattern *regexp.Regexp
}

// defaultSecretPatterns covers common token shapes seen in message
// bodies and subjects: cloud provider keys, VCS/CI personal access
// tokens, bearer/JWT auth material, and PEM private key blocks. Not
// exhaustive by design — scrubbing trades recall for a bounded,
// auditable pattern list (spec.md's "preset" language), not a general
// secret-detection engine.
func defaultSecretPatterns() []secretPattern {
	return []secretPattern{
		{name: "aws_access_key_id", pattern: regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)},
		{name: "aws_secret_access_key", pattern: regexp.MustCompile(`\b[A-Za-z0-9/+=]{40}\b`)},
		{name: "github_token", pattern: regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`)},
		{name: "slack_token", pattern: regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9-]{10,}\b`)},
		{name: "stripe_key", pattern: regexp.MustCompile(`\bsk_(live|test)_[A-Za-z0-9]{16,}\b`)},
		{name: "google_api_key", pattern: regexp.MustCompile(`\bAIza[0-9A-Za-z_-]{35}\b`)},
		{name: "jwt", pattern: regexp.MustCompile(`\beyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\b`)},
		{name: "bearer_token", pattern: regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._-]{16,}\b`)},
		{name: "private_key_block", pattern: regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]*?-----END [A-Z ]*PRIVATE KEY-----`)},
		{name: "generic_api_key_assignment", pattern: regexp.MustCompile(`(?i)\b(api[_-]?key|secret|token)\s*[:=]\s*['"]?[A-Za-z0-9_\-./+]{16,}['"]?`)},
	}
}

// Scrubber redacts secret patterns from message text, counting matches
// per pattern name so the finalize summary can report what was found
// without re-exposing the matched values themselves.
type Scrubber struct {
	patterns []secretPattern
}

// NewScrubber builds a Scrubber over the default pattern preset.
func NewScrubber() *Scrubber {
	return &Scrubber{patterns: defaultSecretPatterns()}
}

// Scrub redacts every recognized pattern in text, returning the
// redacted text and the count of matches found per pattern name
// (patterns with zero matches are omitted).
func (s *Scrubber) Scrub(text string) (string, map[string]int) {
	counts := make(map[string]int)
	out := text
	for _, p := range s.patterns {
		matches := p.pattern.FindAllStringIndex(out, -1)
		if len(matches) == 0 {
			continue
		}
		counts[p.name] += len(matches)
		out = p.pattern.ReplaceAllString(out, "[REDACTED:"+p.name+"]")
	}
	return out, counts
}

// mergeCounts adds src's counts into dst in place.
func mergeCounts(dst, src map[string]int) {
	for k, v := range src {
		dst[k] += v
	}
}
