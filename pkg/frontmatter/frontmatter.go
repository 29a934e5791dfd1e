// Package frontmatter parses and emits the YAML front-matter block that
// carries a note's stable identity, and provides the hybrid strict/regex
// identity extraction that keeps a mangled header from ever causing a
// second UUID allocation.
package frontmatter

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Delimiter is the fence line that opens and closes a front-matter block.
const Delimiter = "---"

// IDKey is the YAML key under which a note's stable identity is stored.
const IDKey = "spacetime_id"

// idRegex is the loose fallback used when strict YAML parsing fails.
// It is scanned only against the first regexScanWindow bytes of content,
// multiline, anchored to the start of a line.
var idRegex = regexp.MustCompile(`(?m)^spacetime_id:\s*([a-f0-9\-]+)`)

const regexScanWindow = 1024

// Parse splits content into its body and a JSON-encoded object describing
// the front-matter. If content has no front-matter block, or the block's
// YAML is malformed, Parse returns (content, "{}") and logs a warning on
// the malformed case.
func Parse(content string) (body string, frontmatterJSON string) {
	yamlStr, rest, ok := splitBlock(content)
	if !ok {
		return content, "{}"
	}

	var m map[string]interface{}
	if err := yaml.Unmarshal([]byte(yamlStr), &m); err != nil {
		log.Warn().Err(err).Msg("frontmatter: malformed YAML, treating note as having no front-matter")
		return content, "{}"
	}
	if m == nil {
		m = map[string]interface{}{}
	}

	j, err := json.Marshal(normalizeYAMLMap(m))
	if err != nil {
		log.Warn().Err(err).Msg("frontmatter: failed to encode parsed YAML as JSON")
		return content, "{}"
	}
	return strings.TrimLeft(rest, "\n"), string(j)
}

// ExtractID returns the note's stable identity using a hybrid strategy:
// strict YAML parsing first, falling back to a bounded regex scan when the
// YAML is malformed. The regex fallback exists so a mangled front-matter
// block never triggers a second UUID allocation.
func ExtractID(content string) (string, bool) {
	if yamlStr, _, ok := splitBlock(content); ok {
		var m map[string]interface{}
		if err := yaml.Unmarshal([]byte(yamlStr), &m); err == nil {
			if v, ok := m[IDKey]; ok {
				if s, ok := v.(string); ok && s != "" {
					return s, true
				}
			}
		}
	}

	head := content
	if len(head) > regexScanWindow {
		head = head[:regexScanWindow]
	}
	if m := idRegex.FindStringSubmatch(head); m != nil {
		id := strings.TrimSpace(m[1])
		log.Warn().Str("id", id).Msg("frontmatter: extracted id via regex fallback, YAML was malformed")
		return id, true
	}

	return "", false
}

// Inject inserts or overwrites spacetime_id in content's front-matter,
// creating a fresh front-matter block if none exists (or if the existing
// one has delimiters but unparsable YAML). For any content and ids id1,
// id2, Inject(Inject(content, id1), id2) has exactly one spacetime_id
// key, equal to id2, and ExtractID(Inject(content, id)) == (id, true).
func Inject(content string, id string) string {
	yamlStr, body, ok := splitBlock(content)
	if !ok {
		return freshBlock(id) + content
	}

	var m map[string]interface{}
	if err := yaml.Unmarshal([]byte(yamlStr), &m); err != nil {
		// Delimiters existed but YAML was malformed: treat as no front-matter.
		return freshBlock(id) + content
	}
	if m == nil {
		m = map[string]interface{}{}
	}
	m[IDKey] = id

	out, err := yaml.Marshal(normalizeYAMLMap(m))
	if err != nil {
		return freshBlock(id) + content
	}

	return Delimiter + "\n" + string(out) + Delimiter + "\n" + body
}

// Render rebuilds a full note file from a JSON-encoded front-matter object,
// a stable id, and a body. It unmarshals frontmatterJSON (treating "" or
// invalid JSON as an empty object), force-inserts IDKey, marshals the
// result to YAML, and wraps it in delimiters ahead of body. This is the
// inverse of Parse: Render(j, id, body) round-trips every key Parse
// extracted, not just the id.
func Render(frontmatterJSON string, id string, body string) string {
	m := map[string]interface{}{}
	if frontmatterJSON != "" {
		if err := json.Unmarshal([]byte(frontmatterJSON), &m); err != nil {
			log.Warn().Err(err).Msg("frontmatter: malformed frontmatter JSON, rendering with id only")
			m = map[string]interface{}{}
		}
	}
	m[IDKey] = id

	out, err := yaml.Marshal(normalizeYAMLMap(m))
	if err != nil {
		return freshBlock(id) + body
	}

	return Delimiter + "\n" + string(out) + Delimiter + "\n" + body
}

func freshBlock(id string) string {
	return Delimiter + "\n" + IDKey + ": " + id + "\n" + Delimiter + "\n\n"
}

// HasBlock reports whether content opens with a front-matter fence.
func HasBlock(content string) bool {
	_, _, ok := splitBlock(content)
	return ok
}

// splitBlock finds the "---\n...\n---" fence pair at the start of content
// and returns the raw YAML text and the remaining body. ok is false when
// content doesn't start with the opening fence or the closing fence is
// never found.
func splitBlock(content string) (yamlStr string, body string, ok bool) {
	if !strings.HasPrefix(content, Delimiter) {
		return "", "", false
	}
	rest := content[len(Delimiter):]
	endIdx := strings.Index(rest, "\n"+Delimiter)
	if endIdx < 0 {
		return "", "", false
	}
	yamlStr = strings.TrimSpace(rest[:endIdx])
	body = rest[endIdx+len("\n"+Delimiter):]
	return yamlStr, body, true
}

// normalizeYAMLMap recursively coerces nested map/slice values so the
// result marshals cleanly to JSON regardless of how yaml.v3 typed them.
func normalizeYAMLMap(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = normalizeYAMLMap(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = normalizeYAMLMap(val)
		}
		return out
	default:
		return v
	}
}
