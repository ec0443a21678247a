package types

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// ResolveURL resolves ref against the base origin when ref is not already
// absolute. Relative artifact URLs break once surfaced outside the backend's
// own origin, so this normalization is mandatory before handing URLs to the
// caller.
func ResolveURL(base, ref string) (string, error) {
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" {
		return "", fmt.Errorf("empty artifact URL")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("parse artifact URL %q: %w", ref, err)
	}
	if parsed.IsAbs() {
		return trimmed, nil
	}
	if base == "" {
		return "", fmt.Errorf("relative artifact URL %q with no base origin", ref)
	}
	baseURL, err := url.Parse(base)
	if err != nil || baseURL.Scheme == "" || baseURL.Host == "" {
		return "", fmt.Errorf("base origin %q is not absolute", base)
	}
	return baseURL.ResolveReference(parsed).String(), nil
}

// ResolveArtifacts resolves every artifact URL in the map against base,
// in place. Unresolvable entries are dropped rather than surfaced broken.
func ResolveArtifacts(artifacts map[string]string, base string) {
	for name, ref := range artifacts {
		resolved, err := ResolveURL(base, ref)
		if err != nil {
			delete(artifacts, name)
			continue
		}
		artifacts[name] = resolved
	}
}

// ExtractArtifacts pulls an "artifacts" object of string URLs out of a raw
// result payload. Missing or non-conforming payloads yield nil.
func ExtractArtifacts(result json.RawMessage) map[string]string {
	if len(result) == 0 {
		return nil
	}
	var wire struct {
		Artifacts map[string]string `json:"artifacts"`
	}
	if err := json.Unmarshal(result, &wire); err != nil {
		return nil
	}
	if len(wire.Artifacts) == 0 {
		return nil
	}
	return wire.Artifacts
}
