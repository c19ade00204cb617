package compose

import (
	"bufio"
	"bytes"
	"fmt"
	"sort"
	"strings"
)

// ScanResult is what the line scanner recovers from a compose file.
type ScanResult struct {
	// Services lists every service key in file order.
	Services []string

	// Profiles maps service name to its declared profiles.
	Profiles map[string][]string
}

// ServicesInProfile returns services declaring profile, sorted.
func (r *ScanResult) ServicesInProfile(profile string) []string {
	var out []string
	for _, svc := range r.Services {
		for _, p := range r.Profiles[svc] {
			if p == profile {
				out = append(out, svc)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// AllProfiles returns the distinct profile names, sorted.
func (r *ScanResult) AllProfiles() []string {
	seen := map[string]bool{}
	var out []string
	for _, ps := range r.Profiles {
		for _, p := range ps {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	sort.Strings(out)
	return out
}

// ScanServices walks the top-level `services:` block by indentation alone.
// It is the last resort for files the YAML decoder rejects, such as files
// with template placeholders, and understands only service keys and their
// `profiles:` (inline `[a, b]` or block list).
func ScanServices(data []byte) (*ScanResult, error) {
	res := &ScanResult{Profiles: map[string][]string{}}

	inServices := false
	svcIndent := -1
	current := ""
	profilesIndent := -1

	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		raw := strings.TrimRight(sc.Text(), " \t\r")
		text := strings.TrimSpace(raw)
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		indent := len(raw) - len(strings.TrimLeft(raw, " "))

		if indent == 0 {
			inServices = text == "services:"
			svcIndent, current, profilesIndent = -1, "", -1
			continue
		}
		if !inServices {
			continue
		}

		if svcIndent < 0 {
			svcIndent = indent
		}

		switch {
		case indent == svcIndent:
			profilesIndent = -1
			key, ok := mappingKey(text)
			if !ok {
				current = ""
				continue
			}
			current = key
			res.Services = append(res.Services, key)

		case current == "":

		case profilesIndent >= 0 && indent >= profilesIndent && strings.HasPrefix(text, "- "):
			res.Profiles[current] = append(res.Profiles[current], unquote(strings.TrimSpace(text[2:])))

		case indent > svcIndent:
			profilesIndent = -1
			if !strings.HasPrefix(text, "profiles:") {
				continue
			}
			rest := strings.TrimSpace(strings.TrimPrefix(text, "profiles:"))
			if rest == "" {
				profilesIndent = indent
				continue
			}
			res.Profiles[current] = append(res.Profiles[current], parseFlowList(rest)...)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan compose file: %w", err)
	}
	if len(res.Services) == 0 {
		return nil, fmt.Errorf("no services found")
	}
	return res, nil
}

// mappingKey returns "name" for a line like `name:` or `"name":`.
func mappingKey(text string) (string, bool) {
	if strings.HasPrefix(text, "- ") {
		return "", false
	}
	key, rest, ok := strings.Cut(text, ":")
	if !ok {
		return "", false
	}
	rest = strings.TrimSpace(rest)
	if rest != "" && !strings.HasPrefix(rest, "#") && !strings.HasPrefix(rest, "&") && rest != "{}" {
		return "", false
	}
	key = unquote(strings.TrimSpace(key))
	return key, key != ""
}

// parseFlowList parses `[a, "b"]` or a single scalar.
func parseFlowList(s string) []string {
	if i := strings.Index(s, " #"); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	var out []string
	for _, part := range strings.Split(s, ",") {
		if v := unquote(strings.TrimSpace(part)); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func unquote(s string) string {
	if i := strings.Index(s, " #"); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}
