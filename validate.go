package vfat

import "strings"

// maxNameLength is the longest a single path component may be, in UTF-8
// bytes (spec §6).
const maxNameLength = 32

// reservedNames mirrors the DOS-era reserved device names the original
// validator rejected, plus the "." and ".." path components.
var reservedNames = map[string]bool{
	".": true, "..": true,
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
}

// disallowedChars are forbidden in a single path component.
const disallowedChars = `<>:"|?*\/`

// validateName checks a single path component (not a full path) against
// the spec's naming rules: non-empty, at most maxNameLength UTF-8 bytes,
// no disallowed characters or control bytes, and not a reserved name.
func validateName(name string) error {
	if name == "" {
		return resultInvalidName
	}
	if len(normalizeName(name)) > maxNameLength {
		return resultInvalidName
	}
	for _, r := range name {
		if r < 0x20 {
			return resultInvalidName
		}
		if strings.ContainsRune(disallowedChars, r) {
			return resultInvalidName
		}
	}
	if reservedNames[strings.ToUpper(name)] {
		return resultInvalidName
	}
	return nil
}

// splitPath splits an absolute, slash-separated path into its non-empty
// components. "/" and "" both yield zero components (the root).
func splitPath(path string) ([]string, error) {
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p == "" {
			continue
		}
		if err := validateName(p); err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}
	return parts, nil
}

// splitParent splits a path into its parent directory path and final
// component name, e.g. "/a/b/c.txt" -> ("/a/b", "c.txt").
func splitParent(path string) (parentPath, name string) {
	trimmed := strings.Trim(path, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return "/", trimmed
	}
	return "/" + trimmed[:idx], trimmed[idx+1:]
}
