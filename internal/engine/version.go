package engine

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrVersionNotFound is returned when a run requires a version declaration
// and the build configuration has none.
var ErrVersionNotFound = errors.New("version declaration not found")

// ResolveVersion reads the build configuration at path and returns the
// version declared on the first line containing marker. found is false when
// no line matches; that is not an error.
func ResolveVersion(path, marker string) (version string, found bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false, fmt.Errorf("reading build configuration: %w", err)
	}
	version, found, err = ParseVersion(string(data), marker)
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", path, err)
	}
	return version, found, nil
}

// ParseVersion scans text line by line. The version is the third
// whitespace-delimited field of the first line containing marker, with a
// closing parenthesis from a CMake call stripped.
func ParseVersion(text, marker string) (string, bool, error) {
	for i, line := range strings.Split(text, "\n") {
		if !strings.Contains(line, marker) {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			return "", false, fmt.Errorf("line %d: malformed version declaration %q", i+1, strings.TrimSpace(line))
		}
		version := strings.TrimRight(strings.TrimSpace(fields[2]), ")")
		if version == "" {
			return "", false, fmt.Errorf("line %d: empty version in %q", i+1, strings.TrimSpace(line))
		}
		return version, true, nil
	}
	return "", false, nil
}
