package configloader

import (
	"fmt"
	"regexp"
	"strings"
)

var envVarRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandEnvRefs replaces every ${NAME} in value with the variable returned by
// lookup. A reference to an unset variable is an error so that a missing
// secret does not silently become an empty string.
func ExpandEnvRefs(value string, lookup func(string) (string, bool)) (string, error) {
	if !strings.Contains(value, "${") {
		return value, nil
	}

	var missing []string
	expanded := envVarRefPattern.ReplaceAllStringFunc(value, func(match string) string {
		name := envVarRefPattern.FindStringSubmatch(match)[1]
		v, ok := lookup(name)
		if !ok {
			missing = append(missing, name)
			return match
		}
		return v
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("environment variable not set: %s", strings.Join(missing, ", "))
	}
	return expanded, nil
}
