package configloader

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var yamlLinePattern = regexp.MustCompile(`yaml: line (\d+): (?:column (\d+): )?(.+)`)

// yamlSyntaxError is the position and message of a yaml.v3 error.
type yamlSyntaxError struct {
	Line    int
	Column  int
	Message string
}

func parseYAMLError(err error) (yamlSyntaxError, bool) {
	m := yamlLinePattern.FindStringSubmatch(err.Error())
	if m == nil {
		return yamlSyntaxError{}, false
	}
	line, _ := strconv.Atoi(m[1])
	col, _ := strconv.Atoi(m[2])
	return yamlSyntaxError{Line: line, Column: col, Message: m[3]}, true
}

// EnhanceConfigError turns a parse error into a message that shows the
// offending lines of content. Only YAML errors are rewritten; the JSON and TOML
// parsers already report clear positions.
func EnhanceConfigError(configFile, format string, content []byte, err error) error {
	if format != "yaml" {
		return fmt.Errorf("failed to load config file: %w", err)
	}
	info, ok := parseYAMLError(err)
	if !ok {
		return fmt.Errorf("failed to load config file: %w", err)
	}

	lines := strings.Split(string(content), "\n")
	focus := info.Line
	hint := ""
	if line, ok := firstTabIndent(lines); ok {
		hint, focus = "YAML requires spaces for indentation, not tabs.", line
	} else if line, suggestion, ok := missingColon(lines, info.Line); ok {
		hint, focus = suggestion, line
	}

	var b strings.Builder
	fmt.Fprintf(&b, "YAML syntax error in %s\n\n", configFile)
	first, last := max(1, focus-1), min(len(lines), focus+1)
	width := len(strconv.Itoa(last))
	for i := first; i <= last; i++ {
		fmt.Fprintf(&b, "  %*d | %s\n", width, i, strings.ReplaceAll(lines[i-1], "\t", "→   "))
		if i == info.Line && info.Column > 0 {
			fmt.Fprintf(&b, "%s^ %s\n", strings.Repeat(" ", width+4+info.Column-1), info.Message)
		}
	}
	switch {
	case hint != "":
		fmt.Fprintf(&b, "\n   Hint: %s\n", hint)
	case info.Column == 0:
		fmt.Fprintf(&b, "\n   Error: %s\n", info.Message)
	}
	return errors.New(b.String())
}

func firstTabIndent(lines []string) (int, bool) {
	for i, line := range lines {
		indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		if strings.Contains(indent, "\t") {
			return i + 1, true
		}
	}
	return 0, false
}

var yamlKeyPattern = regexp.MustCompile(`^[A-Za-z_][\w-]*$`)

// missingColon looks for "key value" on the reported line or the one before,
// where parsers often report it.
func missingColon(lines []string, errLine int) (int, string, bool) {
	for _, n := range []int{errLine, errLine - 1} {
		if n < 1 || n > len(lines) {
			continue
		}
		trimmed := strings.TrimSpace(lines[n-1])
		if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "-") || strings.Contains(trimmed, ":") {
			continue
		}
		key, rest, found := strings.Cut(trimmed, " ")
		if found && rest != "" && yamlKeyPattern.MatchString(key) {
			return n, fmt.Sprintf("Line %d appears to be missing a ':' after '%s'. Did you mean '%s: %s'?", n, key, key, rest), true
		}
	}
	return 0, "", false
}
