package configloader

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnhanceConfigErrorMissingColon(t *testing.T) {
	content := []byte("server:\n  listen \":9090\"\n  burst: 3\n")
	err := EnhanceConfigError("deploybot.yaml", "yaml", content, errors.New("yaml: line 3: mapping values are not allowed in this context"))

	msg := err.Error()
	assert.Contains(t, msg, "YAML syntax error in deploybot.yaml")
	assert.Contains(t, msg, "2 |   listen \":9090\"")
	assert.Contains(t, msg, "missing a ':' after 'listen'")
}

func TestEnhanceConfigErrorTabs(t *testing.T) {
	content := []byte("server:\n\tlisten: x\n")
	err := EnhanceConfigError("deploybot.yaml", "yaml", content, errors.New("yaml: line 2: found character that cannot start any token"))

	assert.Contains(t, err.Error(), "spaces for indentation")
	assert.Contains(t, err.Error(), "→   listen: x")
}

func TestEnhanceConfigErrorColumnCaret(t *testing.T) {
	content := []byte("a: 1\nb: [\n")
	err := EnhanceConfigError("c.yaml", "yaml", content, errors.New("yaml: line 2: column 4: did not find expected node content"))

	assert.Contains(t, err.Error(), "^ did not find expected node content")
}

func TestEnhanceConfigErrorPassThrough(t *testing.T) {
	orig := errors.New("invalid character '}'")

	err := EnhanceConfigError("c.json", "json", nil, orig)
	assert.ErrorIs(t, err, orig)

	err = EnhanceConfigError("c.yaml", "yaml", nil, orig)
	assert.ErrorIs(t, err, orig)
}
