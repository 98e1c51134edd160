package helper

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollapseSpaces(t *testing.T) {
	assert.Equal(t, "a b c", CollapseSpaces("a  \t b\tc"))
	assert.Equal(t, "line one\n line two", CollapseSpaces("line   one\n\t line two"))
}

func TestCollapseBlankLines(t *testing.T) {
	assert.Equal(t, "a\n\nb", CollapseBlankLines("a  \r\n\n\n\nb"))
}

func TestStripEmoji(t *testing.T) {
	assert.Equal(t, "Done ", StripEmoji("Done ✅"))
}
