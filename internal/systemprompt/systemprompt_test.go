package systemprompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefault_IncludesViewportLineCount(t *testing.T) {
	p := Default(10)
	assert.Contains(t, p, "21 lines around the edited region")
}

func TestDefault_DescribesEditEncodings(t *testing.T) {
	p := Default(5)
	assert.Contains(t, p, "STARTi\\")
	assert.Contains(t, p, "$a\\")
	assert.Contains(t, p, "<stdout>")
}
