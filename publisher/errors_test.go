package publisher

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTrimBody(t *testing.T) {
	assert.Equal(t, "short", trimBody([]byte("  short\n")))

	long := strings.Repeat("界", bodyLimit+5)
	got := trimBody([]byte(long))
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("界", bodyLimit)+"...", got)

	exact := strings.Repeat("é", bodyLimit)
	assert.Equal(t, exact, trimBody([]byte(exact)))
}
