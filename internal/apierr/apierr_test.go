package apierr

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBadRequestCode(t *testing.T) {
	err := BadRequest("tool %q not allowed", "rm-rf")
	assert.Equal(t, CodeBadRequest, err.Code)
	assert.True(t, strings.Contains(err.Error(), "not allowed"))
}

func TestUpstreamWrapsCause(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := Upstream(cause, "refine call failed")
	assert.Equal(t, CodeUpstream, err.Code)
	assert.True(t, errors.Is(err, cause))
}

func TestTruncate(t *testing.T) {
	s := strings.Repeat("a", 600)
	got := Truncate(s, 500)
	assert.Equal(t, 500, len([]rune(got)))

	short := "fine"
	assert.Equal(t, short, Truncate(short, 500))
}
