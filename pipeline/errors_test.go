package pipeline

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestLocalAnomalyUnwrapsToCause(t *testing.T) {
	cause := errors.New("unresolved dereference")
	err := NewLocalAnomaly("gcd", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "gcd")
	assert.Contains(t, err.Error(), "unresolved dereference")
}

func TestFunctionFatalUnwrapsToCause(t *testing.T) {
	cause := errors.New("malformed CFG")
	err := NewFunctionFatal("gcd", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "gcd")
}

func TestCoreFatalUnwrapsToCause(t *testing.T) {
	cause := errors.New("cross domain merge")
	err := NewCoreFatal(cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "core invariant violated")
}

func TestCancelledErrorNamesTheFunction(t *testing.T) {
	err := &Cancelled{Function: "gcd"}
	assert.Contains(t, err.Error(), "gcd")
}
