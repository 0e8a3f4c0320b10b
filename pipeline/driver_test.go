package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Urethramancer/ncdec/arch/x86"
	"github.com/Urethramancer/ncdec/fixtures"
	"github.com/Urethramancer/ncdec/ir"
	"github.com/Urethramancer/ncdec/ir/calling"
)

func TestDriverRunAnalyzesGcdFixtureEndToEnd(t *testing.T) {
	prog := fixtures.GCD()
	d := &Driver{
		Program:    prog,
		Arch:       x86.New(),
		Signatures: calling.NewSignatureRepository(),
	}

	results := d.Run()
	require.Len(t, results, 1)

	r := results[0]
	require.NoError(t, r.Err)
	assert.Equal(t, "gcd", r.Function.Name)
	assert.NotNil(t, r.Dataflow)
	assert.NotNil(t, r.Hooks)
	assert.NotNil(t, r.Structure)
	assert.NotNil(t, r.Liveness)
	assert.NotNil(t, r.Variables)

	// the base-case write to rax feeds the function's return value and
	// must survive liveness.
	for _, b := range r.Function.Blocks {
		for _, s := range b.Statements {
			if s.Kind == ir.Assignment && s.Left != nil && s.Left.Location.Domain == x86.RAX {
				assert.True(t, r.Liveness.IsLive(s.Left), "a write to rax should be live with no declared signature narrowing it away")
			}
		}
	}
}

func TestDriverRunOrdersResultsByEntryAddress(t *testing.T) {
	prog := fixtures.GCD()
	d := &Driver{
		Program:    prog,
		Arch:       x86.New(),
		Signatures: calling.NewSignatureRepository(),
		Workers:    4,
	}

	results := d.Run()
	require.Len(t, results, 1)
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i-1].Function.Addr, results[i].Function.Addr)
	}
}
