package ctxt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/kestrelgfx/splatsort/compute/sw"
)

func TestLoadSoftware(t *testing.T) {
	require.NoError(t, Load("software"))
	assert.NotNil(t, Driver())
	assert.NotNil(t, GPU())
	assert.True(t, Limits().SubgroupSupport, "software driver is expected to advertise subgroup support")
}

func TestLoadEmptyMatchesAny(t *testing.T) {
	require.NoError(t, Load(""))
}

func TestLoadNoMatch(t *testing.T) {
	prevDrv, prevGPU := Driver(), GPU()
	require.Error(t, Load("no-such-driver-xyz"), "expected an error for a nonexistent driver substring")
	assert.Same(t, prevDrv, Driver(), "a failed Load must not modify the previously loaded driver")
	assert.Same(t, prevGPU, GPU(), "a failed Load must not modify the previously loaded GPU")
}
