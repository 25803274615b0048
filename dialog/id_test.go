package dialog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewIDDeterministic(t *testing.T) {
	a := NewID("call1", "ltag", "rtag")
	b := NewID("call1", "ltag", "rtag")
	assert.Equal(t, a.Hash(), b.Hash())
	assert.True(t, a.Equal(b))
}

func TestNewIDDistinguishesComponents(t *testing.T) {
	a := NewID("call1", "ltag", "rtag")
	b := NewID("call1", "rtag", "ltag")
	assert.False(t, a.Equal(b), "swapped tags must not hash-collide into equality")
}

func TestIDNotEqualOnCallIDMismatch(t *testing.T) {
	a := NewID("call1", "ltag", "rtag")
	b := NewID("call2", "ltag", "rtag")
	assert.False(t, a.Equal(b))
}
