package sip

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRouteSetServerOrderIsInsertionOrder(t *testing.T) {
	var rs RouteSet
	rs.Clear(false)
	rs.Add("sip:a@proxy1.example.org;lr")
	rs.Add("sip:b@proxy2.example.org;lr")

	assert.Equal(t, "sip:a@proxy1.example.org;lr", rs.At(0))
	assert.Equal(t, "sip:b@proxy2.example.org;lr", rs.At(1))
}

// Invariant 7 (base spec §8): for a route set collected from a response,
// UAC iteration order is the reverse of insertion order.
func TestRouteSetClientOrderIsReversed(t *testing.T) {
	var rs RouteSet
	rs.Clear(true)
	rs.Add("sip:a@proxy1.example.org;lr")
	rs.Add("sip:b@proxy2.example.org;lr")

	assert.Equal(t, "sip:b@proxy2.example.org;lr", rs.At(0))
	assert.Equal(t, "sip:a@proxy1.example.org;lr", rs.At(1))
}

func TestRouteSetCopyIsDeepAndPreservesDirection(t *testing.T) {
	var rs RouteSet
	rs.Clear(true)
	rs.Add("sip:a@proxy1.example.org;lr")

	cp := rs.Copy()
	rs.Add("sip:b@proxy2.example.org;lr")

	assert.Equal(t, 1, cp.Len())
	assert.Equal(t, 2, rs.Len())
	assert.True(t, cp.Reverse())
}

func TestRouteSetClearResets(t *testing.T) {
	var rs RouteSet
	rs.Clear(false)
	rs.Add("sip:a@proxy1.example.org;lr")
	rs.Clear(true)
	assert.Equal(t, 0, rs.Len())
	assert.True(t, rs.Reverse())
}
