package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignatureIsRotationInvariant(t *testing.T) {
	a := Opportunity{Path: []Currency{"A", "B", "C", "A"}}
	b := Opportunity{Path: []Currency{"B", "C", "A", "B"}}
	c := Opportunity{Path: []Currency{"C", "A", "B", "C"}}

	assert.Equal(t, "A>B>C>A", a.Signature())
	assert.Equal(t, a.Signature(), b.Signature())
	assert.Equal(t, a.Signature(), c.Signature())
	assert.Equal(t, Currency("A"), c.Start())
}

func TestSignaturePreservesDirection(t *testing.T) {
	fwd := Opportunity{Path: []Currency{"A", "B", "C", "A"}}
	rev := Opportunity{Path: []Currency{"A", "C", "B", "A"}}

	assert.NotEqual(t, fwd.Signature(), rev.Signature())
}

func TestNetFromWeight(t *testing.T) {
	assert.InDelta(t, 0.0, NetFromWeight(0), 1e-15)
	assert.Greater(t, NetFromWeight(-0.01), 0.0)
	assert.Less(t, NetFromWeight(0.01), 0.0)
}

func TestCloneIsDeep(t *testing.T) {
	o := Opportunity{Path: []Currency{"A", "B", "A"}}
	c := o.Clone()
	c.Path[1] = "Z"

	assert.Equal(t, Currency("B"), o.Path[1])
}

func TestConfigErrorOrNil(t *testing.T) {
	var ce ConfigError
	assert.NoError(t, ce.OrNil())

	ce.Add("min_hops (%d) > max_hops (%d)", 5, 3)
	err := ce.OrNil()
	assert.EqualError(t, err, "config: min_hops (5) > max_hops (3)")
}
