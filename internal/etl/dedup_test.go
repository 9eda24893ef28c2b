package etl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type keyed string

func (k keyed) Fingerprint() string { return "key:" + string(k) }

func TestFingerprint(t *testing.T) {
	a := map[string]any{"id": 1, "title": "x"}
	b := map[string]any{"title": "x", "id": 1}
	c := map[string]any{"id": 2, "title": "x"}

	assert.Equal(t, Fingerprint(a), Fingerprint(b))
	assert.NotEqual(t, Fingerprint(a), Fingerprint(c))
	assert.Len(t, Fingerprint(a), 64)
	assert.Equal(t, "key:abc", Fingerprint(keyed("abc")))
}

func TestFingerprint_Unencodable(t *testing.T) {
	ch := make(chan int)

	assert.NotPanics(t, func() { Fingerprint(ch) })
	assert.Equal(t, Fingerprint(ch), Fingerprint(ch))
}
