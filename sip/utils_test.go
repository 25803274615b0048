package sip

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestASCIIToLower(t *testing.T) {
	assert.Equal(t, "cseq", ASCIIToLower("CSeq"))
	assert.Equal(t, "already-lower", ASCIIToLower("already-lower"))
}

func TestRandStringBytesMask(t *testing.T) {
	var sb strings.Builder
	s := RandStringBytesMask(&sb, 12)
	assert.Len(t, s, 12)
	for _, c := range s {
		assert.Contains(t, letterBytes, string(c))
	}
}

func TestFindUnescaped(t *testing.T) {
	assert.Equal(t, 4, findUnescaped("user@host", '@'))
	assert.Equal(t, -1, findUnescaped("noatsign", '@'))
}
