package decoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMethodCodeForStoredAlwaysWins(t *testing.T) {
	assert.Equal(t, methodStore, methodCodeFor(true, "rar5.0"))
	assert.Equal(t, methodStore, methodCodeFor(true, "stored"))
}

func TestMethodCodeForCompressionGeneration(t *testing.T) {
	assert.Equal(t, methodNormal, methodCodeFor(false, "rar2.0"))
	assert.Equal(t, methodGood, methodCodeFor(false, "rar2.9"))
	assert.Equal(t, methodBest, methodCodeFor(false, "rar5.0"))
	assert.Equal(t, methodBest, methodCodeFor(false, "rar7.0"))
}

func TestMethodCodeForUnknownGenerationIsZero(t *testing.T) {
	assert.Equal(t, 0, methodCodeFor(false, "rar3.6-unknown"))
}
