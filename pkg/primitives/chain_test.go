package primitives

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProviderMetadata_FinalityMargin(t *testing.T) {
	meta, err := NewProviderMetadata("ethereum", 1, 10, 2000, 3*time.Second, false)
	require.NoError(t, err)

	assert.Equal(t, uint64(2010), meta.BlockConfirmations())
	assert.Equal(t, uint64(2000), meta.GetLogsBatchSize())
	assert.GreaterOrEqual(t, meta.BlockConfirmations(), meta.GetLogsBatchSize())
	assert.Equal(t, 3*time.Second, meta.CallInterval())
	assert.Equal(t, "ethereum", meta.Name())
	assert.Equal(t, ChainID(1), meta.ID())
}

func TestNewProviderMetadata_Direction(t *testing.T) {
	native, err := NewProviderMetadata("native", 3068, 1, 1, time.Second, true)
	require.NoError(t, err)
	assert.Equal(t, Inbound, native.Direction())
	assert.True(t, native.IsNative())

	external, err := NewProviderMetadata("bsc", 56, 1, 1, time.Second, false)
	require.NoError(t, err)
	assert.Equal(t, Outbound, external.Direction())
	assert.False(t, external.IsNative())
}

func TestNewProviderMetadata_Overflow(t *testing.T) {
	meta, err := NewProviderMetadata("ethereum", 1, math.MaxUint64, 1, time.Second, false)
	require.Error(t, err)
	assert.Nil(t, meta)
	assert.True(t, errors.Is(err, ErrConfirmationOverflow))

	meta, err = NewProviderMetadata("ethereum", 1, math.MaxUint64-5, 5, time.Second, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), meta.BlockConfirmations())
}

func TestNewProviderMetadata_InvalidIdentity(t *testing.T) {
	_, err := NewProviderMetadata("", 1, 1, 1, time.Second, false)
	assert.ErrorIs(t, err, ErrInvalidChainMetadata)

	_, err = NewProviderMetadata("ethereum", 0, 1, 1, time.Second, false)
	assert.ErrorIs(t, err, ErrInvalidChainMetadata)
}

func TestProviderMetadata_SafeBlock(t *testing.T) {
	meta, err := NewProviderMetadata("ethereum", 1, 10, 90, time.Second, false)
	require.NoError(t, err)

	_, ok := meta.SafeBlock(99)
	assert.False(t, ok)

	safe, ok := meta.SafeBlock(100)
	assert.True(t, ok)
	assert.Equal(t, uint64(0), safe)

	safe, ok = meta.SafeBlock(1234)
	assert.True(t, ok)
	assert.Equal(t, uint64(1134), safe)
}
