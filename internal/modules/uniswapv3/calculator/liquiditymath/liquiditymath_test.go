package liquiditymath

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddDelta(t *testing.T) {
	got, err := AddDelta(big.NewInt(1), big.NewInt(0))
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Int64())

	got, err = AddDelta(big.NewInt(1), big.NewInt(-1))
	require.NoError(t, err)
	assert.Zero(t, got.Sign())

	_, err = AddDelta(big.NewInt(0), big.NewInt(-1))
	assert.ErrorIs(t, err, ErrLiquidityUnderflow)

	_, err = AddDelta(maxUint128, big.NewInt(1))
	assert.ErrorIs(t, err, ErrLiquidityOverflow)
}
