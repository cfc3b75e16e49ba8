package types_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stormzy/iroha/types"
)

func TestRoundOrdering(t *testing.T) {
	testCases := []struct {
		a, b   types.Round
		before bool
	}{
		{types.NewRound(1, 1), types.NewRound(1, 2), true},
		{types.NewRound(1, 9), types.NewRound(2, 1), true},
		{types.NewRound(2, 1), types.NewRound(1, 9), false},
		{types.NewRound(3, 4), types.NewRound(3, 4), false},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.before, tc.a.Before(tc.b), "%s before %s", tc.a, tc.b)
	}
}

func TestRoundSuccessors(t *testing.T) {
	round := types.NewRound(5, 3)
	require.Equal(t, types.NewRound(5, 4), round.NextReject())
	require.Equal(t, types.NewRound(6, types.FirstReject), round.NextBlock())
}
