package steamid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want uint64
		err  bool
	}{
		{"STEAM_0:1:12345", 76561197960290419, false},
		{"STEAM_1:0:0", 76561197960265728, false},
		{"STEAM_6:0:1", 0, true},
		{"steam_0:1:1", 0, true},
		{"STEAM_0:2:1", 0, true},
		{"76561197960290419", 0, true},
		{"", 0, true},
	}
	for _, tc := range cases {
		got, err := Parse(tc.in)
		if tc.err {
			require.ErrorIs(t, err, ErrInvalid, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}
}

func TestSteam2RoundTrip(t *testing.T) {
	id, err := Parse("STEAM_0:1:12345")
	require.NoError(t, err)
	if got := Steam2(id); got != "STEAM_1:1:12345" {
		t.Fatalf("Steam2 = %q", got)
	}
}
