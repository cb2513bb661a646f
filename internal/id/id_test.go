package id

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocate_NeverReturnsLiveID(t *testing.T) {
	live := make(map[PlayerID]struct{})
	for i := 0; i < 1000; i++ {
		next := Allocate(live)
		_, taken := live[next]
		require.False(t, taken, "allocated id %s is already live", next)
		live[next] = struct{}{}
	}
	require.Len(t, live, 1000)
}

func TestAllocate_WorksForAnyValueType(t *testing.T) {
	live := map[InteractionID]chan int{}
	got := Allocate(live)
	_, taken := live[got]
	require.False(t, taken)
}

func TestID_TextRoundTrip(t *testing.T) {
	cases := []LobbyID{0, 1, 0xdeadbeef, ^LobbyID(0)}
	for _, want := range cases {
		raw, err := json.Marshal(want)
		require.NoError(t, err)

		var got LobbyID
		require.NoError(t, json.Unmarshal(raw, &got))
		require.Equal(t, want, got)
	}
}

func TestID_AsMapKey(t *testing.T) {
	in := map[PlayerID]bool{7: true, 0xffff: false}
	raw, err := json.Marshal(in)
	require.NoError(t, err)

	var out map[PlayerID]bool
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Equal(t, in, out)
}

func TestUnmarshalText_RejectsGarbage(t *testing.T) {
	var lid LobbyID
	require.Error(t, lid.UnmarshalText([]byte("not-hex")))

	require.NoError(t, lid.UnmarshalText([]byte("ff")))
	require.Equal(t, LobbyID(255), lid)
}
