package vote

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/werewolf-backend/internal/client/clienttest"
	"github.com/DoyleJ11/werewolf-backend/internal/game"
	"github.com/DoyleJ11/werewolf-backend/internal/id"
	"github.com/DoyleJ11/werewolf-backend/internal/lobby"
	"github.com/DoyleJ11/werewolf-backend/internal/protocol"
)

func TestFactionStateMachine(t *testing.T) {
	const a, b, x, y id.PlayerID = 1, 2, 3, 4
	s := newFactionState([]id.PlayerID{a, b}, []id.PlayerID{a, b, x, y})

	_, err := s.apply(x, protocol.FactionVote{Target: a})
	require.ErrorIs(t, err, ErrNotParticipating)

	_, err = s.apply(a, protocol.FactionLock{})
	require.ErrorIs(t, err, ErrNothingToLock)

	_, err = s.apply(a, protocol.FactionVote{Target: 99})
	require.ErrorIs(t, err, ErrIllegalTarget)

	f, err := s.apply(a, protocol.FactionVote{Target: x})
	require.NoError(t, err)
	require.Equal(t, protocol.FactionVoteChanged{Vote: x, VotedBy: a}, f)

	_, err = s.apply(a, protocol.FactionLock{})
	require.ErrorIs(t, err, ErrNotUnanimous, "b has not voted")

	_, err = s.apply(b, protocol.FactionVote{Target: y})
	require.NoError(t, err)
	_, err = s.apply(a, protocol.FactionLock{})
	require.ErrorIs(t, err, ErrNotUnanimous)
	require.Equal(t, VotingFor, s.voters[a].status)

	_, err = s.apply(b, protocol.FactionVote{Target: x})
	require.NoError(t, err)
	f, err = s.apply(a, protocol.FactionLock{})
	require.NoError(t, err)
	require.Equal(t, protocol.FactionVoteLocked{Vote: x, VotedBy: a}, f)
	_, done := s.result()
	require.False(t, done)

	_, err = s.apply(a, protocol.FactionVote{Target: y})
	require.ErrorIs(t, err, ErrVoteLocked)

	_, err = s.apply(b, protocol.FactionLock{})
	require.NoError(t, err)
	target, done := s.result()
	require.True(t, done)
	require.Equal(t, x, target)
}

func TestFactionLeave(t *testing.T) {
	const a, b, x id.PlayerID = 1, 2, 3
	s := newFactionState([]id.PlayerID{a, b}, []id.PlayerID{a, b, x})

	_, err := s.apply(a, protocol.FactionVote{Target: x})
	require.NoError(t, err)
	_, err = s.apply(a, protocol.FactionLock{})
	require.ErrorIs(t, err, ErrNotUnanimous)

	s.leave(b)
	_, err = s.apply(b, protocol.FactionVote{Target: x})
	require.ErrorIs(t, err, ErrNotParticipating)
	_, err = s.apply(a, protocol.FactionLock{})
	require.NoError(t, err)
	target, done := s.result()
	require.True(t, done)
	require.Equal(t, x, target)

	s.leave(a)
	_, done = s.result()
	require.False(t, done, "nobody left to agree")
}

func TestFactionStatusString(t *testing.T) {
	require.Equal(t, "locked_vote", LockedVote.String())
	require.Equal(t, "not_participating", NotParticipating.String())
}

func TestFactionVote(t *testing.T) {
	// a, b are wolves; x, y villagers; s watches.
	tb := newTable(t, game.RoleWerewolf, game.RoleWerewolf, game.RoleVillager, game.RoleVillager, game.RoleSpectator)
	a, b, s := tb.conn(0), tb.conn(1), tb.conn(4)
	x, y := tb.player(2), tb.player(3)

	done := make(chan *id.PlayerID, 1)
	go func() {
		victim, err := Faction(context.Background(), tb.l, FactionOptions{
			Role:  game.RoleWerewolf,
			Cause: game.CauseWerewolves,
		})
		if err == nil {
			done <- victim
		}
	}()

	aID, begin := clienttest.ExpectRequest[protocol.FactionVoteBegin](t, a)
	require.True(t, begin.CanVote)
	require.ElementsMatch(t, []id.PlayerID{tb.player(0), tb.player(1), x, y}, begin.Selectable)
	bID, _ := clienttest.ExpectRequest[protocol.FactionVoteBegin](t, b)
	_, begin = clienttest.ExpectRequest[protocol.FactionVoteBegin](t, s)
	require.False(t, begin.CanVote)

	a.Respond(t, aID, protocol.FactionVote{Target: x})
	_, changed := clienttest.ExpectFollowup[protocol.FactionVoteChanged](t, s)
	require.Equal(t, x, changed.Vote)

	b.Respond(t, bID, protocol.FactionVote{Target: y})
	_, changed = clienttest.ExpectFollowup[protocol.FactionVoteChanged](t, s)
	require.Equal(t, y, changed.Vote)

	a.Respond(t, aID, protocol.FactionLock{})
	require.Eventually(t, func() bool { return tb.logs.FilterMessage("rejected response").Len() == 1 },
		clienttest.Within, 10*time.Millisecond)

	b.Respond(t, bID, protocol.FactionVote{Target: x})
	clienttest.ExpectFollowup[protocol.FactionVoteChanged](t, s)
	a.Respond(t, aID, protocol.FactionLock{})
	_, locked := clienttest.ExpectFollowup[protocol.FactionVoteLocked](t, s)
	require.Equal(t, tb.player(0), locked.VotedBy)
	b.Respond(t, bID, protocol.FactionLock{})

	select {
	case victim := <-done:
		require.NotNil(t, victim)
		require.Equal(t, x, *victim)
	case <-time.After(clienttest.Within):
		t.Fatal("faction vote did not conclude")
	}
	_, finished := clienttest.ExpectFollowup[protocol.FactionVoteFinished](t, s)
	require.Equal(t, &x, finished.Vote)

	pending, err := lobby.AccessState(context.Background(), tb.l, func(d *game.Data, _ lobby.Directory) []game.Death {
		return d.PendingDeaths
	})
	require.NoError(t, err)
	require.Equal(t, []game.Death{{Player: x, Cause: game.CauseWerewolves}}, pending)

	// Villagers never see the wolves' vote.
	tb.conn(2).Quiet(t, 50*time.Millisecond, func(m protocol.ServerMessage) bool {
		_, ok := m.(protocol.InteractionRequest)
		return ok
	})
}

func TestFactionVoteTimesOut(t *testing.T) {
	tb := newTable(t, game.RoleWerewolf, game.RoleWerewolf, game.RoleVillager)

	done := make(chan *id.PlayerID, 1)
	go func() {
		victim, err := Faction(context.Background(), tb.l, FactionOptions{
			Role:    game.RoleWerewolf,
			Cause:   game.CauseWerewolves,
			Timeout: 50 * time.Millisecond,
		})
		if err == nil {
			done <- victim
		}
	}()

	select {
	case victim := <-done:
		require.Nil(t, victim)
	case <-time.After(clienttest.Within):
		t.Fatal("faction vote did not time out")
	}
	_, finished := clienttest.ExpectFollowup[protocol.FactionVoteFinished](t, tb.conn(0))
	require.Nil(t, finished.Vote)
}

func TestFactionVoteWithoutParticipants(t *testing.T) {
	tb := newTable(t, game.RoleVillager)
	victim, err := Faction(context.Background(), tb.l, FactionOptions{Role: game.RoleWerewolf})
	require.NoError(t, err)
	require.Nil(t, victim)
}

func TestFactionVoteSurvivesDeparture(t *testing.T) {
	tb := newTable(t, game.RoleWerewolf, game.RoleWerewolf, game.RoleVillager)
	a, b := tb.conn(0), tb.conn(1)
	x := tb.player(2)

	done := make(chan *id.PlayerID, 1)
	go func() {
		victim, err := Faction(context.Background(), tb.l, FactionOptions{
			Role:  game.RoleWerewolf,
			Cause: game.CauseWerewolves,
		})
		if err == nil {
			done <- victim
		}
	}()

	aID, _ := clienttest.ExpectRequest[protocol.FactionVoteBegin](t, a)
	clienttest.ExpectRequest[protocol.FactionVoteBegin](t, b)
	b.Hangup()
	require.Eventually(t, func() bool { return tb.logs.FilterMessage("player left during interaction").Len() == 1 },
		clienttest.Within, 10*time.Millisecond)

	a.Respond(t, aID, protocol.FactionVote{Target: x})
	a.Respond(t, aID, protocol.FactionLock{})

	select {
	case victim := <-done:
		require.NotNil(t, victim)
		require.Equal(t, x, *victim)
	case <-time.After(clienttest.Within):
		t.Fatal("faction vote waited on a player who left")
	}
}
