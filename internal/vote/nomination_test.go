package vote

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/DoyleJ11/werewolf-backend/internal/client/clienttest"
	"github.com/DoyleJ11/werewolf-backend/internal/game"
	"github.com/DoyleJ11/werewolf-backend/internal/id"
	"github.com/DoyleJ11/werewolf-backend/internal/lobby"
	"github.com/DoyleJ11/werewolf-backend/internal/protocol"
)

func ptr(p id.PlayerID) *id.PlayerID { return &p }

func TestNominationStateMachine(t *testing.T) {
	s := newNominationState([]id.PlayerID{1, 2, 3}, []id.PlayerID{1, 2})

	_, err := s.apply(3, protocol.Nominate{Target: ptr(1)})
	require.ErrorIs(t, err, ErrNotParticipating)

	_, err = s.apply(1, protocol.Vote{Target: 2})
	require.ErrorIs(t, err, ErrNotVotingYet)

	_, err = s.apply(1, protocol.Nominate{Target: ptr(9)})
	require.ErrorIs(t, err, ErrIllegalTarget)

	f, err := s.apply(1, protocol.Nominate{Target: ptr(3)})
	require.NoError(t, err)
	require.Equal(t, protocol.Nominated{Nominee: ptr(3), Nominator: 1}, f)
	require.False(t, s.nominationsDone())

	_, err = s.apply(1, protocol.Nominate{Target: ptr(2)})
	require.ErrorIs(t, err, ErrAlreadyNominated)

	_, err = s.apply(2, protocol.Nominate{})
	require.NoError(t, err)
	require.True(t, s.nominationsDone())
	require.Equal(t, []id.PlayerID{3}, s.nominees)

	require.Equal(t, []id.PlayerID{3}, s.startVoting())
	_, err = s.apply(2, protocol.Vote{Target: 1})
	require.ErrorIs(t, err, ErrIllegalTarget, "only nominees can be voted for")

	_, err = s.apply(2, protocol.Vote{Target: 3})
	require.NoError(t, err)
	_, err = s.apply(2, protocol.Vote{Target: 3})
	require.ErrorIs(t, err, ErrAlreadyVoted)

	_, err = s.apply(1, protocol.FactionLock{})
	require.ErrorIs(t, err, ErrUnexpectedResponse)

	_, err = s.apply(1, protocol.Vote{Target: 3})
	require.NoError(t, err)
	require.True(t, s.votesDone())
	require.Equal(t, []protocol.Ballot{{Voter: 1, Target: 3}, {Voter: 2, Target: 3}}, s.ballots())
}

func TestNominationForfeits(t *testing.T) {
	s := newNominationState([]id.PlayerID{1, 2, 3}, []id.PlayerID{1, 2, 3})
	_, err := s.apply(2, protocol.Nominate{Target: ptr(1)})
	require.NoError(t, err)

	abstained := s.abstainPending()
	require.Equal(t, []protocol.FollowupData{
		protocol.Nominated{Nominator: 1},
		protocol.Nominated{Nominator: 3},
	}, abstained)
	require.True(t, s.nominationsDone())

	s.startVoting()
	_, err = s.apply(3, protocol.Vote{Target: 1})
	require.NoError(t, err)
	s.forfeitPending()
	require.True(t, s.votesDone())
	require.Equal(t, []protocol.Ballot{{Voter: 3, Target: 1}}, s.ballots())
}

func TestNominationWithoutNominees(t *testing.T) {
	s := newNominationState([]id.PlayerID{3, 1, 2}, []id.PlayerID{1, 2})
	_, err := s.apply(1, protocol.Nominate{})
	require.NoError(t, err)
	_, err = s.apply(2, protocol.Nominate{})
	require.NoError(t, err)
	require.Empty(t, s.nominees)

	require.Equal(t, []id.PlayerID{1, 2, 3}, s.startVoting())
	_, err = s.apply(1, protocol.Vote{Target: 3})
	require.NoError(t, err)
	_, err = s.apply(2, protocol.Vote{Target: 9})
	require.ErrorIs(t, err, ErrIllegalTarget)
	_, err = s.apply(2, protocol.Vote{Target: 1})
	require.NoError(t, err)
	require.True(t, s.votesDone())
	require.Equal(t, []protocol.Ballot{{Voter: 1, Target: 3}, {Voter: 2, Target: 1}}, s.ballots())
}

func TestNominationLeave(t *testing.T) {
	s := newNominationState([]id.PlayerID{1, 2, 3}, []id.PlayerID{1, 2, 3})
	_, err := s.apply(1, protocol.Nominate{Target: ptr(2)})
	require.NoError(t, err)

	require.Equal(t, protocol.Nominated{Nominator: 3}, s.leave(3))
	require.Nil(t, s.leave(9))
	_, err = s.apply(3, protocol.Nominate{})
	require.ErrorIs(t, err, ErrNotParticipating)
	require.False(t, s.nominationsDone())

	_, err = s.apply(2, protocol.Nominate{})
	require.NoError(t, err)
	require.True(t, s.nominationsDone())

	s.startVoting()
	_, err = s.apply(1, protocol.Vote{Target: 2})
	require.NoError(t, err)
	require.Nil(t, s.leave(1), "a cast ballot stands")
	require.Nil(t, s.leave(2))
	require.True(t, s.votesDone())
	require.Equal(t, []protocol.Ballot{{Voter: 1, Target: 2}}, s.ballots())
}

func TestTally(t *testing.T) {
	tests := []struct {
		name    string
		ballots []protocol.Ballot
		want    id.PlayerID
		ok      bool
	}{
		{name: "no ballots"},
		{
			name:    "strict majority",
			ballots: []protocol.Ballot{{Voter: 1, Target: 2}, {Voter: 2, Target: 3}, {Voter: 3, Target: 2}},
			want:    2,
			ok:      true,
		},
		{
			name:    "tie",
			ballots: []protocol.Ballot{{Voter: 1, Target: 2}, {Voter: 2, Target: 3}},
		},
		{
			name:    "tie below the top",
			ballots: []protocol.Ballot{{Voter: 1, Target: 2}, {Voter: 2, Target: 2}, {Voter: 3, Target: 3}, {Voter: 4, Target: 1}},
			want:    2,
			ok:      true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Tally(tt.ballots)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

type table struct {
	l     *lobby.Lobby
	logs  *observer.ObservedLogs
	conns map[id.PlayerID]*clienttest.Conn
	order []id.PlayerID
}

// newTable seats one player per role. Spectators are seated dead, everybody
// else alive.
func newTable(t *testing.T, roles ...game.Role) *table {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	core, logs := observer.New(zap.InfoLevel)
	tb := &table{
		l:     lobby.New(ctx, lobby.Options{ID: 7, Logger: zap.New(core)}),
		logs:  logs,
		conns: make(map[id.PlayerID]*clienttest.Conn),
	}
	for range roles {
		conn := clienttest.NewConn()
		require.NoError(t, tb.l.Send(ctx, lobby.NewConnection{Conn: conn}))
		joined := clienttest.Expect[protocol.JoinedLobby](t, conn)
		tb.conns[joined.PlayerID] = conn
		tb.order = append(tb.order, joined.PlayerID)
	}
	require.NoError(t, lobby.Access(ctx, tb.l, func(d *game.Data, _ lobby.Directory) {
		for i, pid := range tb.order {
			d.Players[pid].RoleData = game.NewRoleData(roles[i])
			d.Players[pid].IsAlive = roles[i] != game.RoleSpectator
		}
	}))
	return tb
}

func (tb *table) conn(i int) *clienttest.Conn { return tb.conns[tb.order[i]] }

func (tb *table) player(i int) id.PlayerID { return tb.order[i] }

func TestNominationRound(t *testing.T) {
	tb := newTable(t, game.RoleVillager, game.RoleVillager, game.RoleVillager, game.RoleSpectator)

	done := make(chan []protocol.Ballot, 1)
	go func() {
		ballots, err := Nomination(context.Background(), tb.l, 0)
		if err == nil {
			done <- ballots
		}
	}()

	iids := make([]id.InteractionID, 4)
	for i := range iids {
		var begin protocol.NominationBegin
		iids[i], begin = clienttest.ExpectRequest[protocol.NominationBegin](t, tb.conn(i))
		require.Equal(t, i < 3, begin.CanVote)
		require.Len(t, begin.Participants, 3)
	}

	// The spectator may not take part.
	tb.conn(3).Respond(t, iids[3], protocol.Nominate{Target: ptr(tb.player(0))})

	tb.conn(0).Respond(t, iids[0], protocol.Nominate{Target: ptr(tb.player(2))})
	tb.conn(1).Respond(t, iids[1], protocol.Nominate{})
	tb.conn(2).Respond(t, iids[2], protocol.Nominate{Target: ptr(tb.player(0))})

	for i := range 4 {
		_, started := clienttest.ExpectFollowup[protocol.VotingStarted](t, tb.conn(i))
		require.ElementsMatch(t, []id.PlayerID{tb.player(2), tb.player(0)}, started.Nominees)
	}

	tb.conn(0).Respond(t, iids[0], protocol.Vote{Target: tb.player(2)})
	tb.conn(1).Respond(t, iids[1], protocol.Vote{Target: tb.player(2)})
	tb.conn(2).Respond(t, iids[2], protocol.Vote{Target: tb.player(0)})

	var ballots []protocol.Ballot
	select {
	case ballots = <-done:
	case <-time.After(clienttest.Within):
		t.Fatal("nomination did not finish")
	}
	require.Len(t, ballots, 3)
	target, ok := Tally(ballots)
	require.True(t, ok)
	require.Equal(t, tb.player(2), target)

	for i := range 4 {
		_, result := clienttest.ExpectFollowup[protocol.NominationResult](t, tb.conn(i))
		require.Equal(t, ballots, result.Ballots)
		closed := clienttest.Expect[protocol.InteractionClose](t, tb.conn(i))
		require.Equal(t, iids[i], closed.ID)
	}
	require.Positive(t, tb.logs.FilterMessage("rejected response").Len())
}

func TestNominationTimeout(t *testing.T) {
	tb := newTable(t, game.RoleVillager, game.RoleVillager)

	done := make(chan []protocol.Ballot, 1)
	go func() {
		ballots, err := Nomination(context.Background(), tb.l, 100*time.Millisecond)
		if err == nil {
			done <- ballots
		}
	}()

	iid, _ := clienttest.ExpectRequest[protocol.NominationBegin](t, tb.conn(0))
	clienttest.ExpectRequest[protocol.NominationBegin](t, tb.conn(1))
	tb.conn(0).Respond(t, iid, protocol.Nominate{Target: ptr(tb.player(1))})

	_, abstained := clienttest.ExpectFollowup[protocol.Nominated](t, tb.conn(1))
	require.Equal(t, tb.player(0), abstained.Nominator)
	_, abstained = clienttest.ExpectFollowup[protocol.Nominated](t, tb.conn(1))
	require.Equal(t, tb.player(1), abstained.Nominator)
	require.Nil(t, abstained.Nominee)

	select {
	case ballots := <-done:
		require.Empty(t, ballots)
	case <-time.After(clienttest.Within):
		t.Fatal("nomination did not time out")
	}
}

func TestNominationCancelled(t *testing.T) {
	tb := newTable(t, game.RoleVillager)
	ctx, cancel := context.WithCancel(context.Background())

	errs := make(chan error, 1)
	go func() {
		_, err := Nomination(ctx, tb.l, 0)
		errs <- err
	}()
	clienttest.ExpectRequest[protocol.NominationBegin](t, tb.conn(0))
	cancel()

	select {
	case err := <-errs:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(clienttest.Within):
		t.Fatal("nomination ignored cancellation")
	}
	clienttest.Expect[protocol.InteractionClose](t, tb.conn(0))
}

func TestNominationEveryoneAbstains(t *testing.T) {
	tb := newTable(t, game.RoleVillager, game.RoleVillager, game.RoleVillager)

	done := make(chan []protocol.Ballot, 1)
	go func() {
		ballots, err := Nomination(context.Background(), tb.l, 0)
		if err == nil {
			done <- ballots
		}
	}()

	iids := make([]id.InteractionID, 3)
	for i := range iids {
		iids[i], _ = clienttest.ExpectRequest[protocol.NominationBegin](t, tb.conn(i))
	}
	for i := range iids {
		tb.conn(i).Respond(t, iids[i], protocol.Nominate{})
	}

	for i := range iids {
		_, started := clienttest.ExpectFollowup[protocol.VotingStarted](t, tb.conn(i))
		require.ElementsMatch(t, tb.order, started.Nominees, "everybody alive can be voted for")
	}
	tb.conn(0).Respond(t, iids[0], protocol.Vote{Target: tb.player(1)})
	tb.conn(1).Respond(t, iids[1], protocol.Vote{Target: tb.player(2)})
	tb.conn(2).Respond(t, iids[2], protocol.Vote{Target: tb.player(1)})

	select {
	case ballots := <-done:
		require.Len(t, ballots, 3)
		target, ok := Tally(ballots)
		require.True(t, ok)
		require.Equal(t, tb.player(1), target)
	case <-time.After(clienttest.Within):
		t.Fatal("nomination did not finish")
	}
}

func TestNominationVoterLeaves(t *testing.T) {
	tb := newTable(t, game.RoleVillager, game.RoleVillager, game.RoleVillager)

	done := make(chan []protocol.Ballot, 1)
	go func() {
		ballots, err := Nomination(context.Background(), tb.l, 0)
		if err == nil {
			done <- ballots
		}
	}()

	iids := make([]id.InteractionID, 3)
	for i := range iids {
		iids[i], _ = clienttest.ExpectRequest[protocol.NominationBegin](t, tb.conn(i))
	}
	tb.conn(0).Respond(t, iids[0], protocol.Nominate{Target: ptr(tb.player(1))})
	tb.conn(1).Respond(t, iids[1], protocol.Nominate{})
	tb.conn(2).Hangup()

	_, abstained := clienttest.ExpectFollowup[protocol.Nominated](t, tb.conn(0))
	for abstained.Nominator != tb.player(2) {
		_, abstained = clienttest.ExpectFollowup[protocol.Nominated](t, tb.conn(0))
	}
	require.Nil(t, abstained.Nominee)

	clienttest.ExpectFollowup[protocol.VotingStarted](t, tb.conn(0))
	tb.conn(0).Respond(t, iids[0], protocol.Vote{Target: tb.player(1)})
	tb.conn(1).Respond(t, iids[1], protocol.Vote{Target: tb.player(1)})

	select {
	case ballots := <-done:
		require.Equal(t, []protocol.Ballot{
			{Voter: tb.player(0), Target: tb.player(1)},
			{Voter: tb.player(1), Target: tb.player(1)},
		}, ballots)
	case <-time.After(clienttest.Within):
		t.Fatal("nomination waited on a player who left")
	}
	require.Equal(t, 1, tb.logs.FilterMessage("player left during interaction").Len())
}
