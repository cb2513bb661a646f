package vote

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/werewolf-backend/internal/client"
	"github.com/DoyleJ11/werewolf-backend/internal/game"
	"github.com/DoyleJ11/werewolf-backend/internal/id"
	"github.com/DoyleJ11/werewolf-backend/internal/lobby"
	"github.com/DoyleJ11/werewolf-backend/internal/protocol"
)

var (
	ErrNotParticipating   = errors.New("player is not participating")
	ErrAlreadyNominated   = errors.New("player already nominated")
	ErrNotVotingYet       = errors.New("voting has not started")
	ErrAlreadyVoted       = errors.New("player already voted")
	ErrIllegalTarget      = errors.New("illegal target")
	ErrUnexpectedResponse = errors.New("unexpected response")
)

type NominationStatus int

const (
	NotVoting NominationStatus = iota
	NominationPending
	NominationFinished
	VoteFinished
)

type nominationVoter struct {
	status  NominationStatus
	nominee *id.PlayerID
	target  id.PlayerID
}

// nominationState is the nomination vote's state machine. It only changes
// through apply and the timeout helpers.
type nominationState struct {
	voters     map[id.PlayerID]*nominationVoter
	targets    map[id.PlayerID]bool
	nominees   []id.PlayerID
	candidates []id.PlayerID
	voting     bool
}

// newNominationState lets voters nominate any of targets. Players outside
// voters are observers.
func newNominationState(targets, voters []id.PlayerID) *nominationState {
	s := &nominationState{
		voters:  make(map[id.PlayerID]*nominationVoter, len(voters)),
		targets: make(map[id.PlayerID]bool, len(targets)),
	}
	for _, pid := range targets {
		s.targets[pid] = true
	}
	for _, pid := range voters {
		s.voters[pid] = &nominationVoter{status: NominationPending}
	}
	return s
}

func (s *nominationState) apply(from id.PlayerID, data protocol.ResponseData) (protocol.FollowupData, error) {
	v, ok := s.voters[from]
	if !ok || v.status == NotVoting {
		return nil, ErrNotParticipating
	}

	switch r := data.(type) {
	case protocol.Nominate:
		if v.status != NominationPending {
			return nil, ErrAlreadyNominated
		}
		if r.Target != nil && !s.targets[*r.Target] {
			return nil, fmt.Errorf("%w: %s", ErrIllegalTarget, *r.Target)
		}
		v.status = NominationFinished
		v.nominee = r.Target
		if r.Target != nil && !slices.Contains(s.nominees, *r.Target) {
			s.nominees = append(s.nominees, *r.Target)
		}
		return protocol.Nominated{Nominee: r.Target, Nominator: from}, nil

	case protocol.Vote:
		switch {
		case v.status == VoteFinished:
			return nil, ErrAlreadyVoted
		case !s.voting:
			return nil, ErrNotVotingYet
		case !slices.Contains(s.candidates, r.Target):
			return nil, fmt.Errorf("%w: %s", ErrIllegalTarget, r.Target)
		}
		v.status = VoteFinished
		v.target = r.Target
		return protocol.VoteCast{Voter: from, Target: r.Target}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnexpectedResponse, data.MessageType())
}

// startVoting ends the nomination round and returns who can be voted for:
// the nominees, or every target when nobody was nominated.
func (s *nominationState) startVoting() []id.PlayerID {
	s.voting = true
	if len(s.nominees) > 0 {
		s.candidates = slices.Clone(s.nominees)
	} else {
		s.candidates = make([]id.PlayerID, 0, len(s.targets))
		for pid := range s.targets {
			s.candidates = append(s.candidates, pid)
		}
		slices.Sort(s.candidates)
	}
	return s.candidates
}

// leave handles a voter whose client went away. A pending nomination becomes
// an abstention, a pending vote is dropped and a cast ballot stands.
func (s *nominationState) leave(pid id.PlayerID) protocol.FollowupData {
	v, ok := s.voters[pid]
	if !ok {
		return nil
	}
	switch v.status {
	case NominationPending:
		v.status = NotVoting
		return protocol.Nominated{Nominator: pid}
	case NominationFinished:
		v.status = NotVoting
	}
	return nil
}

func (s *nominationState) count(status NominationStatus) int {
	n := 0
	for _, v := range s.voters {
		if v.status == status {
			n++
		}
	}
	return n
}

func (s *nominationState) nominationsDone() bool { return s.count(NominationPending) == 0 }
func (s *nominationState) votesDone() bool       { return s.count(NominationFinished) == 0 }

// abstainPending turns every missing nomination into an abstention.
func (s *nominationState) abstainPending() []protocol.FollowupData {
	var out []protocol.FollowupData
	for _, pid := range s.sortedVoters() {
		if v := s.voters[pid]; v.status == NominationPending {
			v.status = NominationFinished
			out = append(out, protocol.Nominated{Nominator: pid})
		}
	}
	return out
}

// forfeitPending drops everyone who has not voted from the result.
func (s *nominationState) forfeitPending() {
	for _, v := range s.voters {
		if v.status == NominationFinished {
			v.status = NotVoting
		}
	}
}

func (s *nominationState) ballots() []protocol.Ballot {
	var out []protocol.Ballot
	for _, pid := range s.sortedVoters() {
		if v := s.voters[pid]; v.status == VoteFinished {
			out = append(out, protocol.Ballot{Voter: pid, Target: v.target})
		}
	}
	return out
}

func (s *nominationState) sortedVoters() []id.PlayerID {
	ids := make([]id.PlayerID, 0, len(s.voters))
	for pid := range s.voters {
		ids = append(ids, pid)
	}
	slices.Sort(ids)
	return ids
}

type roster struct {
	participants []id.PlayerID
	handles      map[id.PlayerID]*client.Handle
}

// Nomination runs the day's nomination vote among the living. Everybody
// else connected to the lobby watches. Each living player first nominates
// someone (or abstains), then votes for one of the nominees. The ballots
// are returned in voter order.
//
// With a timeout, missing nominations count as abstentions and missing votes
// are left out of the result. If nobody is nominated every living player can
// be voted for. A voter who disconnects is treated the same as one who ran
// out of time.
func Nomination(ctx context.Context, l *lobby.Lobby, timeout time.Duration) ([]protocol.Ballot, error) {
	log := l.Logger().With(zap.String("protocol", "nomination"))

	r, err := lobby.AccessState(ctx, l, func(d *game.Data, clients lobby.Directory) roster {
		handles := make(map[id.PlayerID]*client.Handle, len(clients))
		for pid, h := range clients {
			handles[pid] = h
		}
		return roster{participants: d.AlivePlayers(), handles: handles}
	})
	if err != nil {
		return nil, err
	}

	g, err := Open(ctx, log, r.handles, func(pid id.PlayerID) protocol.RequestData {
		return protocol.NominationBegin{
			Participants: r.participants,
			CanVote:      slices.Contains(r.participants, pid),
		}
	})
	if err != nil {
		return nil, err
	}
	defer g.Close(ctx)

	// A living player without a client can still be nominated but never
	// answers, so only connected players are waited on.
	var voters []id.PlayerID
	for _, pid := range r.participants {
		if g.Has(pid) {
			voters = append(voters, pid)
		}
	}
	state := newNominationState(r.participants, voters)

	deadline, stop := Deadline(timeout)
	for !state.nominationsDone() {
		resp, err := g.Next(ctx, deadline)
		if errors.Is(err, ErrTimeout) {
			log.Info("nomination timed out, counting missing nominations as abstentions")
			for _, f := range state.abstainPending() {
				g.Broadcast(ctx, f)
			}
			break
		}
		var left *LeftError
		if errors.As(err, &left) {
			if f := state.leave(left.Player); f != nil {
				g.Broadcast(ctx, f)
			}
			continue
		}
		if err != nil {
			stop()
			return nil, err
		}
		step(ctx, g, log, state.apply, resp)
	}
	stop()

	g.Broadcast(ctx, protocol.VotingStarted{Nominees: state.startVoting()})

	deadline, stop = Deadline(timeout)
	defer stop()
	for !state.votesDone() {
		resp, err := g.Next(ctx, deadline)
		if errors.Is(err, ErrTimeout) {
			log.Info("voting timed out, dropping missing votes")
			state.forfeitPending()
			break
		}
		var left *LeftError
		if errors.As(err, &left) {
			state.leave(left.Player)
			continue
		}
		if err != nil {
			return nil, err
		}
		step(ctx, g, log, state.apply, resp)
	}

	ballots := state.ballots()
	g.Broadcast(ctx, protocol.NominationResult{Ballots: ballots})
	return ballots, nil
}

// step feeds one response to a state machine and broadcasts the accepted
// transition. Rejected responses are logged and otherwise ignored.
func step(ctx context.Context, g *Group, log *zap.Logger, apply func(id.PlayerID, protocol.ResponseData) (protocol.FollowupData, error), r client.Response) {
	f, err := apply(r.From, r.Data)
	if err != nil {
		log.Warn("rejected response",
			zap.Stringer("player", r.From),
			zap.String("type", r.Data.MessageType()),
			zap.Error(err))
		return
	}
	g.Broadcast(ctx, f)
}

// Tally returns the strictly most voted target. A tie, or no ballots at all,
// means no elimination.
func Tally(ballots []protocol.Ballot) (id.PlayerID, bool) {
	counts := make(map[id.PlayerID]int)
	for _, b := range ballots {
		counts[b.Target]++
	}
	var best id.PlayerID
	top, tied := 0, false
	for target, n := range counts {
		switch {
		case n > top:
			best, top, tied = target, n, false
		case n == top:
			tied = true
		}
	}
	if top == 0 || tied {
		return 0, false
	}
	return best, true
}
