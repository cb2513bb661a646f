package vote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/werewolf-backend/internal/client"
	"github.com/DoyleJ11/werewolf-backend/internal/game"
	"github.com/DoyleJ11/werewolf-backend/internal/id"
	"github.com/DoyleJ11/werewolf-backend/internal/lobby"
	"github.com/DoyleJ11/werewolf-backend/internal/protocol"
)

var (
	ErrVoteLocked    = errors.New("vote already locked")
	ErrNothingToLock = errors.New("no vote to lock")
	ErrNotUnanimous  = errors.New("faction members disagree")
)

type FactionStatus int

const (
	NotParticipating FactionStatus = iota
	NoVote
	VotingFor
	LockedVote
)

func (s FactionStatus) String() string {
	switch s {
	case NoVote:
		return "no_vote"
	case VotingFor:
		return "voting_for"
	case LockedVote:
		return "locked_vote"
	default:
		return "not_participating"
	}
}

type factionVoter struct {
	status FactionStatus
	target id.PlayerID
}

type factionState struct {
	voters     map[id.PlayerID]*factionVoter
	selectable map[id.PlayerID]bool
}

func newFactionState(participants, selectable []id.PlayerID) *factionState {
	s := &factionState{
		voters:     make(map[id.PlayerID]*factionVoter, len(participants)),
		selectable: make(map[id.PlayerID]bool, len(selectable)),
	}
	for _, pid := range participants {
		s.voters[pid] = &factionVoter{status: NoVote}
	}
	for _, pid := range selectable {
		s.selectable[pid] = true
	}
	return s
}

func (s *factionState) apply(from id.PlayerID, data protocol.ResponseData) (protocol.FollowupData, error) {
	v, ok := s.voters[from]
	if !ok {
		return nil, ErrNotParticipating
	}

	switch r := data.(type) {
	case protocol.FactionVote:
		if v.status == LockedVote {
			return nil, ErrVoteLocked
		}
		if !s.selectable[r.Target] {
			return nil, fmt.Errorf("%w: %s", ErrIllegalTarget, r.Target)
		}
		v.status, v.target = VotingFor, r.Target
		return protocol.FactionVoteChanged{Vote: r.Target, VotedBy: from}, nil

	case protocol.FactionLock:
		switch v.status {
		case LockedVote:
			return nil, ErrVoteLocked
		case NoVote:
			return nil, ErrNothingToLock
		}
		for pid, other := range s.voters {
			if pid == from {
				continue
			}
			if other.status == NoVote || other.target != v.target {
				return nil, ErrNotUnanimous
			}
		}
		v.status = LockedVote
		return protocol.FactionVoteLocked{Vote: v.target, VotedBy: from}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnexpectedResponse, data.MessageType())
}

// leave drops a participant whose client went away. Locks that are already
// in place stand.
func (s *factionState) leave(pid id.PlayerID) {
	delete(s.voters, pid)
}

// result reports the agreed target once every participant has locked.
func (s *factionState) result() (id.PlayerID, bool) {
	if len(s.voters) == 0 {
		return 0, false
	}
	var target id.PlayerID
	for _, v := range s.voters {
		if v.status != LockedVote {
			return 0, false
		}
		target = v.target
	}
	return target, true
}

// FactionOptions configures a faction vote.
type FactionOptions struct {
	// Role selects the living players that vote.
	Role game.Role
	// Cause is recorded for the agreed victim.
	Cause   game.CauseOfDeath
	Timeout time.Duration
}

// Faction runs a bloc vote among the living players holding opts.Role.
// Spectators follow along without voting. The vote ends once every
// participant has locked the same target, which is then queued for death.
// It returns the victim, or nil when the vote could not conclude before the
// timeout or had no participants. Participants who disconnect are dropped
// from the vote.
func Faction(ctx context.Context, l *lobby.Lobby, opts FactionOptions) (*id.PlayerID, error) {
	log := l.Logger().With(zap.String("protocol", "faction"), zap.String("role", string(opts.Role)))

	type setup struct {
		participants []id.PlayerID
		selectable   []id.PlayerID
		handles      map[id.PlayerID]*client.Handle
	}
	r, err := lobby.AccessState(ctx, l, func(d *game.Data, clients lobby.Directory) setup {
		s := setup{selectable: d.AlivePlayers(), handles: make(map[id.PlayerID]*client.Handle)}
		for _, pid := range d.PlayerIDs() {
			p := d.Players[pid]
			h, ok := clients[pid]
			if !ok {
				continue
			}
			switch {
			case p.IsAlive && p.Role() == opts.Role:
				s.participants = append(s.participants, pid)
				s.handles[pid] = h
			case p.Role() == game.RoleSpectator:
				s.handles[pid] = h
			}
		}
		return s
	})
	if err != nil {
		return nil, err
	}
	if len(r.participants) == 0 {
		log.Debug("no participants, skipping vote")
		return nil, nil
	}

	participating := make(map[id.PlayerID]bool, len(r.participants))
	for _, pid := range r.participants {
		participating[pid] = true
	}
	g, err := Open(ctx, log, r.handles, func(pid id.PlayerID) protocol.RequestData {
		return protocol.FactionVoteBegin{Selectable: r.selectable, CanVote: participating[pid]}
	})
	if err != nil {
		return nil, err
	}
	defer g.Close(ctx)

	var voters []id.PlayerID
	for _, pid := range r.participants {
		if g.Has(pid) {
			voters = append(voters, pid)
		}
	}
	state := newFactionState(voters, r.selectable)

	deadline, stop := Deadline(opts.Timeout)
	defer stop()

	var victim *id.PlayerID
	for victim == nil && len(state.voters) > 0 {
		resp, err := g.Next(ctx, deadline)
		if errors.Is(err, ErrTimeout) {
			log.Info("faction vote timed out without agreement")
			break
		}
		var left *LeftError
		switch {
		case errors.As(err, &left):
			state.leave(left.Player)
		case err != nil:
			return nil, err
		default:
			step(ctx, g, log, state.apply, resp)
		}
		if target, ok := state.result(); ok {
			victim = &target
		}
	}

	if victim != nil {
		if err := l.KillPlayer(ctx, *victim, opts.Cause); err != nil {
			return nil, err
		}
	}
	g.Broadcast(ctx, protocol.FactionVoteFinished{Vote: victim})
	return victim, nil
}
