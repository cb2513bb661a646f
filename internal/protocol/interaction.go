package protocol

import (
	"github.com/DoyleJ11/werewolf-backend/internal/game"
	"github.com/DoyleJ11/werewolf-backend/internal/id"
)

// RequestData opens an interaction.
type RequestData interface {
	MessageType() string
	isRequestData()
}

// FollowupData reports progress on an open interaction.
type FollowupData interface {
	MessageType() string
	isFollowupData()
}

// ResponseData is a client's answer on an open interaction.
type ResponseData interface {
	MessageType() string
	isResponseData()
}

// Ballot is one (voter, target) pair of a finished nomination vote.
type Ballot struct {
	Voter  id.PlayerID `json:"voter"`
	Target id.PlayerID `json:"target"`
}

// Requests

type NominationBegin struct {
	Participants []id.PlayerID `json:"participants"`
	CanVote      bool          `json:"can_vote"`
}

type FactionVoteBegin struct {
	Selectable []id.PlayerID `json:"selectable"`
	CanVote    bool          `json:"can_vote"`
}

type SeerBegin struct {
	Selectable []id.PlayerID `json:"selectable"`
}

func (NominationBegin) MessageType() string  { return "nomination_begin" }
func (FactionVoteBegin) MessageType() string { return "faction_vote_begin" }
func (SeerBegin) MessageType() string        { return "seer_begin" }

func (NominationBegin) isRequestData()  {}
func (FactionVoteBegin) isRequestData() {}
func (SeerBegin) isRequestData()        {}

// Followups

type Nominated struct {
	Nominee   *id.PlayerID `json:"nominee,omitempty"`
	Nominator id.PlayerID  `json:"nominator"`
}

type VotingStarted struct {
	Nominees []id.PlayerID `json:"nominees"`
}

type VoteCast struct {
	Voter  id.PlayerID `json:"voter"`
	Target id.PlayerID `json:"target"`
}

type NominationResult struct {
	Ballots []Ballot `json:"ballots"`
}

type FactionVoteChanged struct {
	Vote    id.PlayerID `json:"vote"`
	VotedBy id.PlayerID `json:"voted_by"`
}

type FactionVoteLocked struct {
	Vote    id.PlayerID `json:"vote"`
	VotedBy id.PlayerID `json:"voted_by"`
}

type FactionVoteFinished struct {
	Vote *id.PlayerID `json:"vote,omitempty"`
}

type SeerResult struct {
	Target id.PlayerID `json:"target"`
	Role   game.Role   `json:"role"`
}

func (Nominated) MessageType() string           { return "nominated" }
func (VotingStarted) MessageType() string       { return "voting_started" }
func (VoteCast) MessageType() string            { return "vote_cast" }
func (NominationResult) MessageType() string    { return "nomination_result" }
func (FactionVoteChanged) MessageType() string  { return "faction_vote_changed" }
func (FactionVoteLocked) MessageType() string   { return "faction_vote_locked" }
func (FactionVoteFinished) MessageType() string { return "faction_vote_finished" }
func (SeerResult) MessageType() string          { return "seer_result" }

func (Nominated) isFollowupData()           {}
func (VotingStarted) isFollowupData()       {}
func (VoteCast) isFollowupData()            {}
func (NominationResult) isFollowupData()    {}
func (FactionVoteChanged) isFollowupData()  {}
func (FactionVoteLocked) isFollowupData()   {}
func (FactionVoteFinished) isFollowupData() {}
func (SeerResult) isFollowupData()          {}

// Responses

type Nominate struct {
	Target *id.PlayerID `json:"target,omitempty"`
}

type Vote struct {
	Target id.PlayerID `json:"target"`
}

type FactionVote struct {
	Target id.PlayerID `json:"target"`
}

type FactionLock struct{}

type SeerInspect struct {
	Target id.PlayerID `json:"target"`
}

func (Nominate) MessageType() string    { return "nominate" }
func (Vote) MessageType() string        { return "vote" }
func (FactionVote) MessageType() string { return "faction_vote" }
func (FactionLock) MessageType() string { return "faction_lock" }
func (SeerInspect) MessageType() string { return "seer_inspect" }

func (Nominate) isResponseData()    {}
func (Vote) isResponseData()        {}
func (FactionVote) isResponseData() {}
func (FactionLock) isResponseData() {}
func (SeerInspect) isResponseData() {}
