package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/DoyleJ11/werewolf-backend/internal/id"
)

var (
	ErrUnknownType = errors.New("unknown message type")
	ErrMissingData = errors.New("missing message data")
)

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type typed interface{ MessageType() string }

type registry[T any] map[string]func(json.RawMessage) (T, error)

func variant[T any, M any]() func(json.RawMessage) (T, error) {
	return func(raw json.RawMessage) (T, error) {
		var m M
		var zero T
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &m); err != nil {
				return zero, err
			}
		}
		v, ok := any(m).(T)
		if !ok {
			return zero, fmt.Errorf("%T is not a valid variant", m)
		}
		return v, nil
	}
}

var clientTypes = registry[ClientMessage]{
	CreateNewLobby{}.MessageType():      variant[ClientMessage, CreateNewLobby](),
	JoinLobby{}.MessageType():           variant[ClientMessage, JoinLobby](),
	StartGame{}.MessageType():           variant[ClientMessage, StartGame](),
	ConfigureGame{}.MessageType():       variant[ClientMessage, ConfigureGame](),
	InteractionResponse{}.MessageType(): variant[ClientMessage, InteractionResponse](),
	CloseConnection{}.MessageType():     variant[ClientMessage, CloseConnection](),
	Unrecognized{}.MessageType():        variant[ClientMessage, Unrecognized](),
}

var serverTypes = registry[ServerMessage]{
	UnknownLobbyID{}.MessageType():      variant[ServerMessage, UnknownLobbyID](),
	JoinedLobby{}.MessageType():         variant[ServerMessage, JoinedLobby](),
	StateUpdate{}.MessageType():         variant[ServerMessage, StateUpdate](),
	PlayerDied{}.MessageType():          variant[ServerMessage, PlayerDied](),
	InteractionRequest{}.MessageType():  variant[ServerMessage, InteractionRequest](),
	InteractionFollowup{}.MessageType(): variant[ServerMessage, InteractionFollowup](),
	InteractionClose{}.MessageType():    variant[ServerMessage, InteractionClose](),
	CloseConnection{}.MessageType():     variant[ServerMessage, CloseConnection](),
	Unrecognized{}.MessageType():        variant[ServerMessage, Unrecognized](),
}

var requestTypes = registry[RequestData]{
	NominationBegin{}.MessageType():  variant[RequestData, NominationBegin](),
	FactionVoteBegin{}.MessageType(): variant[RequestData, FactionVoteBegin](),
	SeerBegin{}.MessageType():        variant[RequestData, SeerBegin](),
}

var followupTypes = registry[FollowupData]{
	Nominated{}.MessageType():           variant[FollowupData, Nominated](),
	VotingStarted{}.MessageType():       variant[FollowupData, VotingStarted](),
	VoteCast{}.MessageType():            variant[FollowupData, VoteCast](),
	NominationResult{}.MessageType():    variant[FollowupData, NominationResult](),
	FactionVoteChanged{}.MessageType():  variant[FollowupData, FactionVoteChanged](),
	FactionVoteLocked{}.MessageType():   variant[FollowupData, FactionVoteLocked](),
	FactionVoteFinished{}.MessageType(): variant[FollowupData, FactionVoteFinished](),
	SeerResult{}.MessageType():          variant[FollowupData, SeerResult](),
}

var responseTypes = registry[ResponseData]{
	Nominate{}.MessageType():    variant[ResponseData, Nominate](),
	Vote{}.MessageType():        variant[ResponseData, Vote](),
	FactionVote{}.MessageType(): variant[ResponseData, FactionVote](),
	FactionLock{}.MessageType(): variant[ResponseData, FactionLock](),
	SeerInspect{}.MessageType(): variant[ResponseData, SeerInspect](),
}

func encode(m typed) ([]byte, error) {
	if m == nil {
		return nil, ErrMissingData
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.MessageType(), err)
	}
	return json.Marshal(envelope{Type: m.MessageType(), Data: data})
}

func decode[T any](raw []byte, types registry[T]) (T, error) {
	v, known, err := decodeKnown(raw, types)
	if err == nil && !known {
		err = ErrUnknownType
	}
	return v, err
}

// decodeKnown reports known=false, without error, for a well-formed envelope
// whose type is not in types.
func decodeKnown[T any](raw []byte, types registry[T]) (T, bool, error) {
	var zero T
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return zero, false, fmt.Errorf("decode envelope: %w", err)
	}
	build, ok := types[env.Type]
	if !ok {
		return zero, false, nil
	}
	v, err := build(env.Data)
	if err != nil {
		return zero, true, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	return v, true, nil
}

func EncodeClient(m ClientMessage) ([]byte, error) { return encode(m) }
func EncodeServer(m ServerMessage) ([]byte, error) { return encode(m) }

// DecodeClient parses a client message. Well-formed envelopes of an unknown
// type decode to Unrecognized rather than failing.
func DecodeClient(raw []byte) (ClientMessage, error) {
	m, known, err := decodeKnown(raw, clientTypes)
	if err == nil && !known {
		return Unrecognized{}, nil
	}
	return m, err
}

func DecodeServer(raw []byte) (ServerMessage, error) {
	m, known, err := decodeKnown(raw, serverTypes)
	if err == nil && !known {
		return Unrecognized{}, nil
	}
	return m, err
}

// Interaction messages carry a nested envelope for their payload.

type interactionWire struct {
	ID   id.InteractionID `json:"id"`
	Data json.RawMessage  `json:"data"`
}

func marshalInteraction(iid id.InteractionID, data typed) ([]byte, error) {
	raw, err := encode(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(interactionWire{ID: iid, Data: raw})
}

func unmarshalInteraction[T any](raw []byte, types registry[T]) (id.InteractionID, T, error) {
	var w interactionWire
	var zero T
	if err := json.Unmarshal(raw, &w); err != nil {
		return 0, zero, err
	}
	if len(w.Data) == 0 || string(w.Data) == "null" {
		return 0, zero, ErrMissingData
	}
	data, err := decode(w.Data, types)
	return w.ID, data, err
}

func (m InteractionRequest) MarshalJSON() ([]byte, error) {
	return marshalInteraction(m.ID, m.Data)
}

func (m *InteractionRequest) UnmarshalJSON(raw []byte) error {
	var err error
	m.ID, m.Data, err = unmarshalInteraction(raw, requestTypes)
	return err
}

func (m InteractionFollowup) MarshalJSON() ([]byte, error) {
	return marshalInteraction(m.ID, m.Data)
}

func (m *InteractionFollowup) UnmarshalJSON(raw []byte) error {
	var err error
	m.ID, m.Data, err = unmarshalInteraction(raw, followupTypes)
	return err
}

func (m InteractionResponse) MarshalJSON() ([]byte, error) {
	return marshalInteraction(m.ID, m.Data)
}

func (m *InteractionResponse) UnmarshalJSON(raw []byte) error {
	var err error
	m.ID, m.Data, err = unmarshalInteraction(raw, responseTypes)
	return err
}
