// Package id provides opaque random identifiers tagged by namespace.
//
// An ID[K] is a 64-bit value whose type parameter K only exists to keep
// identifiers from different namespaces apart at compile time: a PlayerID
// cannot be passed where a LobbyID is expected without an explicit conversion.
package id

import (
	"fmt"
	"math/rand/v2"
	"strconv"
)

type (
	playerKind      struct{}
	interactionKind struct{}
	lobbyKind       struct{}
)

type ID[K any] uint64

type (
	PlayerID      = ID[playerKind]
	InteractionID = ID[interactionKind]
	LobbyID       = ID[lobbyKind]
)

// Allocate returns an id that is not a key of live. Values are drawn
// uniformly from the full 64-bit space and redrawn on collision.
func Allocate[K any, V any](live map[ID[K]]V) ID[K] {
	for {
		candidate := ID[K](rand.Uint64())
		if _, taken := live[candidate]; !taken {
			return candidate
		}
	}
}

func (i ID[K]) String() string {
	return strconv.FormatUint(uint64(i), 16)
}

// MarshalText encodes the id as a hex string so that clients which store
// numbers as doubles never lose precision.
func (i ID[K]) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

func (i *ID[K]) UnmarshalText(text []byte) error {
	v, err := strconv.ParseUint(string(text), 16, 64)
	if err != nil {
		return fmt.Errorf("parse id %q: %w", text, err)
	}
	*i = ID[K](v)
	return nil
}
