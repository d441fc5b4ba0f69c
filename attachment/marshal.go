// Copyright 2026 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package attachment

import (
	"fmt"
	"strings"
)

// String returns the wire name of an entity type.
func (et EntityType) String() string {
	switch et {
	case TraceEntity:
		return "trace"
	case SpanEntity:
		return "span"
	case ThreadEntity:
		return "thread"
	default:
		return fmt.Sprintf("EntityType(%d)", int(et))
	}
}

// MarshalText returns a string representing an entity type.
func (et EntityType) MarshalText() ([]byte, error) {
	switch et {
	case TraceEntity, SpanEntity, ThreadEntity:
		return []byte(et.String()), nil
	default:
		return nil, fmt.Errorf("invalid entity type (marshal, %+v)", int(et))
	}
}

// UnmarshalText populates an entity type from a string.  Matching is
// case-insensitive.
func (et *EntityType) UnmarshalText(text []byte) error {
	parsed, err := ParseEntityType(string(text))
	if err != nil {
		return err
	}
	*et = parsed
	return nil
}

// ParseEntityType converts a wire name to an EntityType.  An
// unrecognized name returns an ErrValidation.
func ParseEntityType(s string) (EntityType, error) {
	switch strings.ToLower(s) {
	case "trace":
		return TraceEntity, nil
	case "span":
		return SpanEntity, nil
	case "thread":
		return ThreadEntity, nil
	default:
		return NoEntity, ErrValidation{
			Field:  "entity_type",
			Reason: fmt.Sprintf("unknown entity type %q", s),
		}
	}
}

// MarshalText returns a string representing a session state.
func (state SessionState) MarshalText() ([]byte, error) {
	switch state {
	case Started:
		return []byte("STARTED"), nil
	case Completed:
		return []byte("COMPLETED"), nil
	case Aborted:
		return []byte("ABORTED"), nil
	default:
		return nil, fmt.Errorf("invalid state (marshal, %+v)", int(state))
	}
}

// UnmarshalText populates a session state from a string.
func (state *SessionState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "STARTED":
		*state = Started
	case "COMPLETED":
		*state = Completed
	case "ABORTED":
		*state = Aborted
	default:
		return fmt.Errorf("invalid state (unmarshal, %+v)", string(text))
	}
	return nil
}
