package model

import (
	"database/sql/driver"
	"fmt"
)

// MessageStatus is the delivery state of a message copy.
//
// The set is closed. Every switch over MessageStatus in this module lists all
// four variants and treats anything else as a programming error.
type MessageStatus uint8

const (
	// StatusNew marks a message that is waiting to be pulled.
	StatusNew MessageStatus = iota + 1

	// StatusLeased marks a message held by one consumer until LeaseExpiresAt.
	StatusLeased

	// StatusAcked marks a delivered message. Terminal.
	StatusAcked

	// StatusExpired marks a message past its absolute expiry. Terminal.
	StatusExpired
)

// String returns the wire and storage representation of the status.
func (s MessageStatus) String() string {
	switch s {
	case StatusNew:
		return "NEW"
	case StatusLeased:
		return "LEASED"
	case StatusAcked:
		return "ACKED"
	case StatusExpired:
		return "EXPIRED"
	default:
		return fmt.Sprintf("MessageStatus(%d)", uint8(s))
	}
}

// ParseMessageStatus converts the storage representation back to a MessageStatus.
func ParseMessageStatus(v string) (MessageStatus, error) {
	switch v {
	case "NEW":
		return StatusNew, nil
	case "LEASED":
		return StatusLeased, nil
	case "ACKED":
		return StatusAcked, nil
	case "EXPIRED":
		return StatusExpired, nil
	default:
		return 0, fmt.Errorf("unknown message status %q", v)
	}
}

// IsTerminal reports whether no further transition is possible.
func (s MessageStatus) IsTerminal() bool {
	switch s {
	case StatusAcked, StatusExpired:
		return true
	case StatusNew, StatusLeased:
		return false
	default:
		panic(fmt.Sprintf("model: unhandled message status %d", uint8(s)))
	}
}

// CanTransition reports whether the state machine allows from → to.
//
//	NEW    → LEASED | EXPIRED
//	LEASED → ACKED | NEW | EXPIRED
//	ACKED, EXPIRED: terminal
func CanTransition(from, to MessageStatus) bool {
	switch from {
	case StatusNew:
		return to == StatusLeased || to == StatusExpired
	case StatusLeased:
		return to == StatusAcked || to == StatusNew || to == StatusExpired
	case StatusAcked, StatusExpired:
		return false
	default:
		panic(fmt.Sprintf("model: unhandled message status %d", uint8(from)))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s MessageStatus) MarshalText() ([]byte, error) {
	if s < StatusNew || s > StatusExpired {
		return nil, fmt.Errorf("invalid message status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *MessageStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseMessageStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Value implements driver.Valuer; statuses are stored as their names.
func (s MessageStatus) Value() (driver.Value, error) {
	if s < StatusNew || s > StatusExpired {
		return nil, fmt.Errorf("invalid message status %d", uint8(s))
	}
	return s.String(), nil
}

// Scan implements sql.Scanner.
func (s *MessageStatus) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		return s.UnmarshalText([]byte(v))
	case []byte:
		return s.UnmarshalText(v)
	case nil:
		return fmt.Errorf("message status cannot be NULL")
	default:
		return fmt.Errorf("cannot scan %T into MessageStatus", src)
	}
}
