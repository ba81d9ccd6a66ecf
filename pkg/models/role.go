package models

import "fmt"

// Role is the interface role a hub process runs in, fixed at startup.
// RECEIVER ingests gateway events; SENDER is reserved for transmitting
// gateway processes that consume the command topic space. There is no
// runtime transition between the two.
type Role string

const (
	RoleReceiver Role = "receiver"
	RoleSender   Role = "sender"
)

// ParseRole validates a configured role string.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleReceiver, RoleSender:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown interface role %q (want receiver or sender)", s)
	}
}
