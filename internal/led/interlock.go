package led

import "sync"

// Role is the interlock identity of an LED, resolved once from its name.
// Roles other than RoleNone are bits in the interlock register.
type Role uint8

// Roles with a fixed bit in the interlock register.
const (
	RoleNone  Role = 0
	RoleBlue  Role = 0x1
	RoleGreen Role = 0x2
	RoleRed   Role = 0x4
)

// RoleFor resolves an LED name to its role.
func RoleFor(name string) Role {
	switch name {
	case "red":
		return RoleRed
	case "green":
		return RoleGreen
	case "blue":
		return RoleBlue
	}
	return RoleNone
}

func (r Role) String() string {
	switch r {
	case RoleRed:
		return "red"
	case RoleGreen:
		return "green"
	case RoleBlue:
		return "blue"
	case RoleNone:
		return "none"
	}
	return "mixed"
}

// suppressors returns the roles whose assertion suppresses writes to r.
// Red is dropped while green is lit; nothing suppresses green or blue.
func (r Role) suppressors() Role {
	if r == RoleRed {
		return RoleGreen
	}
	return RoleNone
}

// steadyLevel is the electrical level written when blinking stops.
// Red and green differ on purpose: red is lit when it is not blinking,
// green is dark.
func (r Role) steadyLevel() int {
	if r == RoleRed {
		return 1
	}
	return 0
}

// Interlock is the flag register shared by the LEDs of one registry.
type Interlock struct {
	mu    sync.Mutex
	flags Role
}

// NewInterlock creates an interlock with no role asserted.
func NewInterlock() *Interlock {
	return &Interlock{}
}

// Set records whether role is asserted and reports whether the caller may
// drive its line. When a suppressing role is asserted the request is
// dropped and the role's bit is left untouched.
func (i *Interlock) Set(role Role, asserted bool) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.flags&role.suppressors() != 0 {
		return false
	}
	if asserted {
		i.flags |= role
	} else {
		i.flags &^= role
	}
	return true
}

// Flags returns the currently asserted roles.
func (i *Interlock) Flags() Role {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.flags
}
