package topic

import (
	"errors"
	"fmt"
)

var ErrPortRange = errors.New("topic: base port out of range")

// PortSet is the private channel triple shared by a Supervisor and its Worker.
type PortSet struct {
	Pull      int
	Push      int
	Heartbeat int
}

// Ports derives the PortSet from base port p: pull = p, push = p+1, heartbeat = p+2.
func Ports(p int) (PortSet, error) {
	if p < 1 || p+2 > 65535 {
		return PortSet{}, fmt.Errorf("%w: %d", ErrPortRange, p)
	}
	return PortSet{Pull: p, Push: p + 1, Heartbeat: p + 2}, nil
}
