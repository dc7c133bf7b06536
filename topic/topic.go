// Package topic holds the addressing grammar shared by every Heron process: stage identities,
// canonical topic strings, the readiness suffix, the heartbeat literal, topic matching and port
// derivation.
package topic

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// Separator joins the segments of a topic string.
	Separator = "##"

	// ReadinessSuffix marks a readiness message on the liveness channel.
	ReadinessSuffix = Separator + "POL"

	// Pulse is the literal payload of a heartbeat message.
	Pulse = "PULSE"
)

var ErrMalformedTopic = errors.New("topic: malformed stage topic")

// StageIdentity names one stage of a graph. Immutable for the lifetime of a process.
type StageIdentity struct {
	// Graph is every segment preceding the operation name. It may itself contain separators.
	Graph     string
	OpName    string
	NodeIndex int
}

// Topic returns the canonical stage topic `<graph>##<op>##<index>`.
func (s StageIdentity) Topic() string {
	tail := s.OpName + Separator + strconv.Itoa(s.NodeIndex)
	if s.Graph == "" {
		return tail
	}
	return s.Graph + Separator + tail
}

func (s StageIdentity) String() string { return s.Topic() }

// ParseStage splits a canonical stage topic. The operation name is the second to last segment and
// the node index the last.
func ParseStage(t string) (StageIdentity, error) {
	parts := strings.Split(t, Separator)
	if len(parts) < 2 {
		return StageIdentity{}, fmt.Errorf("%w: %q", ErrMalformedTopic, t)
	}
	idx, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return StageIdentity{}, fmt.Errorf("%w: node index in %q: %v", ErrMalformedTopic, t, err)
	}
	op := parts[len(parts)-2]
	if op == "" {
		return StageIdentity{}, fmt.Errorf("%w: empty operation name in %q", ErrMalformedTopic, t)
	}
	return StageIdentity{
		Graph:     strings.Join(parts[:len(parts)-2], Separator),
		OpName:    op,
		NodeIndex: idx,
	}, nil
}

// Readiness returns the readiness topic announced by the stage owning stageTopic.
func Readiness(stageTopic string) string {
	return stageTopic + ReadinessSuffix
}

// IsReadiness reports whether t is a readiness topic.
func IsReadiness(t string) bool {
	return strings.HasSuffix(t, ReadinessSuffix)
}

// StageOfReadiness strips the readiness suffix. ok is false when t is not a readiness topic.
func StageOfReadiness(t string) (stage string, ok bool) {
	return strings.CutSuffix(t, ReadinessSuffix)
}

// Matches reports whether a message published on t reaches a consumer subscribed with filter.
//
// Matching is containment, not equality: a filter matches every topic it is a substring of,
// which includes plain prefix matches. Two stages whose topics contain one another will see each
// other's traffic; graphs must keep stage topics distinct enough to avoid that.
func Matches(filter, t string) bool {
	return strings.Contains(t, filter)
}

// SlotAccepts reports whether a data message on t fills the input slot declared as slot.
// The relation is the reverse of Matches: the message topic must be contained in the slot name.
func SlotAccepts(slot, t string) bool {
	return t != "" && strings.Contains(slot, t)
}

// ParseList splits a comma separated topic list from a launch argument. An empty string or the
// literal "None" yields no topics.
func ParseList(arg string) []string {
	arg = strings.TrimSpace(arg)
	if arg == "" || arg == "None" {
		return nil
	}
	var out []string
	for _, t := range strings.Split(arg, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
