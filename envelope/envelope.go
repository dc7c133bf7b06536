// Package envelope encodes and decodes the wire messages carried by Heron channels.
//
// Data channel:       [topic][array header][array payload]
// Parameter channel:  [topic][encoded parameter vector]
// Liveness channel:   [<stage topic>##POL]
// Heartbeat channel:  [PULSE]
//
// The array header is a JSON object {"dtype": "...", "shape": [...]}. The payload is the raw
// little-endian C-order element bytes. All functions here are pure.
package envelope

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/YAMLcase/Heron/ndarray"
	"github.com/YAMLcase/Heron/topic"
)

var (
	// ErrMalformed is returned for frames that cannot be interpreted as the expected message.
	ErrMalformed = errors.New("envelope: malformed message")

	// ErrEmptyArray is returned when encoding the empty array.
	ErrEmptyArray = errors.New("envelope: cannot encode an empty array")
)

// Header describes how to reinterpret a payload as a typed array.
type Header struct {
	DType ndarray.DType `json:"dtype"`
	Shape []int         `json:"shape"`
}

// Message is one data channel message.
type Message struct {
	Topic   string
	Header  Header
	Payload []byte
}

// Encode wraps arr for transmission on topic. The payload aliases arr's bytes.
func Encode(arr ndarray.Array, t string) (Message, error) {
	if arr.IsZero() {
		return Message{}, ErrEmptyArray
	}
	return Message{
		Topic:   t,
		Header:  Header{DType: arr.DType(), Shape: arr.Shape()},
		Payload: arr.Bytes(),
	}, nil
}

// Decode reinterprets m as an array. A header that disagrees with the payload length is a
// decode error.
func Decode(m Message) (ndarray.Array, string, error) {
	if _, err := ndarray.ParseDType(string(m.Header.DType)); err != nil {
		return ndarray.Array{}, "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	arr, err := ndarray.New(m.Header.DType, m.Header.Shape, m.Payload)
	if err != nil {
		return ndarray.Array{}, "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return arr, m.Topic, nil
}

// Frames renders m as the 3-part data message.
func (m Message) Frames() ([][]byte, error) {
	hdr, err := json.Marshal(m.Header)
	if err != nil {
		return nil, fmt.Errorf("envelope: marshal header: %w", err)
	}
	return [][]byte{[]byte(m.Topic), hdr, m.Payload}, nil
}

// Parse reads a 3-part data message. The payload is not validated against the header; Decode
// does that.
func Parse(frames [][]byte) (Message, error) {
	if len(frames) != 3 {
		return Message{}, fmt.Errorf("%w: data message has %d parts, want 3", ErrMalformed, len(frames))
	}
	var h Header
	if err := json.Unmarshal(frames[1], &h); err != nil {
		return Message{}, fmt.Errorf("%w: header: %v", ErrMalformed, err)
	}
	return Message{Topic: string(frames[0]), Header: h, Payload: frames[2]}, nil
}

// TopicOf returns the routing topic of any multipart message.
func TopicOf(frames [][]byte) (string, error) {
	if len(frames) == 0 {
		return "", fmt.Errorf("%w: no parts", ErrMalformed)
	}
	return string(frames[0]), nil
}

// WithTopic returns a copy of frames with the routing topic replaced.
func WithTopic(frames [][]byte, t string) [][]byte {
	out := make([][]byte, len(frames))
	copy(out, frames)
	if len(out) > 0 {
		out[0] = []byte(t)
	}
	return out
}

// ParameterFrames builds the 2-part parameter message.
func ParameterFrames(t string, payload []byte) [][]byte {
	return [][]byte{[]byte(t), payload}
}

// ParseParameter reads a 2-part parameter message.
func ParseParameter(frames [][]byte) (string, []byte, error) {
	if len(frames) != 2 {
		return "", nil, fmt.Errorf("%w: parameter message has %d parts, want 2", ErrMalformed, len(frames))
	}
	return string(frames[0]), frames[1], nil
}

// PulseFrames builds a heartbeat message.
func PulseFrames() [][]byte {
	return [][]byte{[]byte(topic.Pulse)}
}

// IsPulse reports whether frames is a heartbeat message.
func IsPulse(frames [][]byte) bool {
	return len(frames) == 1 && string(frames[0]) == topic.Pulse
}

// ReadinessFrames builds the readiness message for the stage whose parameters arrive on
// parametersTopic.
func ReadinessFrames(parametersTopic string) [][]byte {
	return [][]byte{[]byte(topic.Readiness(parametersTopic))}
}

// ParseReadiness returns the stage topic announced by a readiness message.
func ParseReadiness(frames [][]byte) (string, error) {
	if len(frames) == 0 {
		return "", fmt.Errorf("%w: no parts", ErrMalformed)
	}
	stage, ok := topic.StageOfReadiness(string(frames[0]))
	if !ok {
		return "", fmt.Errorf("%w: %q is not a readiness topic", ErrMalformed, frames[0])
	}
	return stage, nil
}
