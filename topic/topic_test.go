package topic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageIdentity_RoundTrip(t *testing.T) {
	tests := []struct {
		topic string
		want  StageIdentity
	}{
		{"Canny##0", StageIdentity{OpName: "Canny", NodeIndex: 0}},
		{"graph##Differencing##3", StageIdentity{Graph: "graph", OpName: "Differencing", NodeIndex: 3}},
		{"a##b##Op##12", StageIdentity{Graph: "a##b", OpName: "Op", NodeIndex: 12}},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			got, err := ParseStage(tt.topic)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.topic, got.Topic())
		})
	}
}

func TestParseStage_Malformed(t *testing.T) {
	for _, in := range []string{"Canny", "Canny##x", "##3", ""} {
		_, err := ParseStage(in)
		assert.ErrorIs(t, err, ErrMalformedTopic, in)
	}
}

func TestReadiness(t *testing.T) {
	r := Readiness("g##Canny##0")
	assert.Equal(t, "g##Canny##0##POL", r)
	assert.True(t, IsReadiness(r))

	stage, ok := StageOfReadiness(r)
	assert.True(t, ok)
	assert.Equal(t, "g##Canny##0", stage)

	_, ok = StageOfReadiness("g##Canny##0")
	assert.False(t, ok)
}

func TestMatchingIsContainment(t *testing.T) {
	assert.True(t, Matches("Camera##0", "Camera##0##Frame Out"))
	assert.True(t, Matches("Camera##0##Frame Out", "Camera##0##Frame Out"))
	assert.True(t, Matches("0##Frame", "Camera##0##Frame Out"))
	assert.False(t, Matches("Camera##1", "Camera##0##Frame Out"))

	assert.True(t, SlotAccepts("Camera##0##Frame Out", "Camera##0##Frame Out"))
	assert.True(t, SlotAccepts("Camera##0##Frame Out", "Camera##0"))
	assert.False(t, SlotAccepts("Camera##0", "Camera##0##Frame Out"))
	assert.False(t, SlotAccepts("Camera##0", ""))
}

func TestParseList(t *testing.T) {
	assert.Nil(t, ParseList(""))
	assert.Nil(t, ParseList("None"))
	assert.Equal(t, []string{"a##0##Out", "b##1##Out"}, ParseList("a##0##Out, b##1##Out,"))
}

func TestPorts(t *testing.T) {
	p, err := Ports(6000)
	require.NoError(t, err)
	assert.Equal(t, PortSet{Pull: 6000, Push: 6001, Heartbeat: 6002}, p)

	_, err = Ports(0)
	assert.ErrorIs(t, err, ErrPortRange)
	_, err = Ports(65534)
	assert.ErrorIs(t, err, ErrPortRange)
}
