package envelope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YAMLcase/Heron/ndarray"
)

func TestRoundTripThroughFrames(t *testing.T) {
	dtypes := []ndarray.DType{ndarray.Uint8, ndarray.Int16, ndarray.Uint64, ndarray.Float32, ndarray.Float64, ndarray.Bool}

	for _, dt := range dtypes {
		t.Run(string(dt), func(t *testing.T) {
			arr, err := ndarray.Full(dt, 1, 3, 5, 2)
			require.NoError(t, err)

			msg, err := Encode(arr, "Camera##0##Frame Out")
			require.NoError(t, err)
			frames, err := msg.Frames()
			require.NoError(t, err)
			require.Len(t, frames, 3)

			parsed, err := Parse(frames)
			require.NoError(t, err)
			got, topic, err := Decode(parsed)
			require.NoError(t, err)

			assert.Equal(t, "Camera##0##Frame Out", topic)
			assert.True(t, arr.Equal(got), "got %s", got)
		})
	}
}

func TestHeaderWireFormat(t *testing.T) {
	arr, _ := ndarray.Zeros(ndarray.Uint8, 4, 4)
	msg, _ := Encode(arr, "t")
	frames, err := msg.Frames()
	require.NoError(t, err)
	assert.JSONEq(t, `{"dtype":"uint8","shape":[4,4]}`, string(frames[1]))
}

func TestDecode_HeaderPayloadMismatch(t *testing.T) {
	frames := [][]byte{[]byte("t"), []byte(`{"dtype":"float64","shape":[4,4]}`), make([]byte, 16)}
	msg, err := Parse(frames)
	require.NoError(t, err)

	_, _, err = Decode(msg)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecode_OverflowingShape(t *testing.T) {
	frames := [][]byte{[]byte("t"), []byte(`{"dtype":"float64","shape":[4294967296,4294967296]}`), {}}
	msg, err := Parse(frames)
	if err != nil {
		// 32-bit int cannot hold the dimensions at all
		require.ErrorIs(t, err, ErrMalformed)
		return
	}

	_, _, err = Decode(msg)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse([][]byte{[]byte("t"), []byte("{")})
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Parse([][]byte{[]byte("t"), []byte("not json"), nil})
	assert.ErrorIs(t, err, ErrMalformed)

	_, _, err = Decode(Message{Topic: "t", Header: Header{DType: "complex64", Shape: []int{1}}, Payload: make([]byte, 8)})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestEncode_EmptyArray(t *testing.T) {
	_, err := Encode(ndarray.Array{}, "t")
	assert.ErrorIs(t, err, ErrEmptyArray)
}

func TestControlMessages(t *testing.T) {
	assert.True(t, IsPulse(PulseFrames()))
	assert.False(t, IsPulse([][]byte{[]byte("PULSE"), nil}))

	stage, err := ParseReadiness(ReadinessFrames("g##Canny##0"))
	require.NoError(t, err)
	assert.Equal(t, "g##Canny##0", stage)

	_, err = ParseReadiness([][]byte{[]byte("g##Canny##0")})
	assert.ErrorIs(t, err, ErrMalformed)

	topic, payload, err := ParseParameter(ParameterFrames("g##Canny##0", []byte{1, 2}))
	require.NoError(t, err)
	assert.Equal(t, "g##Canny##0", topic)
	assert.Equal(t, []byte{1, 2}, payload)

	assert.Equal(t, [][]byte{[]byte("new"), []byte("h")}, WithTopic([][]byte{[]byte("old"), []byte("h")}, "new"))
}
