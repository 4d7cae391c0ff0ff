package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeFrameRoundtrip(t *testing.T) {
	cases := [][]byte{
		nil,
		{},
		{0x01},
		bytes.Repeat([]byte{0xAB}, 1024),
		bytes.Repeat([]byte{0x00}, MaxPayloadLen),
	}

	for _, payload := range cases {
		buf, err := EncodeFrame(nil, TypePing, payload)
		require.NoError(t, err)

		got, err := ReadFrame(bytes.NewReader(buf))
		require.NoError(t, err)
		require.Equal(t, TypePing, got.TypeID)
		require.Equal(t, len(payload), len(got.Payload))
		require.True(t, bytes.Equal(payload, got.Payload))
	}
}

func TestEncodeFrameTooLarge(t *testing.T) {
	_, err := EncodeFrame(nil, TypePing, make([]byte, MaxPayloadLen+1))
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestReadFrameInvalidMagic(t *testing.T) {
	buf := []byte{0x00, byte(TypePing), 0x00, 0x00}
	_, err := ReadFrame(bytes.NewReader(buf))
	require.ErrorIs(t, err, ErrInvalidMagic)
}

func TestReadFrameTruncated(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{FrameMagic, byte(TypePing)}))
	require.Error(t, err)
}
