package sniffer

import (
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectHead(t *testing.T) {
	cases := []struct {
		name string
		head []byte
		want PhotoType
	}{
		{"jpeg", []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10}, TypeJPEG},
		{"png", []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}, TypePNG},
		{"webp", append([]byte("RIFF"), append([]byte{0, 0, 0, 0}, []byte("WEBP")...)...), TypeWEBP},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := DetectHead(tc.head)
			require.NoError(t, err)
			assert.Equal(t, tc.want, result.Type)
		})
	}
}

func TestDetectHeadRejectsUnknown(t *testing.T) {
	_, err := DetectHead([]byte("<svg xmlns="))
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = DetectHead(nil)
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestDeclaredMIME(t *testing.T) {
	header := textproto.MIMEHeader{}
	header.Set("Content-Type", "image/jpeg; charset=binary")
	assert.Equal(t, "image/jpeg", DeclaredMIME(header))

	assert.Equal(t, "", DeclaredMIME(textproto.MIMEHeader{}))
}
