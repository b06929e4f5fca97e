package sniffer

import (
	"bytes"
	"errors"
	"net/textproto"
	"strings"
)

// PhotoType is a photo format accepted by the registry. Only raster camera
// formats are allowed; vector and animated formats are rejected at upload.
type PhotoType string

const (
	TypeJPEG PhotoType = "jpeg"
	TypePNG  PhotoType = "png"
	TypeWEBP PhotoType = "webp"
	TypeHEIC PhotoType = "heic"
)

var ErrUnsupportedType = errors.New("unsupported photo type")

type Result struct {
	Type PhotoType
	MIME string
}

// DetectHead identifies the photo format from the first bytes of the file.
func DetectHead(head []byte) (Result, error) {
	if len(head) == 0 {
		return Result{}, ErrUnsupportedType
	}

	switch {
	case isJPEG(head):
		return Result{Type: TypeJPEG, MIME: "image/jpeg"}, nil
	case isPNG(head):
		return Result{Type: TypePNG, MIME: "image/png"}, nil
	case isWEBP(head):
		return Result{Type: TypeWEBP, MIME: "image/webp"}, nil
	case isHEIC(head):
		return Result{Type: TypeHEIC, MIME: "image/heic"}, nil
	}

	return Result{}, ErrUnsupportedType
}

func isJPEG(head []byte) bool {
	return len(head) > 3 &&
		head[0] == 0xff &&
		head[1] == 0xd8 &&
		head[2] == 0xff
}

func isPNG(head []byte) bool {
	pngMagic := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	return len(head) >= len(pngMagic) && bytes.Equal(head[:len(pngMagic)], pngMagic)
}

func isWEBP(head []byte) bool {
	return len(head) >= 12 &&
		bytes.Equal(head[:4], []byte("RIFF")) &&
		bytes.Equal(head[8:12], []byte("WEBP"))
}

func isHEIC(head []byte) bool {
	if len(head) < 12 {
		return false
	}
	if string(head[4:8]) != "ftyp" {
		return false
	}
	brand := string(head[8:12])
	return brand == "heic" || brand == "heix" || brand == "mif1"
}

// DeclaredMIME extracts the bare media type from a multipart part header.
func DeclaredMIME(header textproto.MIMEHeader) string {
	contentType := header.Get("Content-Type")
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = contentType[:idx]
	}
	return strings.TrimSpace(contentType)
}
