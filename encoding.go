package serial

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Encoding selects how caller-supplied payloads map to raw bytes.
type Encoding string

const (
	EncodingUTF8   Encoding = "utf8"
	EncodingHex    Encoding = "hex"
	EncodingBase64 Encoding = "base64"
	EncodingRaw    Encoding = "raw"
)

// ParseEncoding normalises an encoding name. Empty means utf8.
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "utf8", "utf-8", "text":
		return EncodingUTF8, nil
	case "hex":
		return EncodingHex, nil
	case "base64", "b64":
		return EncodingBase64, nil
	case "raw", "binary":
		return EncodingRaw, nil
	}
	return "", fmt.Errorf("%w: unsupported encoding %q", ErrEncoding, s)
}

// Decode converts a payload in encoding e into the bytes sent to the device.
func (e Encoding) Decode(data []byte) ([]byte, error) {
	switch e {
	case EncodingUTF8, "":
		if !utf8.Valid(data) {
			return nil, fmt.Errorf("%w: payload is not valid UTF-8", ErrEncoding)
		}
		return data, nil
	case EncodingHex:
		return decodeHex(string(data))
	case EncodingBase64:
		out, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, fmt.Errorf("%w: invalid base64: %v", ErrEncoding, err)
		}
		return out, nil
	case EncodingRaw:
		return data, nil
	}
	return nil, fmt.Errorf("%w: unsupported encoding %q", ErrEncoding, string(e))
}

// Encode renders bytes read from a device. Hex output is lowercase pairs
// separated by single spaces. UTF-8 output replaces invalid sequences.
func (e Encoding) Encode(data []byte) string {
	switch e {
	case EncodingHex:
		if len(data) == 0 {
			return ""
		}
		var sb strings.Builder
		sb.Grow(len(data) * 3)
		for i, b := range data {
			if i > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(hex.EncodeToString([]byte{b}))
		}
		return sb.String()
	case EncodingBase64:
		return base64.StdEncoding.EncodeToString(data)
	}
	return strings.ToValidUTF8(string(data), "�")
}

func decodeHex(s string) ([]byte, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', ':', '-':
			return -1
		}
		return r
	}, s)
	cleaned = strings.TrimPrefix(strings.TrimPrefix(cleaned, "0x"), "0X")
	if len(cleaned)%2 != 0 {
		return nil, fmt.Errorf("%w: hex string has odd length %d", ErrEncoding, len(cleaned))
	}
	out, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid hex: %v", ErrEncoding, err)
	}
	return out, nil
}
