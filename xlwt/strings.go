package xlwt

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

const (
	strFlagUTF16    = 0x01
	strFlagPhonetic = 0x04
	strFlagRichText = 0x08
)

var utf16LE = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// PackUnicode encodes s as a BIFF8 unicode string with a lenlen-byte
// character count. Strings made only of Latin-1 characters use the
// compressed one-byte form.
func PackUnicode(s string, lenlen int) ([]byte, error) {
	body, flags, nchars, err := encodeUnicodeBody(s)
	if err != nil {
		return nil, err
	}
	if lenlen == 1 && nchars > 0xFF || nchars > 0xFFFF {
		return nil, fmt.Errorf("string of %d characters too long for a %d-byte length", nchars, lenlen)
	}
	out := make([]byte, 0, lenlen+1+len(body))
	if lenlen == 1 {
		out = append(out, byte(nchars))
	} else {
		out = binary.LittleEndian.AppendUint16(out, uint16(nchars))
	}
	out = append(out, flags)
	return append(out, body...), nil
}

func encodeUnicodeBody(s string) ([]byte, byte, int, error) {
	latin1 := true
	for _, r := range s {
		if r > 0xFF {
			latin1 = false
			break
		}
	}
	if latin1 {
		b, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte(s))
		if err == nil {
			return b, 0, len(b), nil
		}
	}
	b, err := utf16LE.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("encoding UTF-16: %w", err)
	}
	return b, strFlagUTF16, len(b) / 2, nil
}

// UnpackUnicode decodes a BIFF8 unicode string at pos.
func UnpackUnicode(data []byte, pos int, lenlen int) (string, error) {
	s, _, err := UnpackUnicodeUpdatePos(data, pos, lenlen)
	return s, err
}

// UnpackUnicodeUpdatePos decodes a BIFF8 unicode string at pos and returns
// the position following it, rich text runs and phonetic data included.
func UnpackUnicodeUpdatePos(data []byte, pos int, lenlen int) (string, int, error) {
	if pos+lenlen+1 > len(data) {
		return "", pos, fmt.Errorf("insufficient data for unicode header")
	}
	var nchars int
	if lenlen == 1 {
		nchars = int(data[pos])
	} else {
		nchars = int(binary.LittleEndian.Uint16(data[pos:]))
	}
	pos += lenlen

	options := data[pos]
	pos++

	var runs, phonetic int
	if options&strFlagRichText != 0 {
		if pos+2 > len(data) {
			return "", pos, fmt.Errorf("insufficient data for richtext")
		}
		runs = int(binary.LittleEndian.Uint16(data[pos:]))
		pos += 2
	}
	if options&strFlagPhonetic != 0 {
		if pos+4 > len(data) {
			return "", pos, fmt.Errorf("insufficient data for phonetic")
		}
		phonetic = int(binary.LittleEndian.Uint32(data[pos:]))
		pos += 4
	}

	var s string
	if options&strFlagUTF16 != 0 {
		if pos+2*nchars > len(data) {
			return "", pos, fmt.Errorf("insufficient data for UTF-16 string")
		}
		b, err := utf16LE.NewDecoder().Bytes(data[pos : pos+2*nchars])
		if err != nil {
			return "", pos, fmt.Errorf("failed to decode UTF-16: %w", err)
		}
		s = string(b)
		pos += 2 * nchars
	} else {
		if pos+nchars > len(data) {
			return "", pos, fmt.Errorf("insufficient data for compressed string")
		}
		b, err := charmap.ISO8859_1.NewDecoder().Bytes(data[pos : pos+nchars])
		if err != nil {
			return "", pos, fmt.Errorf("failed to decode Latin-1: %w", err)
		}
		s = string(b)
		pos += nchars
	}

	pos += 4*runs + phonetic
	if pos > len(data) {
		return s, len(data), fmt.Errorf("insufficient data for string extensions")
	}
	return s, pos, nil
}
