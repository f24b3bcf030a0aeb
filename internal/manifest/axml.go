package manifest

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf16"
)

// Android binary XML chunk types.
const (
	chunkStringPool     = 0x0001
	chunkXML            = 0x0003
	chunkStartNamespace = 0x0100
	chunkEndNamespace   = 0x0101
	chunkStartElement   = 0x0102
	chunkEndElement     = 0x0103
	chunkCData          = 0x0104
	chunkResourceMap    = 0x0180
)

const (
	stringPoolUTF8Flag = 1 << 8
	attrTypeString     = 0x03
	noRawValue         = 0xFFFFFFFF
)

// ErrMalformedManifest is returned when AndroidManifest.xml does not
// decode as Android binary XML.
var ErrMalformedManifest = errors.New("malformed binary manifest")

// decodeAXML extracts the manifest fields this core cares about
// (package name, requested permissions, instrumentation declaration)
// from an Android binary XML document.
func decodeAXML(data []byte) (Manifest, error) {
	if len(data) < 8 || u16(data, 0) != chunkXML {
		return Manifest{}, fmt.Errorf("%w: not a binary xml document", ErrMalformedManifest)
	}

	var m Manifest
	var pool []string
	var inst Instrumentation
	var sawInstrumentation bool

	off := int(u16(data, 2))
	for off+8 <= len(data) {
		ctype := u16(data, off)
		hsize := int(u16(data, off+2))
		csize := int(u32(data, off+4))
		if csize < 8 || hsize < 8 || hsize > csize || off+csize > len(data) {
			return Manifest{}, fmt.Errorf("%w: bad chunk at offset %d", ErrMalformedManifest, off)
		}
		chunk := data[off : off+csize]

		switch ctype {
		case chunkStringPool:
			strs, err := parseStringPool(chunk, hsize)
			if err != nil {
				return Manifest{}, err
			}
			pool = strs
		case chunkStartElement:
			name, attrs, err := parseStartElement(chunk, hsize, pool)
			if err != nil {
				return Manifest{}, err
			}
			switch name {
			case "manifest":
				m.PackageName = attrs["package"]
			case "uses-permission":
				if p := attrs["name"]; p != "" {
					m.Permissions = append(m.Permissions, p)
				}
			case "instrumentation":
				inst.Runner = attrs["name"]
				inst.TargetPackage = attrs["targetPackage"]
				sawInstrumentation = true
			}
		}
		off += csize
	}

	if sawInstrumentation {
		m.Instrumentation = &inst
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// parseStringPool decodes the document's string pool, handling both the
// UTF-16LE and UTF-8 encodings.
func parseStringPool(chunk []byte, hsize int) ([]string, error) {
	if len(chunk) < 28 {
		return nil, fmt.Errorf("%w: truncated string pool", ErrMalformedManifest)
	}
	count := int(u32(chunk, 8))
	flags := u32(chunk, 16)
	stringsStart := int(u32(chunk, 20))
	utf8Pool := flags&stringPoolUTF8Flag != 0

	if hsize+count*4 > len(chunk) || stringsStart > len(chunk) {
		return nil, fmt.Errorf("%w: string pool offsets out of range", ErrMalformedManifest)
	}

	pool := make([]string, 0, count)
	for i := 0; i < count; i++ {
		rel := int(u32(chunk, hsize+i*4))
		pos := stringsStart + rel
		if pos >= len(chunk) {
			return nil, fmt.Errorf("%w: string %d out of range", ErrMalformedManifest, i)
		}
		s, err := decodePoolString(chunk, pos, utf8Pool)
		if err != nil {
			return nil, err
		}
		pool = append(pool, s)
	}
	return pool, nil
}

func decodePoolString(chunk []byte, pos int, utf8Pool bool) (string, error) {
	if utf8Pool {
		// two varlen byte counts: character count then byte count
		_, pos2, err := readVarByteLen(chunk, pos)
		if err != nil {
			return "", err
		}
		byteLen, start, err := readVarByteLen(chunk, pos2)
		if err != nil {
			return "", err
		}
		if start+byteLen > len(chunk) {
			return "", fmt.Errorf("%w: utf8 string overruns pool", ErrMalformedManifest)
		}
		return string(chunk[start : start+byteLen]), nil
	}

	if pos+2 > len(chunk) {
		return "", fmt.Errorf("%w: utf16 length overruns pool", ErrMalformedManifest)
	}
	charLen := int(u16(chunk, pos))
	start := pos + 2
	if charLen&0x8000 != 0 {
		// extended length for strings over 32k characters
		if start+2 > len(chunk) {
			return "", fmt.Errorf("%w: utf16 length overruns pool", ErrMalformedManifest)
		}
		charLen = (charLen&0x7FFF)<<16 | int(u16(chunk, start))
		start += 2
	}
	if start+charLen*2 > len(chunk) {
		return "", fmt.Errorf("%w: utf16 string overruns pool", ErrMalformedManifest)
	}
	units := make([]uint16, charLen)
	for i := range units {
		units[i] = u16(chunk, start+i*2)
	}
	return string(utf16.Decode(units)), nil
}

func readVarByteLen(chunk []byte, pos int) (length, next int, err error) {
	if pos >= len(chunk) {
		return 0, 0, fmt.Errorf("%w: utf8 length overruns pool", ErrMalformedManifest)
	}
	b := int(chunk[pos])
	if b&0x80 == 0 {
		return b, pos + 1, nil
	}
	if pos+1 >= len(chunk) {
		return 0, 0, fmt.Errorf("%w: utf8 length overruns pool", ErrMalformedManifest)
	}
	return (b&0x7F)<<8 | int(chunk[pos+1]), pos + 2, nil
}

// parseStartElement returns the element name and its attributes with
// string-typed values resolved against the pool.
func parseStartElement(chunk []byte, hsize int, pool []string) (string, map[string]string, error) {
	body := chunk[hsize:]
	if len(body) < 16 {
		return "", nil, fmt.Errorf("%w: truncated element", ErrMalformedManifest)
	}
	name, err := poolString(pool, u32(body, 4))
	if err != nil {
		return "", nil, err
	}
	attrStart := int(u16(body, 8))
	attrSize := int(u16(body, 10))
	attrCount := int(u16(body, 12))
	if attrSize < 20 {
		attrSize = 20
	}

	attrs := make(map[string]string, attrCount)
	for i := 0; i < attrCount; i++ {
		a := attrStart + i*attrSize
		if a+20 > len(body) {
			return "", nil, fmt.Errorf("%w: attribute %d overruns element", ErrMalformedManifest, i)
		}
		attrName, err := poolString(pool, u32(body, a+4))
		if err != nil {
			return "", nil, err
		}
		raw := u32(body, a+8)
		var value string
		switch {
		case raw != noRawValue:
			if value, err = poolString(pool, raw); err != nil {
				return "", nil, err
			}
		case body[a+15] == attrTypeString:
			if value, err = poolString(pool, u32(body, a+16)); err != nil {
				return "", nil, err
			}
		default:
			value = fmt.Sprintf("%d", u32(body, a+16))
		}
		attrs[attrName] = value
	}
	return name, attrs, nil
}

func poolString(pool []string, idx uint32) (string, error) {
	if int(idx) >= len(pool) {
		return "", fmt.Errorf("%w: string index %d out of pool range", ErrMalformedManifest, idx)
	}
	return pool[idx], nil
}

func u16(b []byte, off int) uint16 {
	return binary.LittleEndian.Uint16(b[off:])
}

func u32(b []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(b[off:])
}
