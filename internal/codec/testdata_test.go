// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package codec

import (
	"bytes"
	"encoding/binary"

	"github.com/klauspost/compress/zlib"
)

// subrecord builds one subrecord: tag[4] | size[u16] | payload.
func subrecord(tag, payload string) []byte {
	var buf bytes.Buffer
	buf.WriteString(tag)
	var size [2]byte
	binary.LittleEndian.PutUint16(size[:], uint16(len(payload)))
	buf.Write(size[:])
	buf.WriteString(payload)
	return buf.Bytes()
}

func cstr(s string) string {
	return s + "\x00"
}

// record builds a record header + payload. If compress is true, the
// subrecord payload is zlib-deflated and prefixed with its inflated size.
func record(tag string, formID uint32, subrecords [][]byte, compress bool) []byte {
	var payload bytes.Buffer
	for _, s := range subrecords {
		payload.Write(s)
	}

	body := payload.Bytes()
	flags := uint32(0)
	if compress {
		flags = compressedFlag
		var deflated bytes.Buffer
		zw := zlib.NewWriter(&deflated)
		zw.Write(body)
		zw.Close()

		var out bytes.Buffer
		var sizePrefix [4]byte
		binary.LittleEndian.PutUint32(sizePrefix[:], uint32(len(body)))
		out.Write(sizePrefix[:])
		out.Write(deflated.Bytes())
		body = out.Bytes()
	}

	var buf bytes.Buffer
	buf.WriteString(tag)
	var dataSize [4]byte
	binary.LittleEndian.PutUint32(dataSize[:], uint32(len(body)))
	buf.Write(dataSize[:])

	var flagsBuf [4]byte
	binary.LittleEndian.PutUint32(flagsBuf[:], flags)
	buf.Write(flagsBuf[:])

	var formIDBuf [4]byte
	binary.LittleEndian.PutUint32(formIDBuf[:], formID)
	buf.Write(formIDBuf[:])

	buf.Write(make([]byte, 8)) // revision[4] + version[2] + unknown[2]
	buf.Write(body)
	return buf.Bytes()
}

// group wraps a sequence of already-built record/group byte slices in a
// GRUP header, with group_size computed over the header plus contents.
func group(label string, contents ...[]byte) []byte {
	var inner bytes.Buffer
	for _, c := range contents {
		inner.Write(c)
	}

	var buf bytes.Buffer
	buf.WriteString("GRUP")
	var groupSize [4]byte
	binary.LittleEndian.PutUint32(groupSize[:], uint32(groupHeaderSize+inner.Len()))
	buf.Write(groupSize[:])
	labelBytes := make([]byte, 4)
	copy(labelBytes, label)
	buf.Write(labelBytes)
	buf.Write(make([]byte, 12)) // group_type[4] + stamp[4] + unknown[4]
	buf.Write(inner.Bytes())
	return buf.Bytes()
}

// tes4Header builds a minimal TES4 header record with no payload.
func tes4Header() []byte {
	return record("TES4", 0, nil, false)
}

// plugin assembles a full file: TES4 header followed by top-level contents.
func plugin(contents ...[]byte) []byte {
	var buf bytes.Buffer
	buf.Write(tes4Header())
	for _, c := range contents {
		buf.Write(c)
	}
	return buf.Bytes()
}
