// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package codec

import (
	"bytes"
	"encoding/binary"
	"os"

	"github.com/klauspost/compress/zlib"
	"github.com/starfield-tools/esm-translate/pkg/log"
)

// ParseFile reads path and extracts every translatable StringRecord from it.
// A file I/O failure is returned as an error; any other malformed-data
// condition is logged and degrades to a partial (possibly empty) result,
// never an error, since one bad record must not abort the whole plugin.
func ParseFile(path string) ([]StringRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseBytes(data), nil
}

// ParseBytes extracts every translatable StringRecord out of an in-memory
// plugin image. It never returns an error: truncation, bad group sizes and
// zlib failures are logged warnings that skip the affected record or sibling
// run, and parsing continues with whatever can still be recovered.
func ParseBytes(data []byte) []StringRecord {
	if len(data) < recordHeaderSize {
		log.Warnf("codec: file too small to contain a header record (%d bytes)", len(data))
		return nil
	}
	if !bytes.Equal(data[0:4], []byte("TES4")) {
		log.Warnf("codec: file does not start with a TES4 header record")
		return nil
	}

	headerDataSize := binary.LittleEndian.Uint32(data[4:8])
	firstOffset := recordHeaderSize + int(headerDataSize)
	if firstOffset > len(data) {
		log.Warnf("codec: TES4 header data_size %d runs past end of file", headerDataSize)
		return nil
	}

	records, _ := parseRange(data, firstOffset, len(data))
	return records
}

// parseRange walks records and GRUPs in data[offset:end], returning every
// translatable StringRecord found and the offset walking stopped at.
func parseRange(data []byte, offset, end int) ([]StringRecord, int) {
	var records []StringRecord

	for offset < end {
		if offset+4 > end {
			log.Warnf("codec: not enough bytes to read a tag at offset %d", offset)
			break
		}

		tag := string(data[offset : offset+4])
		if tag == "GRUP" {
			if offset+groupHeaderSize > end {
				log.Warnf("codec: truncated GRUP header at offset %d", offset)
				break
			}

			groupSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
			if groupSize < groupHeaderSize {
				log.Warnf("codec: implausible group_size %d at offset %d", groupSize, offset)
				break
			}

			groupEnd := offset + groupSize
			if groupEnd > end {
				log.Warnf("codec: GRUP at offset %d claims to extend past its container, truncating", offset)
				groupEnd = end
			}

			inner, _ := parseRange(data, offset+groupHeaderSize, groupEnd)
			records = append(records, inner...)
			offset = groupEnd
			continue
		}

		if offset+recordHeaderSize > end {
			log.Warnf("codec: truncated record header for %q at offset %d", tag, offset)
			break
		}

		dataSize := binary.LittleEndian.Uint32(data[offset+4 : offset+8])
		flags := binary.LittleEndian.Uint32(data[offset+8 : offset+12])
		formID := binary.LittleEndian.Uint32(data[offset+12 : offset+16])

		payloadStart := offset + recordHeaderSize
		payloadEnd := payloadStart + int(dataSize)
		if payloadEnd > end {
			log.Warnf("codec: record %q data_size %d at offset %d runs past end of container", tag, dataSize, offset)
			break
		}

		payload := data[payloadStart:payloadEnd]
		if tag != "TES4" {
			subPayload, err := decompressPayload(payload, flags)
			if err != nil {
				log.Warnf("codec: zlib inflate failed for %q form %08X at offset %d: %v", tag, formID, offset, err)
			} else {
				records = append(records, parseSubrecords(subPayload, tag, formID)...)
			}
		}

		offset = payloadEnd
	}

	return records, offset
}

// decompressPayload returns the subrecord stream for a record's payload,
// inflating it first if the compressed flag is set.
func decompressPayload(payload []byte, flags uint32) ([]byte, error) {
	if flags&compressedFlag == 0 {
		return payload, nil
	}
	if len(payload) < 4 {
		return nil, errShortCompressedPayload
	}

	r, err := zlib.NewReader(bytes.NewReader(payload[4:]))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func parseSubrecords(data []byte, recType string, formID uint32) []StringRecord {
	var records []StringRecord
	offset := 0

	for offset < len(data) {
		if offset+subrecordHeaderSize > len(data) {
			log.Warnf("codec: truncated subrecord header in %q form %08X at offset %d", recType, formID, offset)
			break
		}

		subType := string(data[offset : offset+4])
		subSize := int(binary.LittleEndian.Uint16(data[offset+4 : offset+6]))
		offset += subrecordHeaderSize

		if offset+subSize > len(data) {
			log.Warnf("codec: subrecord %q in %q form %08X claims %d bytes past end of record", subType, recType, formID, subSize)
			break
		}

		if isTranslatable(recType, subType) && subSize > 0 {
			if text, ok := decodeCandidate(data[offset : offset+subSize]); ok {
				records = append(records, StringRecord{
					RecordID: buildRecordID(recType, formID, subType),
					Text:     text,
				})
			}
		}

		offset += subSize
	}

	return records
}
