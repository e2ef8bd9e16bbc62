// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package codec

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zlib"
	"github.com/starfield-tools/esm-translate/pkg/log"
)

// RewriteFile backs up originalPath to backupPath, then writes a translated
// copy of it to outputPath. The output directory is created if missing. Both
// paths are written exactly once, overwriting anything already there.
func RewriteFile(originalPath, outputPath, backupPath string, translations TranslationMap) error {
	data, err := os.ReadFile(originalPath)
	if err != nil {
		return err
	}

	if err := copyFile(originalPath, backupPath); err != nil {
		return err
	}

	out, err := RewriteBytes(data, translations)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(outputPath, out, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// RewriteBytes reassembles a plugin image with the given translations
// applied, recomputing every subrecord size, record data_size and enclosing
// group_size that changed as a result. Bytes belonging to the TES4 header
// record and to subrecords with no entry in translations are copied
// unchanged. Returns a *PayloadTooLargeError if a translated payload no
// longer fits in a subrecord's 16-bit size field.
func RewriteBytes(data []byte, translations TranslationMap) ([]byte, error) {
	if len(data) < recordHeaderSize || !bytes.Equal(data[0:4], []byte("TES4")) {
		return data, nil
	}

	headerDataSize := binary.LittleEndian.Uint32(data[4:8])
	firstOffset := recordHeaderSize + int(headerDataSize)
	if firstOffset > len(data) {
		return data, nil
	}

	tail, err := rewriteRange(data, firstOffset, len(data), translations)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, firstOffset+len(tail))
	out = append(out, data[:firstOffset]...)
	out = append(out, tail...)
	return out, nil
}

func rewriteRange(data []byte, offset, end int, translations TranslationMap) ([]byte, error) {
	var out bytes.Buffer

	for offset < end {
		if offset+4 > end {
			out.Write(data[offset:end])
			break
		}

		tag := string(data[offset : offset+4])
		if tag == "GRUP" {
			if offset+groupHeaderSize > end {
				out.Write(data[offset:end])
				break
			}

			groupSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
			groupEnd := offset + groupSize
			if groupEnd > end || groupSize < groupHeaderSize {
				groupEnd = end
			}

			header := append([]byte(nil), data[offset:offset+groupHeaderSize]...)
			inner, err := rewriteRange(data, offset+groupHeaderSize, groupEnd, translations)
			if err != nil {
				return nil, err
			}

			binary.LittleEndian.PutUint32(header[4:8], uint32(groupHeaderSize+len(inner)))
			out.Write(header)
			out.Write(inner)
			offset = groupEnd
			continue
		}

		if offset+recordHeaderSize > end {
			out.Write(data[offset:end])
			break
		}

		dataSize := binary.LittleEndian.Uint32(data[offset+4 : offset+8])
		flags := binary.LittleEndian.Uint32(data[offset+8 : offset+12])
		formID := binary.LittleEndian.Uint32(data[offset+12 : offset+16])

		payloadStart := offset + recordHeaderSize
		payloadEnd := payloadStart + int(dataSize)
		if payloadEnd > end {
			payloadEnd = end
		}

		header := append([]byte(nil), data[offset:payloadStart]...)
		payload := data[payloadStart:payloadEnd]

		newPayload, err := rewriteRecordPayload(payload, tag, formID, flags, translations)
		if err != nil {
			return nil, err
		}

		binary.LittleEndian.PutUint32(header[4:8], uint32(len(newPayload)))
		out.Write(header)
		out.Write(newPayload)
		offset = payloadEnd
	}

	return out.Bytes(), nil
}

// rewriteRecordPayload rewrites the subrecord stream of a single record,
// honoring the compression flag: a compressed record is inflated, its
// subrecords rewritten, then re-deflated with the inflated-size prefix
// updated to match. Records whose compressed payload cannot be inflated are
// passed through unchanged — there is nothing safe to rewrite.
func rewriteRecordPayload(payload []byte, recType string, formID, flags uint32, translations TranslationMap) ([]byte, error) {
	if flags&compressedFlag == 0 {
		return rewriteSubrecords(payload, recType, formID, translations)
	}

	inflated, err := decompressPayload(payload, flags)
	if err != nil {
		log.Warnf("codec: leaving compressed record %q form %08X untouched, inflate failed: %v", recType, formID, err)
		return payload, nil
	}

	newSub, err := rewriteSubrecords(inflated, recType, formID, translations)
	if err != nil {
		return nil, err
	}

	var deflated bytes.Buffer
	zw := zlib.NewWriter(&deflated)
	if _, err := zw.Write(newSub); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}

	out := make([]byte, 4+deflated.Len())
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(newSub)))
	copy(out[4:], deflated.Bytes())
	return out, nil
}

func rewriteSubrecords(data []byte, recType string, formID uint32, translations TranslationMap) ([]byte, error) {
	var out bytes.Buffer
	offset := 0

	for offset < len(data) {
		if offset+subrecordHeaderSize > len(data) {
			out.Write(data[offset:])
			break
		}

		subType := string(data[offset : offset+4])
		subSize := int(binary.LittleEndian.Uint16(data[offset+4 : offset+6]))

		if offset+subrecordHeaderSize+subSize > len(data) {
			out.Write(data[offset:])
			break
		}

		recordID := buildRecordID(recType, formID, subType)
		if isTranslatable(recType, subType) && subSize > 0 {
			if newText, ok := translations[recordID]; ok {
				newData := append([]byte(newText), 0)
				if len(newData) > maxSubrecordSize {
					return nil, &PayloadTooLargeError{RecordID: recordID, Size: len(newData)}
				}
				out.WriteString(subType)
				var sizeBuf [2]byte
				binary.LittleEndian.PutUint16(sizeBuf[:], uint16(len(newData)))
				out.Write(sizeBuf[:])
				out.Write(newData)
				offset += subrecordHeaderSize + subSize
				continue
			}
		}

		out.Write(data[offset : offset+subrecordHeaderSize+subSize])
		offset += subrecordHeaderSize + subSize
	}

	return out.Bytes(), nil
}
