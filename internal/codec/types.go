// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package codec implements the binary container codec for the engine's
// plugin files: a parser that walks the record/group tree and extracts
// translatable strings, and a rewriter that reassembles the file with new
// string payloads while preserving every other byte.
package codec

import (
	"fmt"
	"strings"
)

const (
	recordHeaderSize    = 24
	groupHeaderSize     = 24
	subrecordHeaderSize = 6

	// compressedFlag is bit 0x00040000 of a record's flags field.
	compressedFlag = 0x00040000

	// maxSubrecordSize is the largest payload a subrecord header can address.
	maxSubrecordSize = 0xFFFF
)

// StringRecord is one extracted translatable unit.
type StringRecord struct {
	// RecordID is the stable composite identifier "<rec>:<form_id_hex8>:<sub>".
	RecordID string
	// Text is the UTF-8 decoded payload with its trailing NUL stripped.
	Text string
}

// RecordType returns the 4-character record tag of id ("WEAP" in
// "WEAP:00000100:FULL").
func RecordType(recordID string) string {
	parts := strings.SplitN(recordID, ":", 2)
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}

// SubrecordType returns the 4-character subrecord tag of id ("FULL" in
// "WEAP:00000100:FULL"). Uses a right-split so the rare underscore-
// terminated record tag ("NPC_") does not get mistaken for part of it.
func SubrecordType(recordID string) string {
	idx := strings.LastIndex(recordID, ":")
	if idx < 0 {
		return ""
	}
	return recordID[idx+1:]
}

func buildRecordID(recType string, formID uint32, subType string) string {
	return fmt.Sprintf("%s:%08X:%s", recType, formID, subType)
}

// TranslationMap maps a record_id to its target-language text. Keys absent
// from the map leave the corresponding bytes untouched on rewrite.
type TranslationMap map[string]string

// PayloadTooLargeError is returned by RewriteBytes (and RewriteFile) when a translated subrecord
// payload would exceed the 16-bit subrecord size field.
type PayloadTooLargeError struct {
	RecordID string
	Size     int
}

func (e *PayloadTooLargeError) Error() string {
	return fmt.Sprintf("codec: rewritten payload for %s is %d bytes, exceeds %d byte limit", e.RecordID, e.Size, maxSubrecordSize)
}
