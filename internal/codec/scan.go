// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package codec

import (
	"encoding/binary"
	"regexp"
	"strings"
)

// SubrecordCategory classifies a scanned subrecord's payload for the purpose
// of glossary-building and discovering candidate tags that isTranslatable
// does not yet recognize.
type SubrecordCategory string

const (
	CategoryNaturalLanguage SubrecordCategory = "natural-lang"
	CategoryIdentifier      SubrecordCategory = "identifier"
	CategoryPath            SubrecordCategory = "path"
	CategoryEnumValue       SubrecordCategory = "enum-value"
	CategoryBinaryLike      SubrecordCategory = "binary-like"
	CategoryUnknown         SubrecordCategory = "unknown"
)

// SubrecordSample is one scanned (record_type, subrecord_type) occurrence,
// independent of whether isTranslatable currently selects it.
type SubrecordSample struct {
	RecordType    string
	SubrecordType string
	Text          string
	Category      SubrecordCategory
	Translatable  bool
}

var (
	reCamel      = regexp.MustCompile(`^[A-Za-z][a-z]+(?:[A-Z][a-z]+)+\d*$`)
	reUnderscore = regexp.MustCompile(`^[A-Za-z0-9]+(?:_[A-Za-z0-9]+)+$`)
	rePath       = regexp.MustCompile(`[\\/]`)
	reTemplate   = regexp.MustCompile(`<Alias=[^>]+>`)
	reNumeric    = regexp.MustCompile(`^[0-9A-Fa-f\-.]+$`)
)

var fileExtensions = []string{".nif", ".dds", ".mat", ".agx", ".rig", ".hkx", ".pex", ".bgsm", ".bto", ".btr", ".wav", ".xwm", ".fuz", ".lip"}

// knownInternal are subrecord tags known never to carry player-facing text,
// regardless of how the heuristics in classify would categorize their payload.
var knownInternal = map[string]bool{"EDID": true, "BFCB": true, "VMAD": true}

// classify assigns a heuristic category to already-decoded text, mirroring
// the dictionary-discovery pass a translator runs once over an unfamiliar
// plugin to find tags isTranslatable doesn't know about yet.
func classify(subType, text string) SubrecordCategory {
	t := strings.TrimSpace(text)
	if t == "" {
		return CategoryUnknown
	}
	if knownInternal[subType] {
		return CategoryIdentifier
	}

	lower := strings.ToLower(t)
	if rePath.MatchString(t) {
		return CategoryPath
	}
	for _, ext := range fileExtensions {
		if strings.HasSuffix(lower, ext) {
			return CategoryPath
		}
	}

	for _, r := range t {
		if r < 32 && r != '\n' && r != '\r' && r != '\t' {
			return CategoryBinaryLike
		}
	}

	if reNumeric.MatchString(t) {
		return CategoryEnumValue
	}
	if reTemplate.MatchString(t) {
		return CategoryNaturalLanguage
	}
	if strings.Contains(t, "\n") && len(t) > 20 {
		return CategoryNaturalLanguage
	}
	if reCamel.MatchString(t) || reUnderscore.MatchString(t) {
		return CategoryIdentifier
	}

	words := strings.Fields(t)
	spaceRatio := 0.0
	if len(t) > 0 {
		spaceRatio = float64(strings.Count(t, " ")) / float64(len(t))
	}
	avgWordLen := 0.0
	if len(words) > 0 {
		total := 0
		for _, w := range words {
			total += len(w)
		}
		avgWordLen = float64(total) / float64(len(words))
	}
	if len(words) >= 2 && spaceRatio > 0.05 && avgWordLen < 12 {
		return CategoryNaturalLanguage
	}
	if len(words) == 1 && len(t) < 24 {
		return CategoryIdentifier
	}
	return CategoryUnknown
}

// ScanSubrecords walks every subrecord in data, decoded or not, and reports
// one sample per occurrence whose payload decodes as text under the same
// 90%-printable rule parse uses. Unlike ParseBytes it does not filter by
// isTranslatable: it exists to help a translator discover (record_type,
// subrecord_type) pairs missing from UniversalTags/PairTags, not to select
// strings for translation.
func ScanSubrecords(data []byte) []SubrecordSample {
	if len(data) < recordHeaderSize {
		return nil
	}
	headerDataSize := binary.LittleEndian.Uint32(data[4:8])
	firstOffset := recordHeaderSize + int(headerDataSize)
	if firstOffset > len(data) {
		return nil
	}

	var samples []SubrecordSample
	scanRange(data, firstOffset, len(data), &samples)
	return samples
}

func scanRange(data []byte, offset, end int, out *[]SubrecordSample) {
	for offset < end {
		if offset+4 > end {
			return
		}
		tag := string(data[offset : offset+4])

		if tag == "GRUP" {
			if offset+groupHeaderSize > end {
				return
			}
			groupSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
			if groupSize < groupHeaderSize {
				return
			}
			groupEnd := offset + groupSize
			if groupEnd > end {
				groupEnd = end
			}
			scanRange(data, offset+groupHeaderSize, groupEnd, out)
			offset = groupEnd
			continue
		}

		if offset+recordHeaderSize > end {
			return
		}
		dataSize := binary.LittleEndian.Uint32(data[offset+4 : offset+8])
		flags := binary.LittleEndian.Uint32(data[offset+8 : offset+12])
		payloadStart := offset + recordHeaderSize
		payloadEnd := payloadStart + int(dataSize)
		if payloadEnd > end {
			return
		}

		if tag != "TES4" {
			if sub, err := decompressPayload(data[payloadStart:payloadEnd], flags); err == nil {
				scanSubrecords(sub, tag, out)
			}
		}
		offset = payloadEnd
	}
}

func scanSubrecords(data []byte, recType string, out *[]SubrecordSample) {
	offset := 0
	for offset < len(data) {
		if offset+subrecordHeaderSize > len(data) {
			return
		}
		subType := string(data[offset : offset+4])
		subSize := int(binary.LittleEndian.Uint16(data[offset+4 : offset+6]))
		offset += subrecordHeaderSize
		if offset+subSize > len(data) {
			return
		}

		if subSize > 0 {
			if text, ok := decodeCandidate(data[offset : offset+subSize]); ok {
				*out = append(*out, SubrecordSample{
					RecordType:    recType,
					SubrecordType: subType,
					Text:          text,
					Category:      classify(subType, text),
					Translatable:  isTranslatable(recType, subType),
				})
			}
		}
		offset += subSize
	}
}
