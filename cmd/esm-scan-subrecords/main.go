// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command esm-scan-subrecords scans a plugin file for every decodable
// subrecord, classifies its text, and reports (record_type, subrecord_type)
// pairs that look like natural language but aren't yet selected by
// UniversalTags/PairTags. Run it against an unfamiliar plugin before
// submitting a translate task, to catch candidate tags the codec doesn't
// know about rather than silently leaving them untranslated.
package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/starfield-tools/esm-translate/internal/codec"
)

type tagKey struct {
	recordType, subrecordType string
}

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <plugin-file>\n", os.Args[0])
		os.Exit(2)
	}

	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "reading %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}

	samples := codec.ScanSubrecords(data)

	counts := make(map[tagKey]int)
	missing := make(map[tagKey]string)
	for _, s := range samples {
		key := tagKey{s.RecordType, s.SubrecordType}
		counts[key]++
		if s.Category == codec.CategoryNaturalLanguage && !s.Translatable {
			missing[key] = s.Text
		}
	}

	keys := make([]tagKey, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].recordType != keys[j].recordType {
			return keys[i].recordType < keys[j].recordType
		}
		return keys[i].subrecordType < keys[j].subrecordType
	})

	fmt.Printf("%-6s %-6s %8s  %s\n", "RECORD", "SUB", "COUNT", "SAMPLE")
	for _, k := range keys {
		fmt.Printf("%-6s %-6s %8d  %.60q\n", k.recordType, k.subrecordType, counts[k], sampleFor(samples, k))
	}

	if len(missing) > 0 {
		fmt.Println("\ncandidate tags not currently translated:")
		mkeys := make([]tagKey, 0, len(missing))
		for k := range missing {
			mkeys = append(mkeys, k)
		}
		sort.Slice(mkeys, func(i, j int) bool {
			if mkeys[i].recordType != mkeys[j].recordType {
				return mkeys[i].recordType < mkeys[j].recordType
			}
			return mkeys[i].subrecordType < mkeys[j].subrecordType
		})
		for _, k := range mkeys {
			fmt.Printf("  (%s, %s): %.60q\n", k.recordType, k.subrecordType, missing[k])
		}
	}
}

func sampleFor(samples []codec.SubrecordSample, key tagKey) string {
	for _, s := range samples {
		if s.RecordType == key.recordType && s.SubrecordType == key.subrecordType {
			return s.Text
		}
	}
	return ""
}
