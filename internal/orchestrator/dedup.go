// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package orchestrator

import (
	"github.com/cespare/xxhash/v2"
	"github.com/starfield-tools/esm-translate/internal/codec"
)

// dedupGroup is every record sharing one (subrecord_tag, source_text) key.
// Representative is the first record_id seen for the key — the one actually
// handed to the LLM driver — and Members is every record_id the eventual
// translation must fan out to, Representative included.
type dedupGroup struct {
	Representative codec.StringRecord
	Members        []string
}

// dedupByTagAndText partitions records by (subrecord_tag, text), preserving
// first-seen order, so the batch driver only ever translates one record per
// distinct string — identical flavor text under the same tag across many
// form ids shares a single LLM call.
func dedupByTagAndText(records []codec.StringRecord) []*dedupGroup {
	seen := make(map[uint64]*dedupGroup, len(records))
	var order []uint64

	for _, r := range records {
		key := dedupKey(codec.SubrecordType(r.RecordID), r.Text)
		g, ok := seen[key]
		if !ok {
			g = &dedupGroup{Representative: r}
			seen[key] = g
			order = append(order, key)
		}
		g.Members = append(g.Members, r.RecordID)
	}

	groups := make([]*dedupGroup, len(order))
	for i, key := range order {
		groups[i] = seen[key]
	}
	return groups
}

func dedupKey(subrecordTag, text string) uint64 {
	h := xxhash.New()
	h.WriteString(subrecordTag)
	h.Write([]byte{0})
	h.WriteString(text)
	return h.Sum64()
}
