// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package orchestrator

import (
	"testing"

	"github.com/starfield-tools/esm-translate/internal/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Law 6: two records with identical (sub_type, text) share exactly one group.
func TestDedupByTagAndText_GroupsIdenticalTextUnderSameTag(t *testing.T) {
	records := []codec.StringRecord{
		{RecordID: "WEAP:00000001:FULL", Text: "Steel Sword"},
		{RecordID: "WEAP:00000002:FULL", Text: "Iron Shield"},
		{RecordID: "WEAP:00000003:FULL", Text: "Steel Sword"},
	}

	groups := dedupByTagAndText(records)

	require.Len(t, groups, 2)
	assert.Equal(t, "WEAP:00000001:FULL", groups[0].Representative.RecordID)
	assert.ElementsMatch(t, []string{"WEAP:00000001:FULL", "WEAP:00000003:FULL"}, groups[0].Members)
	assert.Equal(t, []string{"WEAP:00000002:FULL"}, groups[1].Members)
}

func TestDedupByTagAndText_DistinguishesBySubrecordTag(t *testing.T) {
	records := []codec.StringRecord{
		{RecordID: "WEAP:00000001:FULL", Text: "Shared Text"},
		{RecordID: "BOOK:00000002:DESC", Text: "Shared Text"},
	}

	groups := dedupByTagAndText(records)

	require.Len(t, groups, 2)
}
