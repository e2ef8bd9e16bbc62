// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTranslatable_UniversalTagAnyRecord(t *testing.T) {
	assert.True(t, isTranslatable("WEAP", "FULL"))
	assert.True(t, isTranslatable("BOOK", "DESC"))
	assert.True(t, isTranslatable("ANYY", "RNAM"))
}

func TestIsTranslatable_PairTagIsRecordSpecific(t *testing.T) {
	assert.True(t, isTranslatable("BOOK", "CNAM"))
	assert.False(t, isTranslatable("WEAP", "CNAM"))
	assert.True(t, isTranslatable("NPC_", "LNAM"))
	assert.False(t, isTranslatable("NPC_", "NAM1"))
	assert.True(t, isTranslatable("INFO", "NAM1"))
}

func TestIsTranslatable_UnknownTagRejected(t *testing.T) {
	assert.False(t, isTranslatable("WEAP", "EDID"))
	assert.False(t, isTranslatable("WEAP", "DATA"))
}

func TestRecordTypeAndSubrecordType_SplitRules(t *testing.T) {
	assert.Equal(t, "WEAP", RecordType("WEAP:00000100:FULL"))
	assert.Equal(t, "FULL", SubrecordType("WEAP:00000100:FULL"))

	// Underscore-terminated record tag must not confuse the split.
	assert.Equal(t, "NPC_", RecordType("NPC_:000001A4:LNAM"))
	assert.Equal(t, "LNAM", SubrecordType("NPC_:000001A4:LNAM"))
}
