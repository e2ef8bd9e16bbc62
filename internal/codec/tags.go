// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package codec

// pairTag identifies a translatable subrecord scoped to a specific owning
// record type, as opposed to the universal tags below which are translatable
// regardless of the record they appear under.
type pairTag struct {
	Record string
	Sub    string
}

// universalTags are subrecord tags whose payload is always translatable,
// independent of the enclosing record's tag.
var universalTags = map[string]bool{
	"FULL": true,
	"DESC": true,
	"NNAM": true,
	"SHRT": true,
	"RNAM": true,
}

// pairTags are translatable only under the paired record tag. Bit-exact per
// the container format's known string-bearing subrecords; do not reorder or
// "clean up" — every entry here was reverse engineered from a specific record
// type and adding/removing one silently changes what gets translated.
var pairTags = map[pairTag]bool{
	{"INFO", "NAM1"}: true,
	{"QUST", "CNAM"}: true,
	{"QUST", "NAM2"}: true,
	{"TMLM", "ITXT"}: true,
	{"TMLM", "BTXT"}: true,
	{"TMLM", "UNAM"}: true,
	{"NPC_", "LNAM"}: true,
	{"REFR", "UNAM"}: true,
	{"NPC_", "ATTX"}: true,
	{"MESG", "ITXT"}: true,
	{"PERK", "EPF2"}: true,
	{"BOOK", "CNAM"}: true,
	{"MGEF", "DNAM"}: true,
}

// isTranslatable reports whether a subrecord with tag sub, nested under a
// record with tag rec, carries localizable text.
func isTranslatable(rec, sub string) bool {
	if universalTags[sub] {
		return true
	}
	return pairTags[pairTag{rec, sub}]
}
