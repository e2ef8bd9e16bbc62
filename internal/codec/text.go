// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package codec

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// decodeCandidate strips a single trailing NUL and UTF-8 decodes raw, then
// reports whether the result is acceptable as translatable text: non-empty,
// free of replacement characters (which signal a binary misdecode), and at
// least 90% printable.
func decodeCandidate(raw []byte) (text string, ok bool) {
	if len(raw) > 0 && raw[len(raw)-1] == 0 {
		raw = raw[:len(raw)-1]
	}

	text = strings.ToValidUTF8(string(raw), string(utf8.RuneError))
	if text == "" {
		return "", false
	}
	if strings.ContainsRune(text, utf8.RuneError) {
		return "", false
	}

	total, printable := 0, 0
	for _, r := range text {
		total++
		if unicode.IsPrint(r) || r == '\n' || r == '\r' || r == '\t' {
			printable++
		}
	}
	if total == 0 || float64(printable)/float64(total) < 0.9 {
		return "", false
	}
	return text, true
}
