// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package prompt assembles the numbered, tag-masked prompt sent to the
// language model and parses its numbered reply back into translations.
package prompt

import (
	"fmt"
	"regexp"
	"strings"
)

var tagRe = regexp.MustCompile(`<[^>]*>`)

// maskTags replaces every "<...>" substring of s, left to right, with a
// unique "{{TAG_n}}" placeholder. It returns the masked string and the
// ordered list of original tag contents so the substitution can be undone
// once the translation comes back.
func maskTags(s string) (masked string, tags []string) {
	n := 0
	masked = tagRe.ReplaceAllStringFunc(s, func(tag string) string {
		n++
		tags = append(tags, tag)
		return fmt.Sprintf("{{TAG_%d}}", n)
	})
	return masked, tags
}

// unmaskTags restores the "{{TAG_n}}" placeholders in s back to their
// original "<...>" contents.
func unmaskTags(s string, tags []string) string {
	for i, tag := range tags {
		placeholder := fmt.Sprintf("{{TAG_%d}}", i+1)
		s = strings.ReplaceAll(s, placeholder, tag)
	}
	return s
}
