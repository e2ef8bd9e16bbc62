// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package prompt

import (
	"regexp"
	"strings"

	"github.com/starfield-tools/esm-translate/pkg/log"
)

var replyLineRe = regexp.MustCompile(`^\[(\d+)\]\s?(.*)$`)

// ParseReply splits a model reply into per-source translations. Lines
// beginning "[n] ..." start translation n; any following lines lacking that
// prefix extend the previous translation, so embedded newlines survive.
// Tags previously masked into sources[i] (per Assembled.Tags) are restored.
// A number missing from the reply falls back to the original source text,
// with a warning — no source is ever silently dropped.
func ParseReply(reply string, sources []string, tags [][]string) []string {
	byIndex := make(map[int][]string)
	current := 0

	for _, line := range strings.Split(reply, "\n") {
		if m := replyLineRe.FindStringSubmatch(line); m != nil {
			n := atoi(m[1])
			current = n
			byIndex[n] = append(byIndex[n], m[2])
			continue
		}
		if current != 0 {
			byIndex[current] = append(byIndex[current], line)
		}
	}

	out := make([]string, len(sources))
	for i, source := range sources {
		n := i + 1
		lines, ok := byIndex[n]
		if !ok {
			log.Warnf("prompt: reply missing translation [%d], falling back to source text", n)
			out[i] = source
			continue
		}
		text := strings.TrimSpace(strings.Join(lines, "\n"))
		if len(tags) > i {
			text = unmaskTags(text, tags[i])
		}
		out[i] = text
	}
	return out
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}
