// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package prompt

import (
	"fmt"
	"strings"
)

// GlossaryEntry is a fixed source→target translation pair a caller wants
// honored verbatim, in addition to whatever the model decides on its own.
type GlossaryEntry struct {
	SourceText string `json:"sourceText"`
	TargetText string `json:"targetText"`
}

// DefaultBaseInstruction is used whenever a task does not supply a custom
// prompt. It targets Simplified Chinese; a caller wanting another language
// must supply its own base instruction via CustomPrompt.
const DefaultBaseInstruction = `You are a professional game localization translator. Translate the following game text into Simplified Chinese.
The input is a list of lines in the form "[n] text", one per source string.
Your reply must reproduce the exact same numbering, one "[n] translation" line per input line, in the same order, with no extra commentary before, between or after them.
Tokens of the form "<...>" or "{{TAG_n}}" are placeholders, not text to translate: copy them verbatim, in place, exactly as they appear in the input.`

const glossaryHeader = "The following terms have a fixed translation and must be used exactly as given:"

const bodyHeader = "Translate each of the following lines:"

// Assembled is a built prompt plus everything needed to unmask its sources'
// tags from whatever reply comes back.
type Assembled struct {
	Prompt string
	// Tags holds, per source string in order, the tag-placeholder mapping
	// produced while masking that source.
	Tags [][]string
}

// Build assembles the full prompt for a batch of source strings: a base
// instruction (custom if non-empty, else DefaultBaseInstruction), an
// optional glossary block, then the numbered, tag-masked body.
func Build(sources []string, customPrompt string, glossary []GlossaryEntry) Assembled {
	base := customPrompt
	if base == "" {
		base = DefaultBaseInstruction
	}

	sections := []string{base}

	if block := glossaryBlock(glossary); block != "" {
		sections = append(sections, block)
	}

	masked := make([]string, len(sources))
	tags := make([][]string, len(sources))
	for i, s := range sources {
		masked[i], tags[i] = maskTags(s)
	}
	sections = append(sections, bodyBlock(masked))

	return Assembled{
		Prompt: strings.Join(sections, "\n\n"),
		Tags:   tags,
	}
}

func glossaryBlock(glossary []GlossaryEntry) string {
	if len(glossary) == 0 {
		return ""
	}

	lines := []string{glossaryHeader}
	for _, e := range glossary {
		if e.SourceText == "" || e.TargetText == "" {
			continue
		}
		lines = append(lines, e.SourceText+" → "+e.TargetText)
	}
	if len(lines) == 1 {
		return ""
	}
	return strings.Join(lines, "\n")
}

func bodyBlock(masked []string) string {
	lines := make([]string, 0, len(masked)+1)
	lines = append(lines, bodyHeader)
	for i, s := range masked {
		lines = append(lines, fmt.Sprintf("[%d] %s", i+1, s))
	}
	return strings.Join(lines, "\n")
}
