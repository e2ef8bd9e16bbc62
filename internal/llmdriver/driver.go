// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package llmdriver

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/starfield-tools/esm-translate/internal/codec"
	"github.com/starfield-tools/esm-translate/internal/prompt"
	"github.com/starfield-tools/esm-translate/pkg/log"
)

const (
	DefaultBatchSize  = 20
	DefaultMaxRetries = 3
)

// DefaultRetryDelays are the backoff delays between attempts. With the
// default of 3 attempts total, only the first two are ever used.
var DefaultRetryDelays = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// BatchTranslatedFunc is invoked after each successful batch, with that
// batch's translations and the records that produced them — used by the
// orchestrator to persist to the cache incrementally and expand through the
// dedup map before reporting progress.
type BatchTranslatedFunc func(result map[string]string, batch []codec.StringRecord)

// BatchDoneFunc is invoked after every batch, successful or not, with the
// cumulative number of records translated so far.
type BatchDoneFunc func(cumulativeTranslated int)

// Options configures a single Translate run.
type Options struct {
	TargetLang   string
	CustomPrompt string
	Glossary     []prompt.GlossaryEntry
	BatchSize    int
	MaxRetries   int
	RetryDelays  []time.Duration
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if len(o.RetryDelays) == 0 {
		o.RetryDelays = DefaultRetryDelays
	}
	if o.TargetLang == "" {
		o.TargetLang = "zh-CN"
	}
	return o
}

// Translate batches records into consecutive chunks of opts.BatchSize and
// translates each in turn, sequentially, so that the cumulative count
// reported to onBatchDone is monotonically non-decreasing. A batch that
// exhausts its retries contributes nothing to the result or to other
// batches; the failure is logged, not returned.
func Translate(ctx context.Context, client ChatClient, records []codec.StringRecord, opts Options, onBatchTranslated BatchTranslatedFunc, onBatchDone BatchDoneFunc) map[string]string {
	opts = opts.withDefaults()
	result := make(map[string]string, len(records))
	cumulative := 0

	for start := 0; start < len(records); start += opts.BatchSize {
		end := start + opts.BatchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		batchResult := translateBatch(ctx, client, batch, opts)
		for id, text := range batchResult {
			result[id] = text
		}
		cumulative += len(batchResult)

		if len(batchResult) > 0 && onBatchTranslated != nil {
			onBatchTranslated(batchResult, batch)
		}
		if onBatchDone != nil {
			onBatchDone(cumulative)
		}
	}

	return result
}

func translateBatch(ctx context.Context, client ChatClient, batch []codec.StringRecord, opts Options) map[string]string {
	traceID := uuid.NewString()

	sources := make([]string, len(batch))
	for i, r := range batch {
		sources[i] = r.Text
	}

	assembled := prompt.Build(sources, opts.CustomPrompt, opts.Glossary)
	systemPrompt := fmt.Sprintf("You are a professional game localization translator. Translate the text to %s.", opts.TargetLang)

	var reply string
	var err error
	for attempt := 0; attempt < opts.MaxRetries; attempt++ {
		reply, err = client.Complete(ctx, systemPrompt, assembled.Prompt)
		if err == nil {
			break
		}

		if attempt == opts.MaxRetries-1 {
			log.Errorf("llmdriver: batch %s exhausted %d attempts, dropping %d records: %v", traceID, opts.MaxRetries, len(batch), err)
			return map[string]string{}
		}

		delay := opts.RetryDelays[attempt%len(opts.RetryDelays)]
		log.Warnf("llmdriver: batch %s attempt %d/%d failed, retrying in %s: %v", traceID, attempt+1, opts.MaxRetries, delay, err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			log.Warnf("llmdriver: batch %s canceled during backoff", traceID)
			return map[string]string{}
		}
	}

	translated := prompt.ParseReply(reply, sources, assembled.Tags)
	result := make(map[string]string, len(batch))
	for i, r := range batch {
		result[r.RecordID] = translated[i]
	}
	return result
}
