// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/starfield-tools/esm-translate/internal/cacheclient"
	"github.com/starfield-tools/esm-translate/internal/codec"
	"github.com/starfield-tools/esm-translate/internal/llmdriver"
	"github.com/starfield-tools/esm-translate/internal/prompt"
	"github.com/starfield-tools/esm-translate/pkg/log"
)

const callbackTimeout = 30 * time.Second

// Settings are the process-wide pipeline defaults, resolved once at startup
// from the engine's configuration. A zero value falls back to the driver's
// own defaults, so tests can leave it empty.
type Settings struct {
	BatchSize         int
	MaxRetries        int
	RetryDelays       []time.Duration
	DefaultTargetLang string
	DefaultPrompt     string
	// Glossary entries configured server-side; merged ahead of any
	// per-request dictionaryEntries.
	Glossary []prompt.GlossaryEntry
}

// Orchestrator owns the task map and the external collaborators a worker
// needs: the cache, the LLM, and the callback HTTP client. It is an
// explicit, constructible value — callers (the HTTP adapter, or a test)
// each own their own instance; there is no package-level singleton.
type Orchestrator struct {
	mu    sync.Mutex
	tasks map[string]*task

	cache    *cacheclient.Client
	llm      llmdriver.ChatClient
	callback *http.Client
	settings Settings
}

func New(cache *cacheclient.Client, llm llmdriver.ChatClient, settings Settings) *Orchestrator {
	if settings.DefaultTargetLang == "" {
		settings.DefaultTargetLang = "zh-CN"
	}
	return &Orchestrator{
		tasks:    make(map[string]*task),
		cache:    cache,
		llm:      llm,
		callback: &http.Client{Timeout: callbackTimeout},
		settings: settings,
	}
}

// SubmitTaskRequest is the decoded body of POST /engine/translate.
type SubmitTaskRequest struct {
	TaskID            string                 `json:"taskId"`
	FilePath          string                 `json:"filePath"`
	TargetLang        string                 `json:"targetLang"`
	CustomPrompt      string                 `json:"customPrompt"`
	DictionaryEntries []prompt.GlossaryEntry `json:"dictionaryEntries"`
	CallbackURL       string                 `json:"callbackUrl"`
}

// SubmitAssemblyRequest is the decoded body of POST /engine/assembly: a
// pre-confirmed translation list to write directly, bypassing parse/cache/LLM.
type SubmitAssemblyRequest struct {
	TaskID      string         `json:"taskId"`
	FilePath    string         `json:"filePath"`
	Items       []AssemblyItem `json:"items"`
	CallbackURL string         `json:"callbackUrl"`
}

// AssemblyItem is one confirmed translation. Its shape matches the items
// field of a progress callback, so a consumer can POST the accumulated
// callback items straight back; only RecordID and TargetText are used.
type AssemblyItem struct {
	RecordID   string `json:"recordId"`
	RecordType string `json:"recordType,omitempty"`
	SourceText string `json:"sourceText,omitempty"`
	TargetText string `json:"targetText"`
}

// SubmitTask allocates a waiting task, spawns its worker and returns
// immediately; it never blocks on pipeline work.
func (o *Orchestrator) SubmitTask(req SubmitTaskRequest) Snapshot {
	if req.TargetLang == "" {
		req.TargetLang = o.settings.DefaultTargetLang
	}
	if req.CustomPrompt == "" {
		req.CustomPrompt = o.settings.DefaultPrompt
	}

	t := o.create(req.TaskID, req.CallbackURL)
	go o.runTranslate(t, req)
	return t.snapshot()
}

// SubmitAssembly allocates a task that goes straight to assembling, skipping
// parse/cache/translate entirely.
func (o *Orchestrator) SubmitAssembly(req SubmitAssemblyRequest) Snapshot {
	t := o.create(req.TaskID, req.CallbackURL)
	go o.runAssembly(t, req)
	return t.snapshot()
}

// Get returns a defensive snapshot of a known task, or false if task_id is
// unrecognized.
func (o *Orchestrator) Get(taskID string) (Snapshot, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.tasks[taskID]
	if !ok {
		return Snapshot{}, false
	}
	return t.snapshot(), true
}

func (o *Orchestrator) create(taskID, callbackURL string) *task {
	t := &task{taskID: taskID, status: StatusWaiting, callbackURL: callbackURL}
	o.mu.Lock()
	o.tasks[taskID] = t
	o.mu.Unlock()
	return t
}

// update runs fn with the mutex held for exactly the duration of the
// field-set, never across I/O — the caller reports afterward, unlocked.
func (o *Orchestrator) update(t *task, fn func(*task)) Snapshot {
	o.mu.Lock()
	fn(t)
	snap := t.snapshot()
	o.mu.Unlock()
	return snap
}

func (o *Orchestrator) setStatus(t *task, s Status) Snapshot {
	return o.update(t, func(t *task) { t.status = s })
}

func (o *Orchestrator) setProgress(t *task, translated, total int) Snapshot {
	return o.update(t, func(t *task) { t.progress = Progress{Translated: translated, Total: total} })
}

func (o *Orchestrator) setFailed(t *task, err error) Snapshot {
	return o.update(t, func(t *task) {
		t.status = StatusFailed
		t.err = err.Error()
	})
}

func (o *Orchestrator) setCompleted(t *task, outputPath, backupPath string) Snapshot {
	return o.update(t, func(t *task) {
		t.status = StatusCompleted
		t.outputPath = outputPath
		t.backupPath = backupPath
	})
}

// runTranslate is the background worker for submit_task: parse -> cache
// query -> dedup -> LLM translate -> merge -> write.
func (o *Orchestrator) runTranslate(t *task, req SubmitTaskRequest) {
	defer func() {
		if r := recover(); r != nil {
			snap := o.setFailed(t, fmt.Errorf("internal error: %v", r))
			o.report(snap)
		}
	}()

	ctx := context.Background()

	snap := o.setStatus(t, StatusParsing)
	o.report(snap)

	records, err := codec.ParseFile(req.FilePath)
	if err != nil {
		snap := o.setFailed(t, fmt.Errorf("parsing %s: %w", req.FilePath, err))
		o.report(snap)
		return
	}
	total := len(records)

	if total == 0 {
		snap := o.update(t, func(t *task) {
			t.status = StatusCompleted
			t.progress = Progress{Translated: 0, Total: 0}
		})
		o.report(snap)
		return
	}

	cached := o.cache.Query(ctx, records, req.TargetLang)
	translations := make(map[string]string, len(records))
	var cachedItems []ProgressItem
	for _, r := range records {
		if text, ok := cached[r.RecordID]; ok {
			translations[r.RecordID] = text
			cachedItems = append(cachedItems, ProgressItem{
				RecordID:   r.RecordID,
				RecordType: codec.RecordType(r.RecordID),
				SourceText: r.Text,
				TargetText: text,
			})
		}
	}

	snap = o.setProgress(t, len(translations), total)
	if len(cachedItems) > 0 {
		snap.Items = cachedItems
	}
	o.report(snap)

	var uncached []codec.StringRecord
	for _, r := range records {
		if _, ok := cached[r.RecordID]; !ok {
			uncached = append(uncached, r)
		}
	}

	snap = o.setStatus(t, StatusTranslating)
	o.report(snap)

	if len(uncached) > 0 {
		groups := dedupByTagAndText(uncached)
		fanout := make(map[string][]string, len(groups))
		representatives := make([]codec.StringRecord, len(groups))
		for i, g := range groups {
			representatives[i] = g.Representative
			fanout[g.Representative.RecordID] = g.Members
		}

		cachedCount := len(translations)
		var mu sync.Mutex

		onBatchTranslated := func(result map[string]string, batch []codec.StringRecord) {
			o.cache.Save(ctx, t.taskID, req.TargetLang, result, batch)

			bySourceID := make(map[string]codec.StringRecord, len(batch))
			for _, r := range batch {
				bySourceID[r.RecordID] = r
			}

			var items []ProgressItem
			mu.Lock()
			for repID, text := range result {
				src, known := bySourceID[repID]
				for _, memberID := range fanout[repID] {
					translations[memberID] = text
					if known {
						items = append(items, ProgressItem{
							RecordID:   memberID,
							RecordType: codec.RecordType(memberID),
							SourceText: src.Text,
							TargetText: text,
						})
					}
				}
			}
			mu.Unlock()

			if len(items) > 0 {
				snap := o.setStatus(t, StatusTranslating)
				snap.Items = items
				o.report(snap)
			}
		}

		onBatchDone := func(cumulative int) {
			snap := o.setProgress(t, cachedCount+cumulative, total)
			o.report(snap)
		}

		glossary := append(append([]prompt.GlossaryEntry(nil), o.settings.Glossary...), req.DictionaryEntries...)
		opts := llmdriver.Options{
			TargetLang:   req.TargetLang,
			CustomPrompt: req.CustomPrompt,
			Glossary:     glossary,
			BatchSize:    o.settings.BatchSize,
			MaxRetries:   o.settings.MaxRetries,
			RetryDelays:  o.settings.RetryDelays,
		}
		llmdriver.Translate(ctx, o.llm, representatives, opts, onBatchTranslated, onBatchDone)
	}

	snap = o.setProgress(t, len(translations), total)
	o.report(snap)

	o.write(t, req.FilePath, translations)
}

// runAssembly is the background worker for submit_assembly: it runs only
// the write step, against a caller-supplied translation list.
func (o *Orchestrator) runAssembly(t *task, req SubmitAssemblyRequest) {
	defer func() {
		if r := recover(); r != nil {
			snap := o.setFailed(t, fmt.Errorf("internal error: %v", r))
			o.report(snap)
		}
	}()

	translations := make(map[string]string, len(req.Items))
	for _, item := range req.Items {
		translations[item.RecordID] = item.TargetText
	}

	o.write(t, req.FilePath, translations)
}

func (o *Orchestrator) write(t *task, filePath string, translations map[string]string) {
	snap := o.setStatus(t, StatusAssembling)
	o.report(snap)

	ext := filepath.Ext(filePath)
	stem := strings.TrimSuffix(filePath, ext)
	outputPath := stem + "_translated" + ext
	backupPath := stem + "_backup" + ext

	if err := codec.RewriteFile(filePath, outputPath, backupPath, translations); err != nil {
		var tooLarge *codec.PayloadTooLargeError
		if !errors.As(err, &tooLarge) {
			err = fmt.Errorf("writing %s: %w", outputPath, err)
		}
		snap := o.setFailed(t, err)
		o.report(snap)
		return
	}

	snap = o.setCompleted(t, outputPath, backupPath)
	o.report(snap)
}

// report POSTs a task snapshot to its callback_url, if any. Failures are
// logged and otherwise ignored: a callback never affects task outcome.
func (o *Orchestrator) report(snap Snapshot) {
	if snap.CallbackURL == "" {
		return
	}

	body, err := json.Marshal(snap)
	if err != nil {
		log.Errorf("orchestrator: marshaling progress report for task %s: %v", snap.TaskID, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), callbackTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, snap.CallbackURL, bytes.NewReader(body))
	if err != nil {
		log.Warnf("orchestrator: building progress callback request for task %s: %v", snap.TaskID, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.callback.Do(req)
	if err != nil {
		log.Warnf("orchestrator: progress callback for task %s failed: %v", snap.TaskID, err)
		return
	}
	resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		log.Warnf("orchestrator: progress callback for task %s returned status %s", snap.TaskID, resp.Status)
	}
}
