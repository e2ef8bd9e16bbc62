// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package orchestrator

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starfield-tools/esm-translate/internal/cacheclient"
	"github.com/starfield-tools/esm-translate/internal/codec"
	"github.com/starfield-tools/esm-translate/internal/prompt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// minimal plugin-file builder, just enough to exercise the orchestrator
// end-to-end without depending on codec's unexported test helpers.

func weapRecord(formID uint32, text string) []byte {
	sub := []byte("FULL")
	payload := append([]byte(text), 0)
	var subSize [2]byte
	binary.LittleEndian.PutUint16(subSize[:], uint16(len(payload)))

	var subBuf bytes.Buffer
	subBuf.Write(sub)
	subBuf.Write(subSize[:])
	subBuf.Write(payload)

	var buf bytes.Buffer
	buf.WriteString("WEAP")
	var dataSize [4]byte
	binary.LittleEndian.PutUint32(dataSize[:], uint32(subBuf.Len()))
	buf.Write(dataSize[:])
	buf.Write(make([]byte, 4)) // flags
	var formIDBuf [4]byte
	binary.LittleEndian.PutUint32(formIDBuf[:], formID)
	buf.Write(formIDBuf[:])
	buf.Write(make([]byte, 8)) // revision + version + unknown
	buf.Write(subBuf.Bytes())
	return buf.Bytes()
}

func buildPlugin(texts ...string) []byte {
	var inner bytes.Buffer
	for i, text := range texts {
		inner.Write(weapRecord(uint32(i+1), text))
	}

	var group bytes.Buffer
	group.WriteString("GRUP")
	var groupSize [4]byte
	binary.LittleEndian.PutUint32(groupSize[:], uint32(24+inner.Len()))
	group.Write(groupSize[:])
	group.Write(make([]byte, 4+12)) // label + group_type + stamp + unknown
	group.Write(inner.Bytes())

	header := make([]byte, 24) // TES4, data_size 0
	copy(header[0:4], "TES4")

	var plugin bytes.Buffer
	plugin.Write(header)
	plugin.Write(group.Bytes())
	return plugin.Bytes()
}

// echoClient returns a translated reply by prefixing each numbered source
// line with "T:", and records the size and prompt of every batch it receives.
type echoClient struct {
	batchSizes []int
	prompts    []string
}

func (c *echoClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var lines []string
	for _, line := range strings.Split(userPrompt, "\n") {
		if strings.HasPrefix(line, "[") {
			idx := strings.Index(line, "]")
			lines = append(lines, line[:idx+1]+" T:"+line[idx+2:])
		}
	}
	c.batchSizes = append(c.batchSizes, len(lines))
	c.prompts = append(c.prompts, userPrompt)
	return strings.Join(lines, "\n"), nil
}

func TestSubmitTask_DedupFanOutAndWrite(t *testing.T) {
	// S7: 5 records, records 2 and 4 (1-indexed) share (sub_type, text).
	texts := []string{"Iron Sword", "Steel Sword", "Iron Shield", "Steel Sword", "Iron Helmet"}
	data := buildPlugin(texts...)

	dir := t.TempDir()
	filePath := filepath.Join(dir, "plugin.esm")
	require.NoError(t, os.WriteFile(filePath, data, 0o644))

	cacheSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/query") {
			json.NewEncoder(w).Encode(map[string]interface{}{"items": []interface{}{}})
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer cacheSrv.Close()

	llm := &echoClient{}

	done := make(chan Snapshot, 8)
	callbackSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var snap Snapshot
		json.NewDecoder(r.Body).Decode(&snap)
		done <- snap
		w.WriteHeader(http.StatusOK)
	}))
	defer callbackSrv.Close()

	orch := New(cacheclient.New(cacheSrv.URL), llm, Settings{})
	snap := orch.SubmitTask(SubmitTaskRequest{
		TaskID:      "task-1",
		FilePath:    filePath,
		CallbackURL: callbackSrv.URL,
	})
	assert.Equal(t, StatusWaiting, snap.Status)

	var final Snapshot
	timeout := time.After(5 * time.Second)
waitLoop:
	for {
		select {
		case s := <-done:
			if s.Status == StatusCompleted || s.Status == StatusFailed {
				final = s
				break waitLoop
			}
		case <-timeout:
			t.Fatal("timed out waiting for task completion")
		}
	}

	require.Equal(t, StatusCompleted, final.Status)
	assert.Equal(t, 5, final.Progress.Total)
	assert.Equal(t, 5, final.Progress.Translated)

	// Dedup fan-out: the driver saw 4 unique records, not 5.
	require.Len(t, llm.batchSizes, 1)
	assert.Equal(t, 4, llm.batchSizes[0])

	outData, err := os.ReadFile(final.OutputPath)
	require.NoError(t, err)
	outRecords := codec.ParseBytes(outData)
	require.Len(t, outRecords, 5)

	byID := make(map[string]string, len(outRecords))
	for _, r := range outRecords {
		byID[r.RecordID] = r.Text
	}
	assert.Equal(t, byID["WEAP:00000002:FULL"], byID["WEAP:00000004:FULL"])
	assert.Equal(t, "T:Steel Sword", byID["WEAP:00000002:FULL"])
}

func TestSubmitTask_ZeroRecordsCompletesImmediately(t *testing.T) {
	data := buildPlugin()
	dir := t.TempDir()
	filePath := filepath.Join(dir, "empty.esm")
	require.NoError(t, os.WriteFile(filePath, data, 0o644))

	cacheSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"items": []interface{}{}})
	}))
	defer cacheSrv.Close()

	orch := New(cacheclient.New(cacheSrv.URL), &echoClient{}, Settings{})
	orch.SubmitTask(SubmitTaskRequest{TaskID: "task-2", FilePath: filePath})

	require.Eventually(t, func() bool {
		snap, ok := orch.Get("task-2")
		return ok && snap.Status == StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSubmitTask_AllCachedSkipsLLM(t *testing.T) {
	data := buildPlugin("Iron Sword", "Steel Sword")
	dir := t.TempDir()
	filePath := filepath.Join(dir, "plugin.esm")
	require.NoError(t, os.WriteFile(filePath, data, 0o644))

	cacheSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/query") {
			var req struct {
				Items []struct {
					RecordID string `json:"recordId"`
				} `json:"items"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			items := make([]map[string]interface{}, len(req.Items))
			for i, item := range req.Items {
				items[i] = map[string]interface{}{"recordId": item.RecordID, "hit": true, "targetText": "缓存"}
			}
			json.NewEncoder(w).Encode(map[string]interface{}{"items": items})
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer cacheSrv.Close()

	reports := make(chan Snapshot, 16)
	callbackSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var snap Snapshot
		json.NewDecoder(r.Body).Decode(&snap)
		reports <- snap
		w.WriteHeader(http.StatusOK)
	}))
	defer callbackSrv.Close()

	llm := &echoClient{}
	orch := New(cacheclient.New(cacheSrv.URL), llm, Settings{})
	orch.SubmitTask(SubmitTaskRequest{TaskID: "task-5", FilePath: filePath, CallbackURL: callbackSrv.URL})

	var statuses []Status
	timeout := time.After(5 * time.Second)
	for done := false; !done; {
		select {
		case s := <-reports:
			statuses = append(statuses, s.Status)
			done = s.Status == StatusCompleted || s.Status == StatusFailed
		case <-timeout:
			t.Fatal("timed out waiting for task completion")
		}
	}

	assert.Empty(t, llm.batchSizes)

	// Fully cached tasks still pass through every pipeline state.
	assert.Contains(t, statuses, StatusParsing)
	assert.Contains(t, statuses, StatusTranslating)
	assert.Contains(t, statuses, StatusAssembling)
	assert.Equal(t, StatusCompleted, statuses[len(statuses)-1])

	snap, _ := orch.Get("task-5")
	assert.Equal(t, 2, snap.Progress.Translated)
	outData, err := os.ReadFile(snap.OutputPath)
	require.NoError(t, err)
	for _, r := range codec.ParseBytes(outData) {
		assert.Equal(t, "缓存", r.Text)
	}
}

func TestSubmitTask_SettingsDefaultsApplied(t *testing.T) {
	data := buildPlugin("Iron Sword")
	dir := t.TempDir()
	filePath := filepath.Join(dir, "plugin.esm")
	require.NoError(t, os.WriteFile(filePath, data, 0o644))

	var gotLang string
	cacheSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/query") {
			var req struct {
				TargetLang string `json:"targetLang"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			gotLang = req.TargetLang
			json.NewEncoder(w).Encode(map[string]interface{}{"items": []interface{}{}})
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer cacheSrv.Close()

	llm := &echoClient{}
	orch := New(cacheclient.New(cacheSrv.URL), llm, Settings{
		DefaultTargetLang: "de-DE",
		Glossary:          []prompt.GlossaryEntry{{SourceText: "Sword", TargetText: "Schwert"}},
	})
	orch.SubmitTask(SubmitTaskRequest{TaskID: "task-4", FilePath: filePath})

	require.Eventually(t, func() bool {
		snap, ok := orch.Get("task-4")
		return ok && snap.Status == StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, "de-DE", gotLang)
	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], "Sword → Schwert")
}

func TestSubmitAssembly_WritesTranslationsDirectly(t *testing.T) {
	data := buildPlugin("Iron Sword")
	dir := t.TempDir()
	filePath := filepath.Join(dir, "plugin.esm")
	require.NoError(t, os.WriteFile(filePath, data, 0o644))

	orch := New(cacheclient.New("http://unused.invalid"), &echoClient{}, Settings{})
	orch.SubmitAssembly(SubmitAssemblyRequest{
		TaskID:   "task-3",
		FilePath: filePath,
		Items:    []AssemblyItem{{RecordID: "WEAP:00000001:FULL", TargetText: "剑"}},
	})

	require.Eventually(t, func() bool {
		snap, ok := orch.Get("task-3")
		return ok && snap.Status == StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	snap, _ := orch.Get("task-3")
	outData, err := os.ReadFile(snap.OutputPath)
	require.NoError(t, err)
	outRecords := codec.ParseBytes(outData)
	require.Len(t, outRecords, 1)
	assert.Equal(t, "剑", outRecords[0].Text)
}
