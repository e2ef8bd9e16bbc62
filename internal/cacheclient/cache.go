// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package cacheclient is a stateless HTTP client for the external
// translation-cache service: query previously seen strings, and persist
// newly translated ones for next time.
package cacheclient

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/starfield-tools/esm-translate/internal/codec"
	"github.com/starfield-tools/esm-translate/pkg/log"
)

const requestTimeout = 30 * time.Second

// Client talks to the cache service rooted at BaseURL. A network or HTTP
// failure on either operation is logged and swallowed: a query failure is
// treated as a full miss, a save failure is simply discarded, and neither
// ever fails the calling task.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: requestTimeout},
	}
}

type queryItem struct {
	RecordID      string `json:"recordId"`
	RecordType    string `json:"recordType"`
	SubrecordType string `json:"subrecordType"`
	SourceText    string `json:"sourceText"`
}

type queryRequest struct {
	TargetLang string      `json:"targetLang"`
	Items      []queryItem `json:"items"`
}

type queryResponseItem struct {
	RecordID   string `json:"recordId"`
	Hit        bool   `json:"hit"`
	TargetText string `json:"targetText"`
}

type queryResponse struct {
	Items []queryResponseItem `json:"items"`
}

// Query returns record_id -> target_text for every record with a cache hit.
// Records without a hit are simply absent from the result.
func (c *Client) Query(ctx context.Context, records []codec.StringRecord, targetLang string) map[string]string {
	if len(records) == 0 {
		return nil
	}

	items := make([]queryItem, len(records))
	for i, r := range records {
		items[i] = queryItem{
			RecordID:      r.RecordID,
			RecordType:    codec.RecordType(r.RecordID),
			SubrecordType: codec.SubrecordType(r.RecordID),
			SourceText:    r.Text,
		}
	}

	var resp queryResponse
	if err := c.post(ctx, "/api/translation-cache/query", queryRequest{TargetLang: targetLang, Items: items}, &resp); err != nil {
		log.Warnf("cacheclient: query failed, treating %d records as uncached: %v", len(records), err)
		return nil
	}

	hits := make(map[string]string, len(resp.Items))
	for _, item := range resp.Items {
		if item.Hit {
			hits[item.RecordID] = item.TargetText
		}
	}
	return hits
}

type saveItem struct {
	RecordType    string `json:"recordType"`
	SubrecordType string `json:"subrecordType"`
	SourceText    string `json:"sourceText"`
	TargetText    string `json:"targetText"`
}

type saveRequest struct {
	TaskID     string     `json:"taskId"`
	TargetLang string     `json:"targetLang"`
	Items      []saveItem `json:"items"`
}

// Save persists translations for records to the cache. The key on the
// server side is (recordType, subrecordType, sourceText, targetLang) — no
// form id — so identical text under the same tag pair shares a translation
// across every occurrence, including ones outside this batch.
func (c *Client) Save(ctx context.Context, taskID, targetLang string, translations map[string]string, records []codec.StringRecord) {
	if len(translations) == 0 {
		return
	}

	bySourceID := make(map[string]codec.StringRecord, len(records))
	for _, r := range records {
		bySourceID[r.RecordID] = r
	}

	items := make([]saveItem, 0, len(translations))
	for recordID, targetText := range translations {
		r, ok := bySourceID[recordID]
		if !ok {
			continue
		}
		items = append(items, saveItem{
			RecordType:    codec.RecordType(recordID),
			SubrecordType: codec.SubrecordType(recordID),
			SourceText:    r.Text,
			TargetText:    targetText,
		})
	}
	if len(items) == 0 {
		return
	}

	req := saveRequest{TaskID: taskID, TargetLang: targetLang, Items: items}
	if err := c.post(ctx, "/api/translation-cache/save", req, nil); err != nil {
		log.Warnf("cacheclient: save failed, discarding %d items: %v", len(items), err)
	}
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return &httpStatusError{Status: resp.Status}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type httpStatusError struct {
	Status string
}

func (e *httpStatusError) Error() string {
	return "unexpected HTTP status " + e.Status
}
