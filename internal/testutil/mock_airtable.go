// Package testutil provides testing utilities for the record counter.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockPage defines one page served by a mock table.
// A zero StatusCode means 200 with a generated records body.
type MockPage struct {
	Records    int
	Offset     string
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockAirtable is a configurable mock Airtable server for testing.
type MockAirtable struct {
	server   *httptest.Server
	mu       sync.RWMutex
	tables   map[string][]MockPage
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount      int
	Offsets           []string
	LastRequestHeader http.Header
}

// NewMockAirtable creates a new mock Airtable server.
func NewMockAirtable() *MockAirtable {
	mock := &MockAirtable{
		tables:   make(map[string][]MockPage),
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.Offsets = append(mock.Offsets, r.URL.Query().Get("offset"))
		mock.LastRequestHeader = r.Header.Clone()
		handler, hasHandler := mock.handlers[r.URL.Path]
		pages, hasTable := mock.tables[r.URL.Path]
		mock.mu.Unlock()

		switch {
		case hasHandler:
			handler(w, r)
		case hasTable:
			mock.servePage(w, r, pages)
		default:
			writeJSON(w, http.StatusNotFound, map[string]any{
				"error": map[string]string{"type": "NOT_FOUND"},
			})
		}
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockAirtable) URL() string {
	return m.server.URL
}

// TableURL returns the endpoint of a table within a base.
func (m *MockAirtable) TableURL(baseID, tableID string) string {
	return fmt.Sprintf("%s/v0/%s/%s", m.server.URL, baseID, tableID)
}

// Close shuts down the mock server.
func (m *MockAirtable) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockAirtable) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.Offsets = nil
	m.LastRequestHeader = nil
}

// SetTable configures the pages served for a table. Page i+1 is served for
// the offset carried by page i; the first page is served without offset.
func (m *MockAirtable) SetTable(baseID, tableID string, pages []MockPage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[fmt.Sprintf("/v0/%s/%s", baseID, tableID)] = pages
}

// SetHandler sets a custom handler for a specific path.
func (m *MockAirtable) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockAirtable) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetOffsets returns the offset parameter of every request, in order.
func (m *MockAirtable) GetOffsets() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.Offsets...)
}

// GetLastRequestHeader returns the headers of the most recent request.
func (m *MockAirtable) GetLastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader
}

func (m *MockAirtable) servePage(w http.ResponseWriter, r *http.Request, pages []MockPage) {
	offset := r.URL.Query().Get("offset")

	index := -1
	if offset == "" {
		index = 0
	} else {
		for i, p := range pages {
			if p.Offset == offset && i+1 < len(pages) {
				index = i + 1
				break
			}
		}
	}

	if index < 0 || index >= len(pages) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error": map[string]string{"type": "LIST_RECORDS_ITERATOR_NOT_AVAILABLE"},
		})
		return
	}

	page := pages[index]
	if page.Delay > 0 {
		time.Sleep(page.Delay)
	}
	for key, value := range page.Headers {
		w.Header().Set(key, value)
	}

	if page.StatusCode != 0 && page.StatusCode != http.StatusOK {
		w.WriteHeader(page.StatusCode)
		w.Write([]byte(page.Body))
		return
	}

	if page.Body != "" {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(page.Body))
		return
	}

	body := map[string]any{"records": NewRecords(index, page.Records)}
	if page.Offset != "" {
		body["offset"] = page.Offset
	}
	writeJSON(w, http.StatusOK, body)
}

// NewRecords builds n Airtable-shaped records.
func NewRecords(page, n int) []map[string]any {
	records := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, map[string]any{
			"id":          fmt.Sprintf("rec%03d%03d", page, i),
			"createdTime": "2026-01-02T03:04:05.000Z",
			"fields":      map[string]any{"Name": fmt.Sprintf("row %d", i)},
		})
	}
	return records
}

// NewPagedTable builds pages with the given record counts, chained by
// generated offsets. The last page carries no offset.
func NewPagedTable(counts ...int) []MockPage {
	pages := make([]MockPage, 0, len(counts))
	for i, n := range counts {
		page := MockPage{Records: n}
		if i < len(counts)-1 {
			page.Offset = fmt.Sprintf("itr%d/rec%05d", i+1, i+1)
		}
		pages = append(pages, page)
	}
	return pages
}

// NewErrorPage creates a page answering with a non-success status.
func NewErrorPage(statusCode int, body string) MockPage {
	return MockPage{StatusCode: statusCode, Body: body}
}

// NewUnauthorizedPage creates the 401 Airtable sends for a bad API key.
func NewUnauthorizedPage() MockPage {
	return NewErrorPage(http.StatusUnauthorized,
		`{"error":{"type":"AUTHENTICATION_REQUIRED","message":"Authentication required"}}`)
}

// NewRateLimitPage creates a 429 response with an optional Retry-After.
func NewRateLimitPage(retryAfter string) MockPage {
	page := NewErrorPage(http.StatusTooManyRequests,
		`{"errors":[{"error":"RATE_LIMIT_REACHED","message":"Rate limit exceeded. Please try again later"}]}`)
	if retryAfter != "" {
		page.Headers = map[string]string{"Retry-After": retryAfter}
	}
	return page
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
