package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/Sternrassler/airtable-record-counter/internal/testutil"
	"github.com/Sternrassler/airtable-record-counter/pkg/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedFetcher serves pages keyed by the offset that requests them.
type scriptedFetcher struct {
	pages   map[string]*client.Page
	errs    map[string]error
	offsets []string
	tokens  []string
}

func (f *scriptedFetcher) FetchPage(ctx context.Context, endpoint, token, offset string) (*client.Page, error) {
	f.offsets = append(f.offsets, offset)
	f.tokens = append(f.tokens, token)

	if err, ok := f.errs[offset]; ok {
		return nil, err
	}
	page, ok := f.pages[offset]
	if !ok {
		return nil, fmt.Errorf("unexpected offset %q", offset)
	}
	return page, nil
}

// chain builds a fetcher whose pages hold the given record counts.
func chain(counts ...int) *scriptedFetcher {
	f := &scriptedFetcher{pages: map[string]*client.Page{}, errs: map[string]error{}}

	offset := ""
	for i, n := range counts {
		page := &client.Page{Records: records(n)}
		if i < len(counts)-1 {
			page.Offset = fmt.Sprintf("itr%d", i+1)
		}
		f.pages[offset] = page
		offset = page.Offset
	}
	return f
}

func records(n int) []json.RawMessage {
	out := make([]json.RawMessage, n)
	for i := range out {
		out[i] = json.RawMessage(fmt.Sprintf(`{"id":"rec%d"}`, i))
	}
	return out
}

// endlessFetcher always returns another offset.
type endlessFetcher struct {
	calls int
}

func (f *endlessFetcher) FetchPage(ctx context.Context, endpoint, token, offset string) (*client.Page, error) {
	f.calls++
	return &client.Page{Records: records(1), Offset: fmt.Sprintf("itr%d", f.calls)}, nil
}

const endpoint = "https://api.airtable.com/v0/appABC/tbl123"

func TestCountRecords_SinglePage(t *testing.T) {
	fetcher := chain(3)
	counter := NewCounter(fetcher, DefaultConfig())

	result, err := counter.CountRecords(context.Background(), endpoint, "keyTEST")
	require.NoError(t, err)

	assert.Equal(t, "tbl123", result.TableID)
	assert.Equal(t, 3, result.RecordCount)
	assert.Equal(t, 1, result.Pages)
	assert.Equal(t, []string{""}, fetcher.offsets)
	assert.Equal(t, []string{"keyTEST"}, fetcher.tokens)
}

func TestCountRecords_TwoPages(t *testing.T) {
	fetcher := &scriptedFetcher{
		pages: map[string]*client.Page{
			"":    {Records: records(2), Offset: "abc"},
			"abc": {Records: records(1)},
		},
	}
	counter := NewCounter(fetcher, DefaultConfig())

	result, err := counter.CountRecords(context.Background(), endpoint, "key")
	require.NoError(t, err)

	assert.Equal(t, 3, result.RecordCount)
	assert.Equal(t, 2, result.Pages)
	assert.Equal(t, []string{"", "abc"}, fetcher.offsets, "page N must use page N-1's offset")
}

func TestCountRecords_SumsAllPages(t *testing.T) {
	tests := []struct {
		name   string
		counts []int
	}{
		{name: "empty table", counts: []int{0}},
		{name: "full pages", counts: []int{100, 100, 100}},
		{name: "ragged pages", counts: []int{100, 37, 0, 5, 1}},
		{name: "many pages", counts: []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := chain(tt.counts...)
			counter := NewCounter(fetcher, DefaultConfig())

			result, err := counter.CountRecords(context.Background(), endpoint, "key")
			require.NoError(t, err)

			expected := 0
			for _, n := range tt.counts {
				expected += n
			}
			assert.Equal(t, expected, result.RecordCount)
			assert.Equal(t, len(tt.counts), result.Pages)
			assert.Len(t, fetcher.offsets, len(tt.counts))
		})
	}
}

func TestCountRecords_MissingRecordsCountsZero(t *testing.T) {
	fetcher := &scriptedFetcher{
		pages: map[string]*client.Page{
			"":     {Records: records(4), Offset: "itr1"},
			"itr1": {Offset: "itr2"},
			"itr2": {Records: records(2)},
		},
	}
	counter := NewCounter(fetcher, DefaultConfig())

	result, err := counter.CountRecords(context.Background(), endpoint, "key")
	require.NoError(t, err)
	assert.Equal(t, 6, result.RecordCount)
}

func TestCountRecords_ErrorDiscardsProgress(t *testing.T) {
	upstream := &client.UpstreamError{StatusCode: 500, ErrorClass: client.ErrorClassServer, Body: "oops"}

	fetcher := chain(100, 100, 100)
	fetcher.errs["itr2"] = upstream
	counter := NewCounter(fetcher, DefaultConfig())

	result, err := counter.CountRecords(context.Background(), endpoint, "key")
	assert.Nil(t, result, "no partial count may be returned")
	require.Error(t, err)

	got, ok := client.IsUpstreamError(err)
	require.True(t, ok)
	assert.Equal(t, 500, got.StatusCode)
	assert.Equal(t, []string{"", "itr1", "itr2"}, fetcher.offsets, "pagination must stop at the failing page")
}

func TestCountRecords_FirstPageError(t *testing.T) {
	fetcher := chain(3)
	fetcher.errs[""] = errors.New("decode page: invalid character '<'")
	counter := NewCounter(fetcher, DefaultConfig())

	result, err := counter.CountRecords(context.Background(), endpoint, "key")
	assert.Nil(t, result)
	assert.EqualError(t, err, "decode page: invalid character '<'")
	assert.Len(t, fetcher.offsets, 1)
}

func TestCountRecords_MaxPages(t *testing.T) {
	fetcher := &endlessFetcher{}
	counter := NewCounter(fetcher, Config{MaxPages: 5})

	result, err := counter.CountRecords(context.Background(), endpoint, "key")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrMaxPagesExceeded)
	assert.Equal(t, 5, fetcher.calls)
}

func TestCountRecords_MaxPagesNotReached(t *testing.T) {
	fetcher := chain(10, 10, 10)
	counter := NewCounter(fetcher, Config{MaxPages: 3})

	result, err := counter.CountRecords(context.Background(), endpoint, "key")
	require.NoError(t, err)
	assert.Equal(t, 30, result.RecordCount)
}

func TestCountRecords_BoundedProviderEventuallyStops(t *testing.T) {
	// A provider that keeps returning offsets for a long time still ends
	// when it finally omits one; the default config imposes no bound.
	counts := make([]int, 250)
	for i := range counts {
		counts[i] = 100
	}
	fetcher := chain(counts...)
	counter := NewCounter(fetcher, DefaultConfig())

	result, err := counter.CountRecords(context.Background(), endpoint, "key")
	require.NoError(t, err)
	assert.Equal(t, 25000, result.RecordCount)
	assert.Equal(t, 250, result.Pages)
}

func TestCountRecords_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fetcher := &cancellingFetcher{cancel: cancel, after: 3}
	counter := NewCounter(fetcher, DefaultConfig())

	result, err := counter.CountRecords(ctx, endpoint, "key")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, fetcher.calls)
}

type cancellingFetcher struct {
	cancel context.CancelFunc
	after  int
	calls  int
}

func (f *cancellingFetcher) FetchPage(ctx context.Context, endpoint, token, offset string) (*client.Page, error) {
	f.calls++
	if f.calls == f.after {
		f.cancel()
	}
	return &client.Page{Records: records(1), Offset: fmt.Sprintf("itr%d", f.calls)}, nil
}

func TestCountRecords_Idempotent(t *testing.T) {
	mock := testutil.NewMockAirtable()
	defer mock.Close()
	mock.SetTable("appABC", "tbl123", testutil.NewPagedTable(100, 100, 42))

	airtable, err := client.New(client.DefaultConfig())
	require.NoError(t, err)
	counter := NewCounter(airtable, DefaultConfig())

	first, err := counter.CountRecords(context.Background(), mock.TableURL("appABC", "tbl123"), "key")
	require.NoError(t, err)
	second, err := counter.CountRecords(context.Background(), mock.TableURL("appABC", "tbl123"), "key")
	require.NoError(t, err)

	assert.Equal(t, 242, first.RecordCount)
	assert.Equal(t, first.RecordCount, second.RecordCount)
	assert.Equal(t, 6, mock.GetRequestCount())
}

func TestCountRecords_AgainstMockAirtable(t *testing.T) {
	mock := testutil.NewMockAirtable()
	defer mock.Close()
	mock.SetTable("appABC", "tbl123", []testutil.MockPage{
		{Records: 2, Offset: "abc"},
		{Records: 1},
	})

	airtable, err := client.New(client.DefaultConfig())
	require.NoError(t, err)

	result, err := NewCounter(airtable, DefaultConfig()).
		CountRecords(context.Background(), mock.TableURL("appABC", "tbl123"), "key")
	require.NoError(t, err)

	assert.Equal(t, 3, result.RecordCount)
	assert.Equal(t, []string{"", "abc"}, mock.GetOffsets())
}

func TestTableID(t *testing.T) {
	tests := []struct {
		endpoint string
		expected string
	}{
		{"https://api.airtable.com/v0/appABC/tbl123", "tbl123"},
		{"https://api.airtable.com/v0/appABC/tbl123/", "tbl123"},
		{"https://api.airtable.com/v0/appABC/Table%20One?view=Grid", "Table One"},
		{"https://api.airtable.com", ""},
		{"://bad", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, TableID(tt.endpoint), tt.endpoint)
	}
}
