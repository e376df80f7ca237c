// Package pagination counts the records of an Airtable table by walking its
// offset-chained pages.
//
// Airtable returns at most 100 records per page together with an "offset"
// cursor while more pages remain. The counter issues one request per page,
// strictly in order, adding up the size of each page's "records" list until
// a response arrives without an offset.
//
// Example usage:
//
//	airtable, _ := client.New(client.DefaultConfig())
//	counter := pagination.NewCounter(airtable, pagination.DefaultConfig())
//	result, err := counter.CountRecords(ctx, "https://api.airtable.com/v0/appABC/tbl123", apiKey)
//
// The counter:
//   - Fetches pages sequentially, each at most once
//   - Treats a missing "records" key as an empty page
//   - Aborts on the first failure and never returns a partial count
//   - Stops between pages when the context is cancelled
//   - Optionally bounds the number of pages (Config.MaxPages)
package pagination
