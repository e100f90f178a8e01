// Package pagination follows cursor-style paginated collections to exhaustion.
//
// The catalog API links each page to the next through an absolute "next" URL,
// so pages are fetched strictly one after another: the URL of page N+1 is only
// known once page N has arrived.
//
// Example usage:
//
//	collector := pagination.NewCollector(apiClient, pagination.DefaultConfig())
//	people, err := pagination.Collect[swapi.Person](ctx, collector, "/people")
//
// The collector:
//   - Appends each page's results in upstream order
//   - Stops when "next" is null or empty
//   - Aborts on the first failed page (no partial results)
//   - Refuses to revisit a URL already fetched (ErrPaginationCycle)
//   - Stops after Config.MaxPages pages (ErrTooManyPages)
package pagination
