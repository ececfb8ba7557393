// Package stream validates a FHIR Bundle's entries against a
// validate.Validator without holding the whole document in memory:
// ValidateStream reads entries as the JSON decoder reaches them, while
// ValidateStreamParallel fans them out across a worker.Pool.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	fv "github.com/gofhir/fschema"
	"github.com/gofhir/fschema/worker"
)

// EntryResult represents the validation result for a single bundle entry.
type EntryResult struct {
	// Index is the position of the entry in the bundle
	Index int

	// FullURL is the fullUrl of the entry (if present)
	FullURL string

	// ResourceType is the type of resource in the entry
	ResourceType string

	// ResourceID is the id of the resource (if present)
	ResourceID string

	// Result contains the validation issues for this entry
	Result *fv.Result

	// Error is set if there was an error processing the entry
	Error error
}

// BundleValidator validates bundles in a streaming fashion, delegating
// each entry to a worker.Validator (a *validate.Validator satisfies this
// directly) seeded with the same profile URLs for every entry.
type BundleValidator struct {
	validator worker.Validator
	seedURLs  []string

	// bufferSize is the channel buffer size
	bufferSize int

	// workerCount is the number of parallel workers used by ValidateStreamParallel
	workerCount int
}

// NewBundleValidator creates a new streaming bundle validator.
func NewBundleValidator(validator worker.Validator, seedURLs []string) *BundleValidator {
	return &BundleValidator{
		validator:   validator,
		seedURLs:    seedURLs,
		bufferSize:  100,
		workerCount: 4,
	}
}

// WithBufferSize sets the channel buffer size.
func (v *BundleValidator) WithBufferSize(size int) *BundleValidator {
	if size > 0 {
		v.bufferSize = size
	}
	return v
}

// WithWorkerCount sets the number of parallel workers.
func (v *BundleValidator) WithWorkerCount(count int) *BundleValidator {
	if count > 0 {
		v.workerCount = count
	}
	return v
}

// ValidateStream validates a bundle from an io.Reader, emitting results as entries are processed.
// Results are emitted in the order they appear in the bundle.
func (v *BundleValidator) ValidateStream(ctx context.Context, r io.Reader) <-chan *EntryResult {
	results := make(chan *EntryResult, v.bufferSize)

	go func() {
		defer close(results)

		// Decode the bundle
		decoder := json.NewDecoder(r)

		// Read opening brace
		token, err := decoder.Token()
		if err != nil {
			results <- &EntryResult{Index: -1, Error: fmt.Errorf("failed to read bundle: %w", err)}
			return
		}
		if delim, ok := token.(json.Delim); !ok || delim != '{' {
			results <- &EntryResult{Index: -1, Error: fmt.Errorf("expected object start, got %v", token)}
			return
		}

		// Process bundle fields until we find "entry"
		for decoder.More() {
			select {
			case <-ctx.Done():
				results <- &EntryResult{Index: -1, Error: ctx.Err()}
				return
			default:
			}

			// Read field name
			token, err := decoder.Token()
			if err != nil {
				results <- &EntryResult{Index: -1, Error: fmt.Errorf("failed to read field: %w", err)}
				return
			}

			fieldName, ok := token.(string)
			if !ok {
				continue
			}

			if fieldName == "entry" {
				// Process entries
				v.processEntries(ctx, decoder, results)
				return
			}

			// Skip other fields
			var skip any
			if err := decoder.Decode(&skip); err != nil {
				results <- &EntryResult{Index: -1, Error: fmt.Errorf("failed to skip field %s: %w", fieldName, err)}
				return
			}
		}

		// No entry field found - empty bundle
	}()

	return results
}

// processEntries processes the entry array from the bundle.
func (v *BundleValidator) processEntries(ctx context.Context, decoder *json.Decoder, results chan<- *EntryResult) {
	// Read opening bracket of entry array
	token, err := decoder.Token()
	if err != nil {
		results <- &EntryResult{Index: -1, Error: fmt.Errorf("failed to read entry array: %w", err)}
		return
	}
	if delim, ok := token.(json.Delim); !ok || delim != '[' {
		results <- &EntryResult{Index: -1, Error: fmt.Errorf("expected array start, got %v", token)}
		return
	}

	// Process each entry
	index := 0
	for decoder.More() {
		select {
		case <-ctx.Done():
			results <- &EntryResult{Index: index, Error: ctx.Err()}
			return
		default:
		}

		// Decode the entry
		var entry map[string]any
		if err := decoder.Decode(&entry); err != nil {
			results <- &EntryResult{
				Index: index,
				Error: fmt.Errorf("failed to decode entry %d: %w", index, err),
			}
			index++
			continue
		}

		// Process the entry
		result := v.processEntry(entry, index)
		results <- result
		index++
	}
}

// extractEntryMeta pulls the fullUrl and, when the entry carries an inline
// resource, its resourceType and id, returning the decoded resource map
// itself (nil when the entry has none).
func extractEntryMeta(entry map[string]any) (fullURL, resourceType, resourceID string, resource map[string]any) {
	if s, ok := entry["fullUrl"].(string); ok {
		fullURL = s
	}
	resource, _ = entry["resource"].(map[string]any)
	if resource != nil {
		if rt, ok := resource["resourceType"].(string); ok {
			resourceType = rt
		}
		if id, ok := resource["id"].(string); ok {
			resourceID = id
		}
	}
	return
}

// processEntry validates a single bundle entry synchronously against v.validator.
func (v *BundleValidator) processEntry(entry map[string]any, index int) *EntryResult {
	fullURL, resourceType, resourceID, resource := extractEntryMeta(entry)
	result := &EntryResult{Index: index, FullURL: fullURL}

	if resource == nil {
		result.Result = fv.AcquireResult()
		return result
	}
	result.ResourceType = resourceType
	result.ResourceID = resourceID

	resourceJSON, err := json.Marshal(resource)
	if err != nil {
		result.Error = fmt.Errorf("failed to marshal resource %d: %w", index, err)
		return result
	}

	result.Result = v.validator.Validate(resourceJSON, v.seedURLs)
	return result
}

// ValidateStreamParallel validates entries in parallel via a worker.Pool
// while preserving order in the output.
func (v *BundleValidator) ValidateStreamParallel(ctx context.Context, r io.Reader) <-chan *EntryResult {
	results := make(chan *EntryResult, v.bufferSize)

	go func() {
		defer close(results)

		var bundle map[string]any
		if err := json.NewDecoder(r).Decode(&bundle); err != nil {
			results <- &EntryResult{Index: -1, Error: fmt.Errorf("failed to decode bundle: %w", err)}
			return
		}

		entries, ok := bundle["entry"].([]any)
		if !ok {
			// No entries
			return
		}

		type meta struct{ fullURL, resourceType, resourceID string }
		metas := make([]meta, len(entries))
		pending := make(map[int]*EntryResult, len(entries))
		pool := worker.NewPool(v.validator, v.workerCount)

		for i, e := range entries {
			select {
			case <-ctx.Done():
				pool.Close()
				return
			default:
			}

			entry, ok := e.(map[string]any)
			if !ok {
				pending[i] = &EntryResult{Index: i}
				continue
			}

			fullURL, resourceType, resourceID, resource := extractEntryMeta(entry)
			metas[i] = meta{fullURL, resourceType, resourceID}

			if resource == nil {
				pending[i] = &EntryResult{Index: i, FullURL: fullURL, Result: fv.AcquireResult()}
				continue
			}
			resourceJSON, err := json.Marshal(resource)
			if err != nil {
				pending[i] = &EntryResult{Index: i, FullURL: fullURL, Error: fmt.Errorf("failed to marshal resource %d: %w", i, err)}
				continue
			}
			pool.Submit(worker.Job{Index: i, Resource: resourceJSON, Profiles: v.seedURLs})
		}

		batch := pool.CloseAndWait()
		for _, jr := range batch.Results {
			m := metas[jr.Index]
			pending[jr.Index] = &EntryResult{
				Index:        jr.Index,
				FullURL:      m.fullURL,
				ResourceType: m.resourceType,
				ResourceID:   m.resourceID,
				Result:       jr.Result,
				Error:        jr.Error,
			}
		}

		for i := 0; i < len(entries); i++ {
			er, ok := pending[i]
			if !ok {
				continue
			}
			select {
			case results <- er:
			case <-ctx.Done():
				return
			}
		}
	}()

	return results
}

// BundleStreamResult aggregates results from streaming validation.
type BundleStreamResult struct {
	// TotalEntries is the number of entries processed
	TotalEntries int

	// EntriesWithErrors is the count of entries that had errors
	EntriesWithErrors int

	// EntriesWithWarnings is the count of entries that had warnings (but no errors)
	EntriesWithWarnings int

	// TotalIssues is the total number of issues found
	TotalIssues int

	// ProcessingErrors are errors that occurred during processing (not validation errors)
	ProcessingErrors []error

	// Issues is a slice of all issues, indexed by entry
	Issues map[int][]fv.Issue
}

// Aggregate collects all results from a streaming validation.
func Aggregate(results <-chan *EntryResult) *BundleStreamResult {
	agg := &BundleStreamResult{
		Issues: make(map[int][]fv.Issue),
	}

	for result := range results {
		if result.Error != nil {
			agg.ProcessingErrors = append(agg.ProcessingErrors, result.Error)
			continue
		}

		if result.Index < 0 {
			continue // Bundle-level error already captured
		}

		agg.TotalEntries++

		if result.Result == nil {
			continue
		}

		issues := result.Result.Issues
		if len(issues) > 0 {
			stored := make([]fv.Issue, len(issues))
			copy(stored, issues)
			agg.Issues[result.Index] = stored
			agg.TotalIssues += len(issues)

			hasError := false
			hasWarning := false
			for _, issue := range issues {
				if issue.Severity == fv.SeverityError {
					hasError = true
				} else if issue.Severity == fv.SeverityWarning {
					hasWarning = true
				}
			}

			if hasError {
				agg.EntriesWithErrors++
			} else if hasWarning {
				agg.EntriesWithWarnings++
			}
		}

		// Release the result back to pool
		result.Result.Release()
	}

	return agg
}

// HasErrors returns true if any entries had validation errors.
func (r *BundleStreamResult) HasErrors() bool {
	return r.EntriesWithErrors > 0 || len(r.ProcessingErrors) > 0
}

// Summary returns a human-readable summary of the validation.
func (r *BundleStreamResult) Summary() string {
	return fmt.Sprintf(
		"Validated %d entries: %d with errors, %d with warnings, %d total issues",
		r.TotalEntries,
		r.EntriesWithErrors,
		r.EntriesWithWarnings,
		r.TotalIssues,
	)
}
