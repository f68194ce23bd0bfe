// Package mocks provides centralized mock implementations for testing.
//
// Stores are in-memory and behave like the PostgreSQL implementations,
// including the conditional finalization marker. Every method delegates to
// an exported function field, so a test can override one behavior while
// keeping the rest:
//
//	jobs := mocks.NewMockJobStore()
//	jobs.SaveFn = func(ctx context.Context, job *domain.Job) error {
//	    return errors.New("connection reset")
//	}
package mocks
