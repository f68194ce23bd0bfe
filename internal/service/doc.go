// Package service contains the application use cases of genflow.
//
// GenerationService is the submit path: it checks the caller's balance,
// creates the remote task, persists the job and hands the task to the
// poller. JobFinalizer is the other end of a job's life: the poller calls it
// once a task is terminal, and it records the outcome and debits the owner in
// one transaction before announcing the result.
//
// Services receive their collaborators through constructors and depend on the
// interfaces in internal/store and internal/remote, never on a concrete
// database or HTTP client.
package service
