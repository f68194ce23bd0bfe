// Package polling drives remote generation tasks to a terminal outcome.
//
// A Poller owns a Registry of tracked tasks. Once per tick it takes the
// entries that are due and hands each one to the Handler, which asks the
// remote API for the task's status and either reschedules the task with a
// longer delay or records the outcome and removes it. Recording an outcome
// goes through a Finalizer, which applies the side effects exactly once per
// job.
//
// Every registered task reaches a terminal status after at most MaxRetries
// non-terminal observations or transient errors.
package polling
