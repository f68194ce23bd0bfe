// Package runway implements remote.Client against the Runway HTTP API.
//
// Requests carry a Bearer API key and the pinned X-Runway-Version header.
// Task creation is retried with exponential backoff on transport failures,
// 429 and 5xx replies; status and cancel calls are not retried because the
// poller already re-issues them on its own schedule.
package runway
