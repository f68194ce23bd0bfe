// Package api exposes the generation service over HTTP: submitting
// generations, listing and inspecting the caller's jobs, and cancelling
// them. Handlers translate JSON requests into service calls and service
// errors into status codes; they hold no business logic.
package api
