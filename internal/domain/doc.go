// Package domain contains the core business entities of the generation
// service: users that hold credits and the jobs that track remote generation
// tasks through their lifecycle. It is independent of any storage or
// transport concerns.
package domain
