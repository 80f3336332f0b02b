// Package utils holds the small helpers shared by the backend clients and the
// batch runner: HTTP plumbing, vector similarity and bounded concurrency.
package utils
