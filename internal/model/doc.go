package model

// Package model defines domain data structures used across the app: download
// task snapshots, the task status state machine, quality selectors and
// playlist entries. Values are copied out of the registry for display, so
// nothing here is safe to share across goroutines by pointer.
