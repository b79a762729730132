package models

import "time"

// FileState is one entry of a local filesystem snapshot: a relative path with
// its size, modification time, and content hash.
type FileState struct {
	Path  string    `json:"path"`
	Size  int64     `json:"size"`
	MTime time.Time `json:"mtime"`
	Hash  string    `json:"hash"`
}

// RemoteObject is one entry of a remote container listing. Revision changes on
// every server-side write; Hash is the content hash of the stored (encrypted)
// object's plaintext.
type RemoteObject struct {
	Path     string `json:"path"`
	Revision string `json:"revision"`
	Hash     string `json:"hash"`
	Size     int64  `json:"size"`
}
