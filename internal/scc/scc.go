// Package scc defines the source-control contract the cooker uses when it
// replaces versioned outputs, with a no-op client and a journaling client.
package scc

import (
	"context"
)

// Client gates writes to versioned files.
//
// The cooker calls OpenForEdit before replacing a file, OpenForAdd after
// writing it, and RevertUnchanged once the write is committed so that
// byte-identical outputs do not show up as changes.
type Client interface {
	OpenForEdit(ctx context.Context, paths ...string) error
	OpenForAdd(ctx context.Context, paths ...string) error
	RevertUnchanged(ctx context.Context, paths ...string) error
}

// Null is a Client that does nothing.
type Null struct{}

// OpenForEdit implements Client.
func (Null) OpenForEdit(context.Context, ...string) error { return nil }

// OpenForAdd implements Client.
func (Null) OpenForAdd(context.Context, ...string) error { return nil }

// RevertUnchanged implements Client.
func (Null) RevertUnchanged(context.Context, ...string) error { return nil }

var _ Client = Null{}
