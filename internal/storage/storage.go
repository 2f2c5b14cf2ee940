package storage

import "context"

// BundleWriter persists an on-demand download bundle (final report, raw
// answer export) built entirely from already-fetched data.
type BundleWriter interface {
	WriteJSON(ctx context.Context, name string, v any) (storedPath string, err error)
}
