//go:build windows

package onhost

// Windows builds would replace DefaultSecureWriter with a variant that
// applies an Administrator-only ACL after the write. The ACL plumbing is
// an external adapter concern, so Windows falls back to the same
// write-rename primitive until one is injected via Builder.Writer.
