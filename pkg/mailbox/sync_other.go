//go:build windows || plan9

package mailbox

// syncDir is a no-op: directories cannot be opened for flushing on these
// platforms.
func syncDir(string) error { return nil }
