// Package mailbox implements the post-update mailbox: a durable, single-slot
// handoff that carries one opaque payload across a self-update relaunch.
//
// The front-end saves a payload (conventionally JSON) right before it asks the
// updater to replace and relaunch the binary, and consumes it once after the
// new process starts:
//
//	mb := mailbox.New(appdir.Resolver("com.newmatik.gerbtrace", ""))
//
//	// before relaunch
//	if err := mb.Save(`{"version":"2.3.0"}`); err != nil {
//	    return err
//	}
//
//	// after relaunch
//	if payload, ok := mb.Consume(); ok {
//	    showWhatsNew(payload)
//	}
//
// # Delivery
//
// Save is strict. It returns only after the payload has been flushed to
// stable storage, so the process may be terminated the moment it returns.
// Any failure is reported and the previous record, if any, is left as it was.
//
// Consume is lenient. A missing, unreadable or unresolvable record is
// reported as absent, never as an error, so a broken mailbox cannot block
// startup. The record is removed after a successful read; if removal fails
// the payload is still returned and a warning is logged.
//
// The slot is not locked. Callers rely on process sequencing (save, exit,
// relaunch, consume) rather than concurrent access.
package mailbox
