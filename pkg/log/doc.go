// Package log provides the logging abstraction used by gerbtrace-shell
// libraries.
//
// Library packages such as mailbox only depend on the Logger interface, so
// they can be embedded in a host that logs through something other than
// zerolog. The CLI wires the zerolog adapter; tests use the no-op logger.
//
//	logger := log.NewZerologAdapterWithLogger(zerolog.New(os.Stderr))
//	mb := mailbox.NewAt(dir, mailbox.WithLogger(logger))
package log
