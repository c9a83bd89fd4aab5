// Package transport drives the RPC transport state machine used to talk to
// a secure coprocessor over a single bidirectional datagram channel.
//
// # Overview
//
// A call to the device goes through a fixed sequence:
//
//	make-ready -> send-args -> send-go -> poll-done -> receive-reply -> clear
//
// Framing, chunking, status polling, and CRC validation all live here.
// What the device application actually does with the bytes is not this
// package's concern; callers supply an app id, params, and byte buffers.
//
// # Hardware independence
//
// This package does not open devices. Callers provide a Datagram
// implementation:
//
//	type MyBus struct{ ... }
//	func (b *MyBus) Read(cmd transport.Command, buf []byte) (int, error) { ... }
//	func (b *MyBus) Write(cmd transport.Command, buf []byte) (int, error) { ... }
//
//	driver := transport.NewDriver(bus)
//	code, reply, err := driver.CallApplication(appID, params, args, replyCap)
//
// # Retries
//
// Three independent retry scopes exist and are never collapsed into one:
//   - bus EAGAIN (RetryCount attempts, RetryWait apart)
//   - status CRC mismatch (CRCRetry re-reads)
//   - request/reply CRC mismatch (CRCRetry whole-transaction or whole-receive retries)
package transport
