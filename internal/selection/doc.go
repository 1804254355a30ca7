// Package selection moves a byte payload between two X clients through a
// selection.
//
// Each side is an explicit state machine. StepOwner and StepRequester take
// the current context and one event and return the next context plus the
// server mutations to perform; they never touch the connection. Owner and
// FetchTarget are the loops that pull events from an x11.Conn, feed them in
// and Apply the resulting effects.
//
// Payloads larger than ChunkSize are streamed with the INCR handshake: the
// owner announces INCR, then writes one chunk each time the requestor
// deletes the reply property, and ends with an empty write. The reply
// property strictly alternates between owner writes and requestor deletes.
package selection
