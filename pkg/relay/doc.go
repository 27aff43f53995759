// Package relay translates upstream chat responses into the client format.
//
// [Complete] handles buffered responses. [StreamRelay] handles server-sent
// event streams: it is a small state machine (Open, Done, Closed) driven by
// a [LineDecoder] that reassembles lines and multi-byte characters split
// across network reads. Every decoded upstream event is written and flushed
// to the client as one chunk, in order, before the next read.
package relay
