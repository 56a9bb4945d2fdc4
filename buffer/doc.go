// Package buffer implements the growable byte buffer Connection uses for
// both its input and output queues: a prependable header region, a
// readable region, and a writable region backed by one contiguous
// slice. ReadFD fills it directly from a file descriptor using a
// scatter read, so a single large read doesn't force the internal
// buffer to grow to match.
package buffer
