package consts

import "time"

// Buffer sizes for various operations
const (
	// BufferSize1KB is 1 kilobyte
	BufferSize1KB = 1024
	// BufferSize64KB is 64 kilobytes
	BufferSize64KB = 64 * 1024
	// BufferSize1MB is 1 megabyte
	BufferSize1MB = 1024 * 1024
)

// Story generation limits
const (
	// LoreTopK is the number of lore snippets requested per retrieval
	LoreTopK = 3
	// MaxContextChars is how much of the story context is placed in the system prompt
	MaxContextChars = 2000
	// MaxHistoryMessages is how many prior turns are replayed to the model
	MaxHistoryMessages = 10
	// LoreChunkChars is the maximum chunk size produced during lore ingestion
	LoreChunkChars = 400
)

// Session fan-out limits
const (
	// PeerSendBuffer is the number of outbound frames queued per peer before it is considered dead
	PeerSendBuffer = 256
	// DefaultFanoutLimit bounds concurrent deliveries within one broadcast
	DefaultFanoutLimit = 16
)

// Timeouts for various operations
const (
	// Timeout1Second is a 1 second timeout
	Timeout1Second = 1 * time.Second
	// Timeout5Seconds is a 5 second timeout
	Timeout5Seconds = 5 * time.Second
	// Timeout10Seconds is a 10 second timeout
	Timeout10Seconds = 10 * time.Second
	// Timeout30Seconds is a 30 second timeout
	Timeout30Seconds = 30 * time.Second
	// Timeout60Seconds is a 60 second timeout (1 minute)
	Timeout60Seconds = 60 * time.Second
	// Timeout2Minutes is a 2 minute timeout
	Timeout2Minutes = 2 * time.Minute
)
