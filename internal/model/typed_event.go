package model

import "encoding/json"

// Envelope is one line of the typed events JSONL. The decoder writes it with a
// concrete payload; the processor reads it back with the payload left raw.
type Envelope[T any] struct {
	ChainID     uint64      `json:"chain_id"`
	BlockNumber uint64      `json:"block_number"`
	BlockHash   string      `json:"block_hash"`
	TxHash      string      `json:"tx_hash"`
	LogIndex    uint64      `json:"log_index"`
	Address     string      `json:"address"`
	EventName   string      `json:"event_name"`
	Timestamp   uint64      `json:"timestamp"`
	Decoded     T           `json:"decoded"`
	Calls       CallResults `json:"calls,omitempty"`
	Raw         *RawLogRef  `json:"raw,omitempty"`
}

// TypedEvent is a decoded lending event enriched with the contract reads
// resolved at its block.
type TypedEvent Envelope[interface{}]

// TypedEventRecord is a TypedEvent as read back from JSONL.
type TypedEventRecord Envelope[json.RawMessage]

// RawLogRef keeps the topic0 and data of the source log.
type RawLogRef struct {
	Topic0 string `json:"topic0"`
	Data   string `json:"data"`
}
