package model

// BlockMeta is the block context attached to every event.
type BlockMeta struct {
	Number    uint64
	Timestamp uint64
	TxHash    string
	LogIndex  uint64
}

// Event is one decoded event handed to the engine. Data is a pointer to one of
// the *Data payload types.
type Event struct {
	Block   BlockMeta
	Address string
	Name    string
	Data    interface{}
	Calls   CallResults
}
