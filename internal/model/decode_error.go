package model

// Decode failure stages.
const (
	DecodeStageJSON    = "json"
	DecodeStageTopics  = "topics"
	DecodeStagePayload = "payload"
)

// DecodeError records a log line the decoder could not turn into a typed event.
type DecodeError struct {
	Stage       string `json:"stage"`
	ChainID     uint64 `json:"chain_id,omitempty"`
	BlockNumber uint64 `json:"block_number,omitempty"`
	TxHash      string `json:"tx_hash,omitempty"`
	LogIndex    uint64 `json:"log_index,omitempty"`
	Address     string `json:"address,omitempty"`
	Topic0      string `json:"topic0,omitempty"`
	Error       string `json:"error"`
}

// NewDecodeError builds a DecodeError for a parsed log record.
func NewDecodeError(stage string, record LogRecord, err error) DecodeError {
	return DecodeError{
		Stage:       stage,
		ChainID:     record.ChainID,
		BlockNumber: record.BlockNumber,
		TxHash:      record.TxHash,
		LogIndex:    record.LogIndex,
		Address:     record.Address,
		Topic0:      record.Topic0(),
		Error:       err.Error(),
	}
}
