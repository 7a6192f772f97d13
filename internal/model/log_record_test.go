package model

import (
	"errors"
	"testing"
)

func TestLogRecordTopic0AndMeta(t *testing.T) {
	record := LogRecord{
		BlockNumber: 18000000,
		TxHash:      "0xdef456",
		LogIndex:    12,
		Timestamp:   1700000000,
		Address:     "0x39AA39c021dfbaE8faC545936693aC917d5E7563",
		Topics:      []string{"0x4C209B5FC8AD50758F13E2E1088BA56A560DFF690A1C6FEF26394F4C03821C4F", "0xbbb"},
	}

	if record.Topic0() != "0x4c209b5fc8ad50758f13e2e1088ba56a560dff690a1c6fef26394f4c03821c4f" {
		t.Fatalf("topic0 not normalized: %s", record.Topic0())
	}
	if meta := record.Meta(); meta.Number != 18000000 || meta.LogIndex != 12 || meta.Timestamp != 1700000000 {
		t.Fatalf("meta mismatch: %+v", meta)
	}
	if (LogRecord{}).Topic0() != "" {
		t.Fatalf("empty topics should give empty topic0")
	}
}

func TestNewDecodeError(t *testing.T) {
	record := LogRecord{
		ChainID:     56,
		BlockNumber: 30000000,
		TxHash:      "0xabc",
		LogIndex:    4,
		Address:     "0xfd36e2c2a6789db23113685031d7f16329158384",
		Topics:      []string{"0xAA"},
	}
	got := NewDecodeError(DecodeStagePayload, record, errors.New("unpack: short data"))

	if got.Stage != DecodeStagePayload || got.Topic0 != "0xaa" || got.LogIndex != 4 || got.ChainID != 56 {
		t.Fatalf("decode error mismatch: %+v", got)
	}
	if got.Error != "unpack: short data" {
		t.Fatalf("error text mismatch: %s", got.Error)
	}
}
