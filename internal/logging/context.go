package logging

// EpochLogger returns a logger carrying the scan epoch identity. Every
// terminal error inside an epoch logs through a child of this logger so the
// epoch_id field is always present.
func EpochLogger(base *Logger, epochID string) *Logger {
	return base.WithField("epoch_id", epochID)
}

// SymbolLogger tags an epoch logger with the instrument under scan
func SymbolLogger(epoch *Logger, symbol string) *Logger {
	return epoch.WithField("instrument", symbol)
}

// FailureFields is the canonical field set for terminal scan errors
func FailureFields(symbol, strategy, errorKind string) map[string]interface{} {
	fields := map[string]interface{}{
		"error_kind": errorKind,
	}
	if symbol != "" {
		fields["instrument"] = symbol
	}
	if strategy != "" {
		fields["strategy"] = strategy
	}
	return fields
}
