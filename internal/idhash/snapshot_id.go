package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeSnapshotID computes a deterministic snapshot_id using SHA256.
// Formula: SHA256(pair_key|computed_at)
// Returns hex-encoded hash (64 characters).
func ComputeSnapshotID(pairKey string, computedAt int64) string {
	data := fmt.Sprintf("%s|%d", pairKey, computedAt)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputePositionID computes a deterministic position id for replayed runs.
// Formula: SHA256(run_id|pair_key|entry_time)
func ComputePositionID(runID, pairKey string, entryTimeMs int64) string {
	data := fmt.Sprintf("%s|%s|%d", runID, pairKey, entryTimeMs)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
