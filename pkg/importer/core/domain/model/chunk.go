package model

import (
	"fmt"
)

// DefaultChunkSize is the number of rows per chunk when none is configured.
const DefaultChunkSize = 1000

// ChunkRange is a contiguous, 1-based, inclusive row range of a file.
type ChunkRange struct {
	Index int
	Start int
	End   int
}

// Size returns the number of rows in the range.
func (r ChunkRange) Size() int {
	return r.End - r.Start + 1
}

// Partition splits [1,total] into ceil(total/chunkSize) contiguous ranges.
// Every row belongs to exactly one range; only the last one may be short.
// A non-positive chunkSize falls back to DefaultChunkSize.
func Partition(total, chunkSize int) []ChunkRange {
	if total <= 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	ranges := make([]ChunkRange, 0, (total+chunkSize-1)/chunkSize)
	for start, idx := 1, 0; start <= total; start, idx = start+chunkSize, idx+1 {
		end := start + chunkSize - 1
		if end > total {
			end = total
		}
		ranges = append(ranges, ChunkRange{Index: idx, Start: start, End: end})
	}
	return ranges
}

// ChunkMessage is the queue envelope describing one unit of work. It is never mutated after publishing.
type ChunkMessage struct {
	JobID       string `json:"jobId"`
	FileRef     string `json:"fileRef"`
	StartRow    int    `json:"startRow"`
	EndRow      int    `json:"endRow"`
	Contact     string `json:"contact"`
	ChunkIndex  int    `json:"chunkIndex"`
	TotalChunks int    `json:"totalChunks"`
}

// NewChunkMessage builds the envelope for one partition range.
func NewChunkMessage(jobID, fileRef, contact string, r ChunkRange, totalChunks int) ChunkMessage {
	return ChunkMessage{
		JobID:       jobID,
		FileRef:     fileRef,
		StartRow:    r.Start,
		EndRow:      r.End,
		Contact:     contact,
		ChunkIndex:  r.Index,
		TotalChunks: totalChunks,
	}
}

// MessageID returns the broker message id, "{jobId}:{chunkIndex}".
func (m ChunkMessage) MessageID() string {
	return fmt.Sprintf("%s:%d", m.JobID, m.ChunkIndex)
}

// RowCount returns the number of rows covered by the message.
func (m ChunkMessage) RowCount() int {
	return m.EndRow - m.StartRow + 1
}

// Validate rejects envelopes that cannot describe a chunk.
func (m ChunkMessage) Validate() error {
	if m.JobID == "" {
		return fmt.Errorf("chunk message without jobId")
	}
	if m.StartRow < 1 || m.EndRow < m.StartRow {
		return fmt.Errorf("chunk message %s has invalid row range %d-%d", m.MessageID(), m.StartRow, m.EndRow)
	}
	return nil
}

func (m ChunkMessage) String() string {
	return fmt.Sprintf("ChunkMessage[jobId=%s, rows=%d-%d, chunk=%d/%d]", m.JobID, m.StartRow, m.EndRow, m.ChunkIndex+1, m.TotalChunks)
}
