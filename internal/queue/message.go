package queue

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/storygraph/pkg/common"
)

// ExtractMessage asks the worker to extract chapters of one novel. An empty
// Chapters list means every chapter of the novel.
type ExtractMessage struct {
	BatchID  string   `json:"batch_id,omitempty"`
	NovelID  string   `json:"novel_id"`
	Chapters []string `json:"chapters,omitempty"`
	Schema   string   `json:"schema,omitempty"`

	ChunkSize    int  `json:"chunk_size,omitempty"`
	ChunkOverlap int  `json:"chunk_overlap,omitempty"`
	NoCache      bool `json:"no_cache,omitempty"`
	Export       bool `json:"export,omitempty"`

	Optimize *common.OptimizeParams `json:"optimize,omitempty"`
}

func ParseExtractMessage(body []byte) (*ExtractMessage, error) {
	msg := new(ExtractMessage)
	if err := json.Unmarshal(body, msg); err != nil {
		return nil, fmt.Errorf("decode extract message: %w", err)
	}
	if msg.NovelID == "" {
		return nil, errors.New("extract message without novel_id")
	}
	return msg, nil
}

// ChapterEvent is published on the events exchange for every finished
// chapter.
type ChapterEvent struct {
	BatchID       string `json:"batch_id,omitempty"`
	NovelID       string `json:"novel_id"`
	ChapterID     string `json:"chapter_id"`
	Status        int    `json:"status"`
	Skipped       bool   `json:"skipped,omitempty"`
	Error         string `json:"error,omitempty"`
	CacheKey      string `json:"cache_key,omitempty"`
	FromCache     bool   `json:"from_cache,omitempty"`
	Nodes         int    `json:"nodes"`
	Relationships int    `json:"relationships"`
	DurationMs    int64  `json:"duration_ms"`
}

// Topic returns the routing key of the event.
func (e ChapterEvent) Topic() string {
	switch {
	case e.Skipped:
		return "chapter.skipped"
	case e.Error != "":
		return "chapter.error"
	}
	return fmt.Sprintf("chapter.%d", e.Status)
}
