package logging

import (
	"io"
	"strings"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// LevelFilter is the most verbose level a sink accepts.
type LevelFilter int

const (
	LevelOff LevelFilter = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

func ParseLevelFilter(s string) (LevelFilter, error) {
	switch strings.ToLower(s) {
	case "off", "none":
		return LevelOff, nil
	case "error":
		return LevelError, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "info":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	case "trace":
		return LevelTrace, nil
	}
	return LevelOff, errors.Errorf("unknown level filter %q", s)
}

// Levels lists the logrus levels the filter lets through.
func (f LevelFilter) Levels() []log.Level {
	var max log.Level
	switch f {
	case LevelOff:
		return nil
	case LevelError:
		max = log.ErrorLevel
	case LevelWarn:
		max = log.WarnLevel
	case LevelInfo:
		max = log.InfoLevel
	case LevelDebug:
		max = log.DebugLevel
	default:
		max = log.TraceLevel
	}
	var levels []log.Level
	for _, l := range log.AllLevels {
		if l <= max {
			levels = append(levels, l)
		}
	}
	return levels
}

var formatter = &log.TextFormatter{DisableColors: true, FullTimestamp: true}

type writerHook struct {
	mu     sync.Mutex
	writer io.Writer
	levels []log.Level
}

func newWriterHook(w io.Writer, filter LevelFilter) *writerHook {
	return &writerHook{writer: w, levels: filter.Levels()}
}

func (h *writerHook) Levels() []log.Level {
	return h.levels
}

func (h *writerHook) Fire(entry *log.Entry) error {
	line, err := formatter.Format(entry)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.writer.Write(line)
	return err
}

type bufferHook struct {
	buffers *Buffers
	levels  []log.Level
}

func newBufferHook(buffers *Buffers, filter LevelFilter) *bufferHook {
	return &bufferHook{buffers: buffers, levels: filter.Levels()}
}

func (h *bufferHook) Levels() []log.Level {
	return h.levels
}

func (h *bufferHook) Fire(entry *log.Entry) error {
	line, err := formatter.Format(entry)
	if err != nil {
		return err
	}
	id, _ := entry.Data[FieldMockServer].(string)
	h.buffers.Append(id, string(line))
	return nil
}

// Buffers keeps the in-memory log sink: one buffer for the process and one
// per mock server.
type Buffers struct {
	mu      sync.Mutex
	global  strings.Builder
	servers map[string]*strings.Builder
}

func NewBuffers() *Buffers {
	return &Buffers{servers: map[string]*strings.Builder{}}
}

func (b *Buffers) Append(id, line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.global.WriteString(line)
	if id == "" {
		return
	}
	buffer, ok := b.servers[id]
	if !ok {
		buffer = &strings.Builder{}
		b.servers[id] = buffer
	}
	buffer.WriteString(line)
}

func (b *Buffers) Fetch(id string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if id == "" {
		return b.global.String()
	}
	if buffer, ok := b.servers[id]; ok {
		return buffer.String()
	}
	return ""
}

// Drop forgets the buffer of a mock server.
func (b *Buffers) Drop(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.servers, id)
}
