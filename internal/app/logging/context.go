package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var (
	ErrAlreadyApplied  = errors.New("logger has already been applied")
	ErrNotInitialised  = errors.New("logger has not been initialised")
	ErrInvalidSinkSpec = errors.New("sink specifier is not valid UTF-8")
	ErrUnknownSink     = errors.New("unknown sink type")
	ErrMissingFilePath = errors.New("file sink requires a path")
	ErrFileOpen        = errors.New("unable to open log file")
)

// Field names used on log entries.
const (
	FieldMockServer = "mock_server"
	FieldSource     = "source"
)

// Context collects log sinks and installs them on a logrus logger once applied.
// After Apply no further sink changes are accepted until Reset.
type Context struct {
	mu          sync.Mutex
	logger      *log.Logger
	initialised bool
	applied     bool
	hooks       []log.Hook
	files       []*os.File
	buffers     *Buffers
}

func NewContext(logger *log.Logger) *Context {
	return &Context{logger: logger}
}

// Default drives the logrus standard logger.
var Default = NewContext(log.StandardLogger())

// Init starts a new sink configuration, discarding sinks attached but not applied.
func (c *Context) Init() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.applied {
		return
	}
	c.closeFiles()
	c.initialised = true
	c.hooks = nil
	c.buffers = nil
}

// AttachSink adds a sink. Supported specifiers are "stdout", "stderr",
// "buffer" and "file <path>".
func (c *Context) AttachSink(spec string, filter LevelFilter) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.applied {
		return ErrAlreadyApplied
	}
	if !c.initialised {
		return ErrNotInitialised
	}
	if !utf8.ValidString(spec) {
		return ErrInvalidSinkSpec
	}

	kind, arg, _ := strings.Cut(strings.TrimSpace(spec), " ")
	switch kind {
	case "stdout":
		c.hooks = append(c.hooks, newWriterHook(os.Stdout, filter))
	case "stderr":
		c.hooks = append(c.hooks, newWriterHook(os.Stderr, filter))
	case "buffer":
		if c.buffers == nil {
			c.buffers = NewBuffers()
		}
		c.hooks = append(c.hooks, newBufferHook(c.buffers, filter))
	case "file":
		path := strings.TrimSpace(arg)
		if path == "" {
			return ErrMissingFilePath
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return errors.Wrapf(ErrFileOpen, "%s: %v", path, err)
		}
		c.files = append(c.files, file)
		c.hooks = append(c.hooks, newWriterHook(file, filter))
	default:
		return errors.Wrapf(ErrUnknownSink, "%q", kind)
	}
	return nil
}

// Apply installs the attached sinks on the logger.
func (c *Context) Apply() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.applied {
		return ErrAlreadyApplied
	}
	if !c.initialised {
		return ErrNotInitialised
	}

	hooks := log.LevelHooks{}
	level := log.PanicLevel
	for _, hook := range c.hooks {
		hooks.Add(hook)
		for _, l := range hook.Levels() {
			if l > level {
				level = l
			}
		}
	}
	c.logger.ReplaceHooks(hooks)
	c.logger.SetOutput(io.Discard)
	c.logger.SetLevel(level)
	c.applied = true
	return nil
}

func (c *Context) Applied() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applied
}

// BufferEnabled reports whether an applied buffer sink is collecting logs.
func (c *Context) BufferEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applied && c.buffers != nil
}

// FetchBuffer returns the buffered logs of a mock server, or of the whole
// process when id is empty. ok is false when no buffer sink is active.
func (c *Context) FetchBuffer(id string) (string, bool) {
	c.mu.Lock()
	buffers := c.buffers
	applied := c.applied
	c.mu.Unlock()
	if !applied || buffers == nil {
		return "", false
	}
	return buffers.Fetch(id), true
}

// DropBuffer forgets the buffered logs of a mock server.
func (c *Context) DropBuffer(id string) {
	c.mu.Lock()
	buffers := c.buffers
	c.mu.Unlock()
	if buffers != nil {
		buffers.Drop(id)
	}
}

// LogMessage logs a message on behalf of a caller, tagged with its source.
func (c *Context) LogMessage(source, level, message string) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	c.logger.WithField(FieldSource, source).Log(lvl, message)
}

// Reset removes all sinks and restores logging to stderr.
func (c *Context) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeFiles()
	c.hooks = nil
	c.buffers = nil
	c.initialised = false
	c.applied = false
	c.logger.ReplaceHooks(log.LevelHooks{})
	c.logger.SetOutput(os.Stderr)
	c.logger.SetLevel(log.InfoLevel)
}

func (c *Context) closeFiles() {
	for _, file := range c.files {
		if err := file.Close(); err != nil {
			log.WithError(err).Warn("unable to close log file")
		}
	}
	c.files = nil
}
