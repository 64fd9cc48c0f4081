package logger

import (
	"fmt"
	"strings"
	"sync"
)

// Buffer is a Logger implementation intended for testing;
// messages are stored internally.
type Buffer struct {
	mu       *sync.Mutex
	messages *[]string
	fields   Fields

	// Messages aliases the shared message slice of the root Buffer. Read it
	// only after the code under test has finished logging.
	Messages []string
}

// NewBuffer creates a new Buffer with Messages slice initialized.
// This makes it simpler to assert empty []string when no log messages
// have been sent; otherwise Messages would be nil.
func NewBuffer() *Buffer {
	b := &Buffer{
		mu:       &sync.Mutex{},
		Messages: make([]string, 0),
	}
	b.messages = &b.Messages
	return b
}

func (b *Buffer) add(level, format string, v ...any) {
	msg := "[" + level + "] " + fmt.Sprintf(format, v...)
	if len(b.fields) > 0 {
		parts := make([]string, 0, len(b.fields))
		for _, f := range b.fields {
			parts = append(parts, f.Key()+"="+f.String())
		}
		msg += " " + strings.Join(parts, " ")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	*b.messages = append(*b.messages, msg)
}

func (b *Buffer) Debug(format string, v ...any)  { b.add("debug", format, v...) }
func (b *Buffer) Error(format string, v ...any)  { b.add("error", format, v...) }
func (b *Buffer) Fatal(format string, v ...any)  { b.add("fatal", format, v...) }
func (b *Buffer) Notice(format string, v ...any) { b.add("notice", format, v...) }
func (b *Buffer) Warn(format string, v ...any)   { b.add("warn", format, v...) }
func (b *Buffer) Info(format string, v ...any)   { b.add("info", format, v...) }

// WithFields returns a Buffer that appends to the same message list and
// suffixes each message with key=value pairs.
func (b *Buffer) WithFields(fields ...Field) Logger {
	clone := &Buffer{
		mu:       b.mu,
		messages: b.messages,
	}
	clone.fields = append(clone.fields, b.fields...)
	clone.fields = append(clone.fields, fields...)
	return clone
}

func (b *Buffer) SetLevel(level Level) {}

func (b *Buffer) Level() Level {
	return DEBUG
}
