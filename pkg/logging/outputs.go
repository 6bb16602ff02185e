package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// LogEntry is one structured record produced by the logger.
type LogEntry struct {
	Time     int64
	Severity Severity
	Message  string
	File     string
	Line     int
	Function string
	Fields   map[string]interface{}
}

// ConsoleOutput formats logs for human readability.
type ConsoleOutput struct {
	mu     sync.Mutex
	writer io.Writer
	color  bool // Whether to use ANSI color codes
}

type ConsoleOutputOption func(*ConsoleOutput)

func WithColor(enabled bool) ConsoleOutputOption {
	return func(c *ConsoleOutput) {
		c.color = enabled
	}
}

func NewConsoleOutput(useStderr bool, opts ...ConsoleOutputOption) *ConsoleOutput {
	writer := os.Stdout
	if useStderr {
		writer = os.Stderr
	}

	c := &ConsoleOutput{
		writer: writer,
		color:  true, // Enable colors by default
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Helper function to get ANSI color codes for different severity levels.
func getSeverityColor(s Severity) string {
	switch s {
	case DEBUG:
		return "\033[37m" // Gray
	case INFO:
		return "\033[32m" // Green
	case WARN:
		return "\033[33m" // Yellow
	case ERROR:
		return "\033[31m" // Red
	case FATAL:
		return "\033[35m" // Magenta
	default:
		return ""
	}
}

func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}

	var result string
	for k, v := range fields {
		result += fmt.Sprintf("%s=%v ", k, v)
	}

	return result
}

func (o *ConsoleOutput) Write(e LogEntry) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	timestamp := time.Unix(0, e.Time).Format("2006-01-02 15:04:05.000")

	var levelColor, resetColor string
	if o.color {
		levelColor = getSeverityColor(e.Severity)
		resetColor = "\033[0m"
	}

	basic := fmt.Sprintf("%s %s%-5s%s [%s:%d] %s",
		timestamp,
		levelColor,
		e.Severity,
		resetColor,
		e.File,
		e.Line,
		e.Message,
	)

	if len(e.Fields) > 0 {
		basic += " " + formatFields(e.Fields)
	}

	_, err := fmt.Fprintln(o.writer, basic)
	return err
}

func (o *ConsoleOutput) Sync() error {
	if f, ok := o.writer.(*os.File); ok {
		return f.Sync()
	}
	return nil
}

func (o *ConsoleOutput) Close() error {
	return o.Sync()
}

// WriterOutput sends plain formatted entries to any io.Writer. Used by
// tests and by file-backed logging.
type WriterOutput struct {
	mu     sync.Mutex
	writer io.Writer
}

func NewWriterOutput(w io.Writer) *WriterOutput {
	return &WriterOutput{writer: w}
}

func (o *WriterOutput) Write(e LogEntry) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	line := fmt.Sprintf("%s %s %s %s",
		time.Unix(0, e.Time).Format(time.RFC3339Nano),
		e.Severity,
		e.Message,
		formatFields(e.Fields),
	)
	_, err := fmt.Fprintln(o.writer, line)
	return err
}

func (o *WriterOutput) Sync() error { return nil }

func (o *WriterOutput) Close() error { return nil }
