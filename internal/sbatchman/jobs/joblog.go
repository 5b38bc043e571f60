package jobs

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/armadaproject/sbatchman/internal/common/util"
)

// LogEntryType identifies the payload of a job log entry.
type LogEntryType string

const (
	// MetadataEntry carries the full Job record.
	MetadataEntry LogEntryType = "Metadata"
	// StatusUpdateEntry carries a Status.
	StatusUpdateEntry LogEntryType = "StatusUpdate"
	// BashVariableEntry carries {"NAME": "<value of $NAME>"}, written by the job script itself.
	BashVariableEntry LogEntryType = "BashVariable"
	// VariableEntry carries {"NAME": "value"} for values recorded at launch time.
	VariableEntry LogEntryType = "Variable"
)

const (
	TimestampFormat = "2006-01-02 15:04:05.000"
	// ExitCodeVariable holds the exit status of the main command inside job scripts.
	ExitCodeVariable = "SBM_EXIT_CODE"

	timestampPlaceholder = "__TIMESTAMP__"
)

// LogEntry is one line of a job's log.jsonb.
type LogEntry struct {
	Type       LogEntryType    `json:"type"`
	Data       json.RawMessage `json:"data"`
	Timestamp  string          `json:"timestamp"`
	Additional json.RawMessage `json:"additional,omitempty"`
}

func newLogEntry(entryType LogEntryType, data any, additional map[string]any, timestamp string) (*LogEntry, error) {
	rawData, err := marshal(data)
	if err != nil {
		return nil, errors.WithMessagef(err, "error serialising %s log entry", entryType)
	}
	entry := &LogEntry{Type: entryType, Data: rawData, Timestamp: timestamp}
	if additional != nil {
		if entry.Additional, err = marshal(additional); err != nil {
			return nil, errors.WithMessagef(err, "error serialising %s log entry", entryType)
		}
	}
	return entry, nil
}

// marshal encodes v without HTML escaping, so commands containing && or < stay readable.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		return nil, errors.WithStack(err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// LogWriter appends entries to a job log. Each entry is written with a single append so that a reader never
// sees a partial line except possibly the last one.
type LogWriter struct {
	path  string
	clock util.Clock
}

func NewLogWriter(path string, clock util.Clock) *LogWriter {
	if clock == nil {
		clock = &util.DefaultClock{}
	}
	return &LogWriter{path: path, clock: clock}
}

func (w *LogWriter) Write(entryType LogEntryType, data any, additional map[string]any) error {
	entry, err := newLogEntry(entryType, data, additional, w.clock.Now().Local().Format(TimestampFormat))
	if err != nil {
		return err
	}
	line, err := marshal(entry)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, "error opening job log %s", w.path)
	}
	defer util.CloseResource("job log", f)
	if _, err := f.Write(append(line, '\n')); err != nil {
		return errors.Wrapf(err, "error writing job log %s", w.path)
	}
	return nil
}

func (w *LogWriter) Metadata(job *Job) error {
	return w.Write(MetadataEntry, job, nil)
}

func (w *LogWriter) Status(status Status, additional map[string]any) error {
	return w.Write(StatusUpdateEntry, status, additional)
}

// BashLogCommand returns a shell command that appends a BashVariable entry for name to logPath when it runs.
// The timestamp is taken with date(1) at that moment and ${name} is expanded by the shell.
func BashLogCommand(name string, logPath string) (string, error) {
	entry, err := newLogEntry(BashVariableEntry, map[string]string{name: "${" + name + "}"}, nil, timestampPlaceholder)
	if err != nil {
		return "", err
	}
	line, err := marshal(entry)
	if err != nil {
		return "", err
	}
	text := string(line)
	placeholder := `"` + timestampPlaceholder + `"`
	pos := strings.Index(text, placeholder)
	if pos < 0 {
		return "", errors.Errorf("timestamp placeholder missing from log entry %s", text)
	}
	before, after := text[:pos], text[pos+len(placeholder):]
	return "printf '%s\"%s\"%s\\n' '" + EscapeForPrintf(before) +
		"' \"$(date +\"%Y-%m-%d %H:%M:%S.%3N\")\" '" + EscapeForPrintf(after) +
		"' >> \"" + logPath + "\"", nil
}

// EscapeForPrintf makes s safe inside a single-quoted shell word while leaving ${...} and $(...) to be expanded
// by the shell.
func EscapeForPrintf(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		switch c := runes[i]; c {
		case '\'':
			b.WriteString(`'\''`)
		case '\\':
			b.WriteString(`\\`)
		case '$':
			if i+1 >= len(runes) {
				b.WriteRune(c)
				continue
			}
			switch runes[i+1] {
			case '{':
				b.WriteString(`'"${`)
				for i += 2; i < len(runes); i++ {
					if runes[i] == '}' {
						b.WriteString(`}"'`)
						break
					}
					b.WriteRune(runes[i])
				}
			case '(':
				b.WriteString(`'"$(`)
				depth := 1
				for i += 2; i < len(runes); i++ {
					if runes[i] == '(' {
						depth++
					} else if runes[i] == ')' {
						depth--
						if depth == 0 {
							b.WriteString(`)"'`)
							break
						}
					}
					b.WriteRune(runes[i])
				}
			default:
				b.WriteRune(c)
			}
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}

// ReadLog parses every complete entry of a job log. A malformed final line, as left by an interrupted write,
// is ignored; a malformed line anywhere else is an error.
func ReadLog(path string) ([]LogEntry, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading job log %s", path)
	}
	var lines [][]byte
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if line := bytes.TrimSpace(scanner.Bytes()); len(line) > 0 {
			lines = append(lines, append([]byte(nil), line...))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "error reading job log %s", path)
	}

	entries := make([]LogEntry, 0, len(lines))
	for i, line := range lines {
		var entry LogEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			if i == len(lines)-1 {
				break
			}
			return nil, errors.Wrapf(err, "malformed entry on line %d of %s", i+1, path)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Reconstruction is the state of a job as recorded in its log.
type Reconstruction struct {
	Job *Job
	// ExitCode is the exit status of the main command, if the script got far enough to record it.
	ExitCode *int
	// ProcessExitCode is the exit status of the whole script as seen by the launcher, including 124 from timeout(1).
	ProcessExitCode *int
	Pid             *int
	// Timeline holds the status updates in the order they were written.
	Timeline []LogEntry
}

// Reconstruct rebuilds a job from its log without consulting the database.
func Reconstruct(path string) (*Reconstruction, error) {
	entries, err := ReadLog(path)
	if err != nil {
		return nil, err
	}
	result := &Reconstruction{}
	for _, entry := range entries {
		switch entry.Type {
		case MetadataEntry:
			job := &Job{}
			if err := json.Unmarshal(entry.Data, job); err != nil {
				return nil, errors.Wrapf(err, "malformed metadata in %s", path)
			}
			result.Job = job
		case StatusUpdateEntry:
			var status Status
			if err := json.Unmarshal(entry.Data, &status); err != nil {
				return nil, errors.Wrapf(err, "malformed status update in %s", path)
			}
			if result.Job != nil {
				result.Job.Status = status
			}
			result.Timeline = append(result.Timeline, entry)
			if pid, ok := additionalInt(entry.Additional, "pid"); ok {
				result.Pid = &pid
			}
			if code, ok := additionalInt(entry.Additional, "exit_code"); ok {
				result.ProcessExitCode = &code
			}
		case BashVariableEntry, VariableEntry:
			values := map[string]string{}
			if err := json.Unmarshal(entry.Data, &values); err != nil {
				return nil, errors.Wrapf(err, "malformed %s entry in %s", entry.Type, path)
			}
			if code, ok := values[ExitCodeVariable]; ok {
				if parsed, err := strconv.Atoi(code); err == nil {
					result.ExitCode = &parsed
				}
			}
		}
	}
	if result.Job == nil {
		return nil, errors.Errorf("no metadata entry in %s", path)
	}
	return result, nil
}

func additionalInt(raw json.RawMessage, key string) (int, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	values := map[string]any{}
	if err := json.Unmarshal(raw, &values); err != nil {
		return 0, false
	}
	v, ok := values[key].(float64)
	return int(v), ok
}
