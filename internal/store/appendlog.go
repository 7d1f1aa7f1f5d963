package store

import (
	"bufio"
	"io"
	"os"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"

	"tradecore/pkg/flock"
)

// Receipt describes where an appended record landed.
type Receipt struct {
	Offset int64
	Length int
	Schema string
}

// AppendLog appends schema-tagged, checksummed records to a JSONL file
// under an exclusive advisory lock. Appends are atomic per line: lock,
// seek to end, write, flush, fsync, unlock. Any I/O error is returned,
// never swallowed.
type AppendLog struct {
	path        string
	schema      string
	lockTimeout time.Duration
}

// NewAppendLog binds a log file to a schema tag. The lock file lives next
// to the log as <path>.lock.
func NewAppendLog(path, schema string, lockTimeout time.Duration) *AppendLog {
	if lockTimeout <= 0 {
		lockTimeout = 5 * time.Second
	}
	return &AppendLog{path: path, schema: schema, lockTimeout: lockTimeout}
}

// Path returns the log file path.
func (l *AppendLog) Path() string {
	return l.path
}

// Append serializes v, wraps it in the record envelope and durably
// appends it as one line.
func (l *AppendLog) Append(v any) (Receipt, error) {
	line, err := seal(l.schema, v)
	if err != nil {
		return Receipt{}, errors.Wrap(err, "seal record")
	}

	lk, err := flock.Acquire(l.path+".lock", l.lockTimeout)
	if err != nil {
		return Receipt{}, errors.Wrap(err, "acquire append lock")
	}
	defer func() {
		_ = lk.Release()
	}()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return Receipt{}, errors.Wrap(err, "open log")
	}
	offset, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		_ = f.Close()
		return Receipt{}, errors.Wrap(err, "seek log end")
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return Receipt{}, errors.Wrap(err, "append record")
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return Receipt{}, errors.Wrap(err, "sync log")
	}
	if err := f.Close(); err != nil {
		return Receipt{}, errors.Wrap(err, "close log")
	}
	return Receipt{Offset: offset, Length: len(line), Schema: l.schema}, nil
}

// ReadAll decodes every record in the log, verifying schema tags and
// checksums. A missing file yields an empty slice.
func ReadAll[T any](l *AppendLog) ([]T, error) {
	out, _, err := ReadFrom[T](l, 0)
	return out, err
}

// ReadFrom decodes records starting at the given byte offset and returns
// the offset just past the last complete line. A trailing line without a
// newline is left for the next read; a corrupt line is an error.
func ReadFrom[T any](l *AppendLog, offset int64) ([]T, int64, error) {
	lk, err := flock.Acquire(l.path+".lock", l.lockTimeout)
	if err != nil {
		return nil, offset, errors.Wrap(err, "acquire read lock")
	}
	defer func() {
		_ = lk.Release()
	}()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, offset, nil
		}
		return nil, offset, errors.Wrap(err, "open log")
	}
	defer func() {
		_ = f.Close()
	}()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, errors.Wrap(err, "seek log")
	}

	var out []T
	next := offset
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if err == io.EOF {
			// Partial trailing write; the next read picks it up.
			return out, next, nil
		}
		if err != nil {
			return out, next, errors.Wrap(err, "read log line")
		}
		payload, err := open(l.schema, line)
		if err != nil {
			return out, next, err
		}
		var rec T
		if err := sonic.Unmarshal(payload, &rec); err != nil {
			return out, next, errors.Wrap(err, "decode record")
		}
		out = append(out, rec)
		next += int64(len(line))
	}
}
