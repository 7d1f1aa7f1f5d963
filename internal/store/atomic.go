package store

import (
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
)

// Replace writes v as JSON to path atomically: temp file in the same
// directory, flush+fsync, rename, then a best-effort fsync of the parent
// directory. A reader never observes a partial file.
func Replace(path string, v any) error {
	data, err := sonic.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal state")
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "write temp file")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp file")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errors.Wrap(err, "rename temp file")
	}

	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

// Load reads a JSON state file into v. Callers decide how to treat a
// missing file (os.IsNotExist on the returned error).
func Load(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := sonic.Unmarshal(data, v); err != nil {
		return errors.Wrap(err, "decode state")
	}
	return nil
}

// Exists reports whether a state file is present. Used for the stop-flag
// sentinel, whose mere presence is the control signal.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
