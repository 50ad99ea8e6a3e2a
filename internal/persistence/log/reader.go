package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"phalanx.gg/internal/sim/field"
)

// ListTickFiles returns the events-*.jsonl.zst files under dir in
// rotation order. Hourly file names sort chronologically.
func ListTickFiles(dir string) ([]string, error) { return listLogFiles(dir, "events-") }

// ListAuditFiles returns the audit-*.jsonl.zst files under dir in
// rotation order.
func ListAuditFiles(dir string) ([]string, error) { return listLogFiles(dir, "audit-") }

func listLogFiles(dir, prefix string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

// ForEachTickEntry streams every recorded tick entry under dir, in tick
// order, to fn. Iteration stops on the first error fn returns.
func ForEachTickEntry(dir string, fn func(field.TickLogEntry) error) error {
	files, err := ListTickFiles(dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no events files found in %s", dir)
	}
	for _, path := range files {
		if err := scanTickFile(path, fn); err != nil {
			return err
		}
	}
	return nil
}

// ForEachAuditEntry streams every audit record under dir, in write
// order, to fn.
func ForEachAuditEntry(dir string, fn func(field.AuditEntry) error) error {
	files, err := ListAuditFiles(dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no audit files found in %s", dir)
	}
	for _, path := range files {
		if err := scanAuditFile(path, fn); err != nil {
			return err
		}
	}
	return nil
}

func scanTickFile(path string, fn func(field.TickLogEntry) error) error {
	return scanLogFile(path, func(line []byte) error {
		var entry field.TickLogEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		return fn(entry)
	})
}

func scanAuditFile(path string, fn func(field.AuditEntry) error) error {
	return scanLogFile(path, func(line []byte) error {
		var entry field.AuditEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		return fn(entry)
	})
}

func scanLogFile(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)

	for sc.Scan() {
		if err := fn(sc.Bytes()); err != nil {
			return err
		}
	}
	return sc.Err()
}
