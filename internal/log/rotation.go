package log

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// RotatingFile is an io.WriteCloser for PSRP protocol trace output: it writes
// to a file and rotates it when it reaches maxSize, gzip-compressing each
// rotated backup so long-running pool/pipeline debug sessions (which can log
// one line per fragment) don't fill a disk with uncompressed SOAP/CLIXML
// bodies. Rotated files are named path.1.gz .. path.N.gz, oldest highest.
type RotatingFile struct {
	mu sync.Mutex

	path       string
	maxSize    int64 // bytes
	maxBackups int
	onRotate   func(path string)

	file       *os.File
	size       int64
	rotations  int64
	bytesTotal int64
}

// NewRotatingFile creates a new RotatingFile.
// maxSize uses bytes. maxBackups is the number of gzip-compressed backups to
// keep.
func NewRotatingFile(path string, maxSize int64, maxBackups int) (*RotatingFile, error) {
	rf := &RotatingFile{
		path:       path,
		maxSize:    maxSize,
		maxBackups: maxBackups,
	}

	if err := rf.open(); err != nil {
		return nil, err
	}

	return rf, nil
}

// OnRotate registers a callback invoked (with the mutex released) each time
// the file rotates, naming the freshly written .gz backup. With maxBackups 0
// no backup is written and the callback is not called. A logger built over
// this file with NewLogger can be passed to runspace.Pool.SetSlogLogger or
// wsman.Client.SetLogger (cmd/psrpcore-demo does the former); a caller
// that wants a RUNSPACEPOOL_STATE-style audit trail of its own trace log
// rotating (e.g. to ship the backup elsewhere) sets this instead of polling
// the filesystem.
func (rf *RotatingFile) OnRotate(fn func(path string)) {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	rf.onRotate = fn
}

// Stats reports how many rotations have occurred and the total bytes written
// across the file's lifetime (including rotated-out backups), so a -logfile
// CLI flag can print a summary on close.
func (rf *RotatingFile) Stats() (rotations, bytesTotal int64) {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	return rf.rotations, rf.bytesTotal
}

func (rf *RotatingFile) open() error {
	dir := filepath.Dir(rf.path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	// 0600: protocol trace output may carry SOAP headers and CLIXML bodies
	// that RedactingHandler scrubs at the attribute level but that still
	// contain shell ids, endpoints, and other operational detail.
	f, err := os.OpenFile(rf.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}

	rf.file = f
	rf.size = info.Size()
	return nil
}

// Write implements io.Writer. It writes p to the file, rotating if necessary.
func (rf *RotatingFile) Write(p []byte) (n int, err error) {
	rf.mu.Lock()

	writeLen := int64(len(p))
	var rotatedTo string

	if rf.size+writeLen > rf.maxSize && rf.size > 0 {
		var rerr error
		rotatedTo, rerr = rf.rotate()
		if rerr != nil {
			rf.mu.Unlock()
			return 0, fmt.Errorf("failed to rotate log: %w", rerr)
		}
	}

	n, err = rf.file.Write(p)
	rf.size += int64(n)
	rf.bytesTotal += int64(n)
	cb := rf.onRotate
	rf.mu.Unlock()

	if rotatedTo != "" && cb != nil {
		cb(rotatedTo)
	}
	return n, err
}

// rotate closes the current file, drops the backup in slot maxBackups, shifts
// the remaining backups up one slot (path.i.gz to path.i+1.gz),
// gzip-compresses the closed file into path.1.gz, and opens a fresh file.
// With maxBackups 0 the closed file is deleted instead. Must be called with
// mu held; returns the path of the newly written backup, or "" when none was
// written.
func (rf *RotatingFile) rotate() (string, error) {
	if rf.file != nil {
		if err := rf.file.Close(); err != nil {
			return "", err
		}
		rf.file = nil
	}
	rf.rotations++

	lastBackup := fmt.Sprintf("%s.%d.gz", rf.path, rf.maxBackups)
	if _, err := os.Stat(lastBackup); err == nil {
		if err := os.Remove(lastBackup); err != nil {
			return "", fmt.Errorf("failed to remove old backup: %w", err)
		}
	}

	for i := rf.maxBackups - 1; i >= 1; i-- {
		oldPath := fmt.Sprintf("%s.%d.gz", rf.path, i)
		newPath := fmt.Sprintf("%s.%d.gz", rf.path, i+1)

		if _, err := os.Stat(oldPath); err == nil {
			if err := os.Rename(oldPath, newPath); err != nil {
				return "", fmt.Errorf("failed to rename backup: %w", err)
			}
		}
	}

	firstBackup := fmt.Sprintf("%s.1.gz", rf.path)
	if rf.maxBackups > 0 {
		if _, err := os.Stat(rf.path); err == nil {
			if err := compressToGzip(rf.path, firstBackup); err != nil {
				return "", fmt.Errorf("failed to compress rotated log: %w", err)
			}
			if err := os.Remove(rf.path); err != nil {
				return "", fmt.Errorf("failed to remove rotated source: %w", err)
			}
		}
	} else {
		firstBackup = ""
		if err := os.Remove(rf.path); err != nil && !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to remove rotated log: %w", err)
		}
	}

	if err := rf.open(); err != nil {
		return "", err
	}
	return firstBackup, nil
}

func compressToGzip(srcPath, dstPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer dst.Close()

	gz := gzip.NewWriter(dst)
	if _, err := io.Copy(gz, src); err != nil {
		_ = gz.Close()
		return err
	}
	return gz.Close()
}

// Close implements io.Closer.
func (rf *RotatingFile) Close() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.file == nil {
		return nil
	}

	err := rf.file.Close()
	rf.file = nil
	return err
}
