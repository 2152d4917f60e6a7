package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	// DefaultMaxBytes is the size after which a log file is rotated.
	DefaultMaxBytes = 1_000_000
	// DefaultBackups is how many rotated files are kept next to the live one.
	DefaultBackups = 5
)

// LogFile describes a file that can be written to by a logger.
//
// Writes are queued and performed by a single goroutine. Once the file grows past maxBytes it is renamed to <path>.1 (shifting older backups up to <path>.<backups>) and a fresh file is opened.
type LogFile struct {
	channel chan string
	done    chan struct{}
	once    sync.Once

	path     string
	file     *os.File
	size     int64
	maxBytes int64
	backups  int
}

// NewLogFile creates the file at path, along with its parent directories, and starts its writer goroutine.
func NewLogFile(path string, maxBytes int64, backups int) (*LogFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}

	lf := LogFile{
		channel:  make(chan string, 100),
		done:     make(chan struct{}),
		path:     path,
		file:     file,
		maxBytes: maxBytes,
		backups:  backups,
	}

	go lf.run()

	return &lf, nil
}

// Print writes a string to the log file.
func (lf *LogFile) Print(s string) {
	lf.channel <- s
}

// Close flushes pending lines and closes the file. Printing after Close panics.
func (lf *LogFile) Close() {
	lf.once.Do(func() {
		close(lf.channel)
		<-lf.done
	})
}

func (lf *LogFile) run() {
	defer close(lf.done)
	defer func() {
		if lf.file != nil {
			lf.file.Close()
		}
	}()

	for s := range lf.channel {
		if lf.file == nil {
			continue
		}
		if lf.maxBytes > 0 && lf.size > 0 && lf.size+int64(len(s)) > lf.maxBytes {
			lf.rotate()
			if lf.file == nil {
				continue
			}
		}
		n, _ := lf.file.WriteString(s)
		lf.size += int64(n)
	}
}

func (lf *LogFile) rotate() {
	lf.file.Close()
	lf.file = nil

	if lf.backups > 0 {
		for i := lf.backups - 1; i >= 1; i-- {
			os.Rename(lf.backupName(i), lf.backupName(i+1))
		}
		os.Rename(lf.path, lf.backupName(1))
	}

	file, err := os.OpenFile(lf.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "log rotation of %s failed: %v\n", lf.path, err)
		return
	}
	lf.file = file
	lf.size = 0
}

func (lf *LogFile) backupName(i int) string {
	return fmt.Sprintf("%s.%d", lf.path, i)
}
