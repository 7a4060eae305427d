package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"
)

const maxLineBytes = 1024 * 1024

// Last returns up to n trailing lines of the file and the offset just past
// them. A missing file yields no lines and offset 0.
func Last(path string, n int) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if n <= 0 {
		end, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, 0, fmt.Errorf("seek log file: %w", err)
		}
		return nil, end, nil
	}

	var (
		ring   = make([]string, n)
		count  int
		offset int64
	)
	reader := bufio.NewReader(file)
	for {
		line, err := readLine(reader)
		if line.complete {
			ring[count%n] = line.text
			count++
			offset += line.size
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, 0, fmt.Errorf("read log file: %w", err)
		}
	}

	kept := min(count, n)
	lines := make([]string, 0, kept)
	for i := count - kept; i < count; i++ {
		lines = append(lines, ring[i%n])
	}
	return lines, offset, nil
}

// Follow emits every complete line appended after offset until ctx ends. The
// path is re-opened on every poll so a re-pointed symlink or a truncated file
// restarts from the beginning of the new content.
func Follow(ctx context.Context, path string, offset int64, interval time.Duration, emit func(string)) error {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	var current os.FileInfo
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		info, err := os.Stat(path)
		switch {
		case err == nil:
			if current != nil && !os.SameFile(current, info) {
				offset = 0
			}
			current = info
			if info.Size() < offset {
				offset = 0
			}
			next, readErr := readFrom(path, offset, emit)
			if readErr != nil {
				return readErr
			}
			offset = next
		case errors.Is(err, fs.ErrNotExist):
			current = nil
			offset = 0
		default:
			return fmt.Errorf("stat log file: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func readFrom(path string, offset int64, emit func(string)) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log file: %w", err)
	}
	reader := bufio.NewReader(file)
	for {
		line, err := readLine(reader)
		if line.complete {
			emit(line.text)
			offset += line.size
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return offset, nil
			}
			return offset, fmt.Errorf("read log file: %w", err)
		}
	}
}

type rawLine struct {
	text     string
	size     int64
	complete bool
}

// readLine reads one newline-terminated line. A trailing partial line is
// reported as incomplete so the caller can pick it up once it is finished.
func readLine(r *bufio.Reader) (rawLine, error) {
	var buf []byte
	for {
		chunk, err := r.ReadSlice('\n')
		buf = append(buf, chunk...)
		if errors.Is(err, bufio.ErrBufferFull) && len(buf) < maxLineBytes {
			continue
		}
		if err != nil && !errors.Is(err, bufio.ErrBufferFull) {
			return rawLine{}, err
		}
		size := int64(len(buf))
		text := string(buf)
		if n := len(text); n > 0 && text[n-1] == '\n' {
			text = text[:n-1]
		}
		if n := len(text); n > 0 && text[n-1] == '\r' {
			text = text[:n-1]
		}
		return rawLine{text: text, size: size, complete: true}, nil
	}
}
