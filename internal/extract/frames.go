package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrFrameNotReady возвращается, если кадр есть в метаданных, но его файл
	// еще не записан.
	ErrFrameNotReady = errors.New("please wait for extraction")
	ErrOutOfRange    = errors.New("frame cursor out of range")
	ErrNoFrames      = errors.New("no extracted frames")
)

// Frames - каталог извлеченных кадров, полный или нет.
type Frames struct {
	Dir      string
	Metadata Metadata
	Paths    []string
}

func NewFrames(dir string, m Metadata) *Frames {
	return &Frames{Dir: dir, Metadata: m, Paths: m.FramePaths(dir)}
}

// DefaultDest - каталог кадров для видео: путь без расширения.
func DefaultDest(video string) string {
	return strings.TrimSuffix(video, filepath.Ext(video))
}

// Scan открывает существующий каталог кадров. Флаг сообщает, что часть
// кадров еще отсутствует и извлечение нужно продолжить.
func Scan(dir string) (*Frames, bool, error) {
	m, err := ReadMetadata(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, true, fmt.Errorf("%w in %s", ErrNoFrames, dir)
	}
	if err != nil {
		return nil, true, err
	}

	f := NewFrames(dir, m)
	if len(f.Paths) == 0 {
		return nil, true, fmt.Errorf("%w in %s", ErrNoFrames, dir)
	}

	present, err := filepath.Glob(filepath.Join(dir, "*.jpg"))
	if err != nil {
		return nil, true, err
	}
	return f, len(present) < len(f.Paths), nil
}

// Len - число кадров в полном каталоге.
func (f *Frames) Len() int {
	return len(f.Paths)
}

// At возвращает файл кадра с номером cursor.
func (f *Frames) At(cursor int) (string, error) {
	if cursor < 0 || cursor >= len(f.Paths) {
		return "", fmt.Errorf("%w: %d of %d", ErrOutOfRange, cursor, len(f.Paths))
	}
	p := f.Paths[cursor]
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrFrameNotReady
		}
		return "", err
	}
	return p, nil
}

// PathAt возвращает файл кадра, показанного в момент t.
func (f *Frames) PathAt(t float64) (string, error) {
	if len(f.Paths) == 0 {
		return "", ErrNoFrames
	}
	return f.At(f.Metadata.CursorAt(t))
}
