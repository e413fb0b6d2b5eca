// Package extract разбирает видео на каталог равномерно прореженных
// JPEG-кадров и находит кадр для момента воспроизведения.
package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
)

// MetadataFile пишется рядом с кадрами при каждом извлечении.
const MetadataFile = "metadata.json"

// Metadata описывает каталог кадров. FrameRate и FrameCount относятся
// к исходному видео, сохраняется каждый FrameInterval-й исходный кадр.
type Metadata struct {
	FrameSize     [2]int  `json:"frame_size"`
	FrameRate     float64 `json:"frame_rate"`
	FrameCount    int     `json:"frame_count"`
	FrameInterval int     `json:"frame_interval"`
}

// NewMetadata вычисляет интервал извлечения для исходного видео.
func NewMetadata(sourceRate float64, sourceFrames int, targetRate float64, width, height int) Metadata {
	interval := 1
	if targetRate > 0 && sourceRate > targetRate {
		interval = int(math.Ceil(sourceRate / targetRate))
	}
	return Metadata{
		FrameSize:     [2]int{width, height},
		FrameRate:     sourceRate,
		FrameCount:    sourceFrames,
		FrameInterval: interval,
	}
}

func (m Metadata) interval() int {
	return max(m.FrameInterval, 1)
}

// Len - число извлеченных кадров.
func (m Metadata) Len() int {
	if m.FrameCount <= 0 {
		return 0
	}
	return (m.FrameCount + m.interval() - 1) / m.interval()
}

// Step - время между двумя извлеченными кадрами, в секундах.
func (m Metadata) Step() float64 {
	if m.FrameRate <= 0 {
		return 0
	}
	return float64(m.interval()) / m.FrameRate
}

// Duration - длина исходного видео в секундах.
func (m Metadata) Duration() float64 {
	if m.FrameRate <= 0 {
		return 0
	}
	return float64(m.FrameCount) / m.FrameRate
}

// TimeAt переводит номер кадра во время воспроизведения.
func (m Metadata) TimeAt(cursor int) float64 {
	return float64(cursor) * m.Step()
}

// CursorAt переводит время воспроизведения в номер показанного кадра,
// ограниченный диапазоном извлеченных.
func (m Metadata) CursorAt(t float64) int {
	n := m.Len()
	if n == 0 || m.FrameRate <= 0 {
		return 0
	}
	c := int(t * m.FrameRate / float64(m.interval()))
	return min(max(c, 0), n-1)
}

// SourceFrame - номер исходного кадра для cursor.
func (m Metadata) SourceFrame(cursor int) int {
	return cursor * m.interval()
}

// FramePaths перечисляет файлы кадров в порядке воспроизведения.
func (m Metadata) FramePaths(dir string) []string {
	paths := make([]string, 0, m.Len())
	for i := 0; i < m.FrameCount; i += m.interval() {
		paths = append(paths, FramePath(dir, i))
	}
	return paths
}

// FramePath - имя файла исходного кадра.
func FramePath(dir string, sourceFrame int) string {
	return filepath.Join(dir, strconv.Itoa(sourceFrame)+".jpg")
}

// WriteMetadata сохраняет m в dir компактным JSON.
func WriteMetadata(dir string, m Metadata) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(m); err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	return writeFileAtomic(filepath.Join(dir, MetadataFile), bytes.TrimRight(buf.Bytes(), "\n"))
}

// ReadMetadata загружает метаданные каталога кадров.
func ReadMetadata(dir string) (Metadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	if err != nil {
		return Metadata{}, err
	}
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return Metadata{}, fmt.Errorf("parse metadata: %w", err)
	}
	return m, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
