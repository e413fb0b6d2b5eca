package system

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrNoVideo возвращается, когда в папке нет ни одного видеофайла.
var ErrNoVideo = errors.New("no video files found")

var videoExtensions = []string{".mp4", ".mkv", ".mov", ".avi", ".webm", ".flv", ".ts"}

func InitResourceLimits() {
	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		log.Printf("[!] Не удалось получить лимит файлов: %v", err)
		return
	}

	rLimit.Cur = 2048
	if rLimit.Cur > rLimit.Max {
		rLimit.Cur = rLimit.Max
	}

	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		log.Printf("[!] Не удалось установить лимит файлов: %v", err)
		return
	}
	log.Debugf("[*] Системный лимит открытых файлов увеличен до %d", rLimit.Cur)
}

// IsVideo сообщает, похоже ли имя файла на видео.
func IsVideo(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range videoExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// FindLatestVideo возвращает самый свежий видеофайл в папке.
func FindLatestVideo(dir string) (string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var latestFile string
	var latestTime time.Time

	for _, f := range files {
		if f.IsDir() || !IsVideo(f.Name()) {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		if latestFile == "" || info.ModTime().After(latestTime) {
			latestTime = info.ModTime()
			latestFile = filepath.Join(dir, f.Name())
		}
	}

	if latestFile == "" {
		return "", fmt.Errorf("%w in %s", ErrNoVideo, dir)
	}
	return latestFile, nil
}

// VideoInfo описывает первый видеопоток файла.
type VideoInfo struct {
	Width      int
	Height     int
	FrameRate  float64
	FrameCount int
	Duration   float64
}

type probeOutput struct {
	Streams []struct {
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
		NbFrames     string `json:"nb_frames"`
		Duration     string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// ProbeVideo читает размеры, частоту кадров и длину видео через ffprobe.
func ProbeVideo(ctx context.Context, path string) (VideoInfo, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,avg_frame_rate,r_frame_rate,nb_frames,duration:format=duration",
		"-of", "json",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return VideoInfo{}, fmt.Errorf("ffprobe %s: %w: %s", path, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return VideoInfo{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return parseProbe(out)
}

func parseProbe(out []byte) (VideoInfo, error) {
	var p probeOutput
	if err := json.Unmarshal(out, &p); err != nil {
		return VideoInfo{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(p.Streams) == 0 {
		return VideoInfo{}, errors.New("no video stream")
	}

	s := p.Streams[0]
	info := VideoInfo{Width: s.Width, Height: s.Height}

	info.FrameRate = parseRate(s.AvgFrameRate)
	if info.FrameRate <= 0 {
		info.FrameRate = parseRate(s.RFrameRate)
	}
	if info.FrameRate <= 0 {
		return VideoInfo{}, errors.New("unknown frame rate")
	}

	info.Duration = parseFloat(s.Duration)
	if info.Duration <= 0 {
		info.Duration = parseFloat(p.Format.Duration)
	}

	if n, err := strconv.Atoi(s.NbFrames); err == nil && n > 0 {
		info.FrameCount = n
	} else {
		info.FrameCount = int(math.Round(info.Duration * info.FrameRate))
	}
	if info.Duration <= 0 {
		info.Duration = float64(info.FrameCount) / info.FrameRate
	}
	return info, nil
}

// parseRate разбирает частоту вида "30000/1001" или "25".
func parseRate(s string) float64 {
	num, den, found := strings.Cut(s, "/")
	n := parseFloat(num)
	if !found {
		return n
	}
	d := parseFloat(den)
	if d == 0 {
		return 0
	}
	return n / d
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}
