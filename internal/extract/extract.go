package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/ivlev/vodscrub/internal/system"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	log "github.com/sirupsen/logrus"
	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"
)

var (
	ErrDestExists        = errors.New("output directory already exists")
	ErrInsufficientSpace = errors.New("not enough free disk space")
)

// JPEG-кадр занимает примерно четверть байта на пиксель.
const jpegBytesPerPixel = 0.25

type Options struct {
	// Dest по умолчанию - путь к видео без расширения.
	Dest      string
	FrameRate float64
	Width     int
	Height    int
	Workers   int
	Quality   int
	// Force разрешает писать в существующий каталог, уже готовые
	// кадры сохраняются.
	Force bool
}

func (o Options) withDefaults() Options {
	if o.FrameRate <= 0 {
		o.FrameRate = 10
	}
	if o.Width <= 0 || o.Height <= 0 {
		o.Width, o.Height = 1280, 720
	}
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = 85
	}
	if o.Workers <= 0 {
		n, err := cpu.Counts(true)
		if err != nil || n < 1 {
			n = 4
		}
		o.Workers = n
	}
	return o
}

// Progress считает извлеченные кадры. Done достигает Total один раз, когда
// последний кадр записан. Успешное извлечение всегда заканчивается этим значением.
type Progress struct {
	Done  int
	Total int
}

// Job - запущенное извлечение.
type Job struct {
	Dest     string
	Metadata Metadata
	Frames   *Frames

	video   string
	src     image.Point
	workers int
	quality int

	cancel   context.CancelFunc
	progress chan Progress
	done     chan struct{}
	err      error

	mu       sync.Mutex
	finished int
	last     Progress
}

type frame struct {
	cursor int
	img    *image.RGBA
}

var (
	probeVideo = system.ProbeVideo
	freeSpace  = func(dir string) (uint64, error) {
		u, err := disk.Usage(dir)
		if err != nil {
			return 0, err
		}
		return u.Free, nil
	}
)

// Extract запускает разбор видео на JPEG-кадры и сразу возвращается.
// Метаданные и пути кадров известны заранее, файлы появляются по ходу
// работы.
func Extract(ctx context.Context, video string, opts Options) (*Job, error) {
	opts = opts.withDefaults()
	dest := opts.Dest
	if dest == "" {
		dest = DefaultDest(video)
	}

	if !opts.Force {
		if _, err := os.Stat(dest); err == nil {
			return nil, fmt.Errorf("%w: %s", ErrDestExists, dest)
		}
	}

	info, err := probeVideo(ctx, video)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, fmt.Errorf("create frame directory: %w", err)
	}

	meta := NewMetadata(info.FrameRate, info.FrameCount, opts.FrameRate, opts.Width, opts.Height)
	if err := checkSpace(dest, meta); err != nil {
		return nil, err
	}
	if err := WriteMetadata(dest, meta); err != nil {
		return nil, err
	}

	j := newJob(dest, meta, image.Pt(info.Width, info.Height), opts)
	j.video = video

	ctx, j.cancel = context.WithCancel(ctx)
	go func() {
		j.finish(j.run(ctx))
	}()

	log.WithFields(log.Fields{
		"video":    video,
		"dest":     dest,
		"frames":   meta.Len(),
		"interval": meta.FrameInterval,
		"workers":  j.workers,
	}).Info("[*] Извлечение кадров запущено")

	return j, nil
}

func newJob(dest string, meta Metadata, src image.Point, opts Options) *Job {
	workers := max(min(opts.Workers, meta.Len()), 1)
	return &Job{
		Dest:     dest,
		Metadata: meta,
		Frames:   NewFrames(dest, meta),
		src:      src,
		workers:  workers,
		quality:  opts.Quality,
		cancel:   func() {},
		progress: make(chan Progress, 1),
		done:     make(chan struct{}),
	}
}

func checkSpace(dest string, meta Metadata) error {
	free, err := freeSpace(dest)
	if err != nil {
		log.Warnf("[!] Не удалось проверить свободное место: %v", err)
		return nil
	}
	need := uint64(float64(meta.Len()) * float64(meta.FrameSize[0]*meta.FrameSize[1]) * jpegBytesPerPixel)
	if free < need {
		return fmt.Errorf("%w: need about %d MB, have %d MB", ErrInsufficientSpace, need>>20, free>>20)
	}
	return nil
}

// Progress отдает последнее значение прогресса. Промежуточные значения
// теряются, если получатель не успевает. Канал закрывается по окончании.
func (j *Job) Progress() <-chan Progress {
	return j.progress
}

// Status возвращает последнее значение прогресса.
func (j *Job) Status() Progress {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.last
}

// Done закрывается по окончании работы.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Cancel останавливает извлечение. Уже записанные кадры остаются.
func (j *Job) Cancel() {
	j.cancel()
}

// Wait ждет окончания работы и возвращает ее ошибку.
func (j *Job) Wait() error {
	<-j.done
	return j.err
}

func (j *Job) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	interval := j.Metadata.interval()
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-v", "error",
		"-i", j.video,
		"-an", "-sn",
		"-vf", fmt.Sprintf("select=not(mod(n\\,%d))", interval),
		"-fps_mode", "passthrough",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"pipe:1",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe error: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg start error: %w", err)
	}

	pumpErr := j.pump(ctx, stdout)
	if pumpErr != nil {
		cancel()
	}
	waitErr := cmd.Wait()

	switch {
	case pumpErr != nil:
		return pumpErr
	case ctx.Err() != nil:
		return ctx.Err()
	case waitErr != nil:
		return fmt.Errorf("ffmpeg wait error: %w, output: %s", waitErr, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// pump читает из r сырые RGBA-кадры исходного размера и кодирует
// недостающие в пуле воркеров.
func (j *Job) pump(ctx context.Context, r io.Reader) error {
	g, gctx := errgroup.WithContext(ctx)
	frames := make(chan frame, j.workers)

	g.Go(func() error {
		defer close(frames)
		return j.read(gctx, r, frames)
	})

	for range j.workers {
		g.Go(func() error {
			for f := range frames {
				err := j.writeFrame(f)
				system.PutImage(f.img)
				if err != nil {
					return err
				}
				j.advance()
			}
			return nil
		})
	}

	return g.Wait()
}

func (j *Job) read(ctx context.Context, r io.Reader, out chan<- frame) error {
	rect := image.Rectangle{Max: j.src}

	for cursor := range j.Frames.Len() {
		if err := ctx.Err(); err != nil {
			return err
		}

		img := system.GetImage(rect)
		if _, err := io.ReadFull(r, img.Pix); err != nil {
			system.PutImage(img)
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				log.Debugf("[*] Поток закончился на кадре %d из %d", cursor, j.Frames.Len())
				return nil
			}
			return fmt.Errorf("read frame %d: %w", cursor, err)
		}

		if _, err := os.Stat(j.Frames.Paths[cursor]); err == nil {
			system.PutImage(img)
			j.advance()
			continue
		}

		select {
		case out <- frame{cursor: cursor, img: img}:
		case <-ctx.Done():
			system.PutImage(img)
			return ctx.Err()
		}
	}

	// ffmpeg может сообщить меньше кадров, чем декодирует.
	_, err := io.Copy(io.Discard, r)
	return err
}

func (j *Job) writeFrame(f frame) error {
	var img image.Image = f.img

	size := image.Pt(j.Metadata.FrameSize[0], j.Metadata.FrameSize[1])
	if f.img.Rect.Size() != size {
		dst := image.NewRGBA(image.Rectangle{Max: size})
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), f.img, f.img.Bounds(), draw.Src, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: j.quality}); err != nil {
		return fmt.Errorf("encode frame %d: %w", f.cursor, err)
	}
	if err := writeFileAtomic(j.Frames.Paths[f.cursor], buf.Bytes()); err != nil {
		return fmt.Errorf("write frame %d: %w", f.cursor, err)
	}
	return nil
}

func (j *Job) advance() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.finished++
	j.report(Progress{Done: j.finished, Total: j.Frames.Len()})
}

// report оставляет в канале прогресса только свежее значение.
// Вызывается под j.mu.
func (j *Job) report(p Progress) {
	j.last = p
	for {
		select {
		case j.progress <- p:
			return
		default:
		}
		select {
		case <-j.progress:
		default:
		}
	}
}

func (j *Job) finish(err error) {
	j.mu.Lock()
	if total := j.Frames.Len(); err == nil && j.last != (Progress{Done: total, Total: total}) {
		j.report(Progress{Done: total, Total: total})
	}
	close(j.progress)
	j.mu.Unlock()

	j.err = err
	close(j.done)

	entry := log.WithField("dest", j.Dest)
	switch {
	case err == nil:
		entry.Infof("[+++] Извлечено кадров: %d", j.Frames.Len())
	case errors.Is(err, context.Canceled):
		entry.Warn("[!] Извлечение остановлено")
	default:
		entry.Errorf("[-] Ошибка извлечения: %v", err)
	}
}
