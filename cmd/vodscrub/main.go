package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ivlev/vodscrub/internal/config"
	"github.com/ivlev/vodscrub/internal/export"
	"github.com/ivlev/vodscrub/internal/extract"
	"github.com/ivlev/vodscrub/internal/heroes"
	"github.com/ivlev/vodscrub/internal/ops"
	"github.com/ivlev/vodscrub/internal/server"
	"github.com/ivlev/vodscrub/internal/system"
	"github.com/ivlev/vodscrub/internal/timeline"
	log "github.com/sirupsen/logrus"
)

const videoDir = "input/video"

const usage = `Использование: vodscrub <команда> [флаги] [видео]

Команды:
  extract   извлечь кадры из видео
  scan      показать состояние извлеченных кадров
  labels    показать подписи оверлея на момент времени
  kills     список убийств текущего матча
  apply     применить операции редактирования из JSON
  serve     запустить HTTP/WebSocket сервер разметки
  export    выгрузить разметку в SQLite или PostgreSQL

Если видео не указано, берется самый свежий файл из input/video/.
`

type command struct {
	name string
	run  func(ctx context.Context, fs *flag.FlagSet, args []string) error
}

var commands = []command{
	{"extract", runExtract},
	{"scan", runScan},
	{"labels", runLabels},
	{"kills", runKills},
	{"apply", runApply},
	{"serve", runServe},
	{"export", runExport},
}

var configPath *string

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var cmd *command
	for i := range commands {
		if commands[i].name == os.Args[1] {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	// Создаем папку для видео, если ее нет
	os.MkdirAll(videoDir, 0o755)

	fs := flag.NewFlagSet(cmd.name, flag.ExitOnError)
	configPath = fs.String("config", "vodscrub.yaml", "Путь к файлу настроек")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.run(ctx, fs, os.Args[2:]); err != nil {
		log.Fatalf("[-] Ошибка: %v", err)
	}
}

// setup разбирает флаги подкоманды, затем загружает настройки и логирование.
func setup(fs *flag.FlagSet, args []string) (config.Config, error) {
	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("настройки: %w", err)
	}
	setupLogging(cfg.LogLevel)
	system.InitResourceLimits()
	return cfg, nil
}

func setupLogging(level string) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true, TimestampFormat: time.TimeOnly})
	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.Warnf("[!] Неизвестный уровень логирования %q, используется info", level)
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}

func resolveVideo(fs *flag.FlagSet) (string, error) {
	if v := fs.Arg(0); v != "" {
		return v, nil
	}
	latest, err := system.FindLatestVideo(videoDir)
	if err != nil {
		return "", fmt.Errorf("%w. Положите видео в %s/", err, videoDir)
	}
	log.Infof("[*] Выбран файл: %s", latest)
	return latest, nil
}

func loadCatalog(path string) *heroes.Catalog {
	if path == "" {
		return nil
	}
	c, err := heroes.Load(path)
	if err != nil {
		log.Warnf("[!] Каталог героев не загружен, имена не проверяются: %v", err)
		return nil
	}
	log.Debugf("[*] Героев в каталоге: %d", len(c.Heroes))
	return c
}

func loadMetadata(video string) *extract.Metadata {
	frames, _, err := extract.Scan(extract.DefaultDest(video))
	if err != nil {
		return nil
	}
	return &frames.Metadata
}

func runExtract(ctx context.Context, fs *flag.FlagSet, args []string) error {
	destFlag := fs.String("dest", "", "Папка для кадров (по умолчанию: путь к видео без расширения)")
	frameRateFlag := fs.Float64("framerate", 0, "Частота извлечения кадров (0 - из настроек)")
	sizeFlag := fs.String("size", "", "Размер кадра WxH (пусто - из настроек)")
	workersFlag := fs.Int("workers", 0, "Потоки кодирования JPEG (0 - из настроек или по числу ядер)")
	forceFlag := fs.Bool("force", false, "Продолжить извлечение в существующую папку")
	cfg, err := setup(fs, args)
	if err != nil {
		return err
	}

	video, err := resolveVideo(fs)
	if err != nil {
		return err
	}

	opts := extract.Options{
		Dest:      *destFlag,
		FrameRate: cfg.FrameRate,
		Width:     cfg.Width,
		Height:    cfg.Height,
		Workers:   cfg.Workers,
		Quality:   cfg.JPEGQuality,
		Force:     *forceFlag,
	}
	if *frameRateFlag > 0 {
		opts.FrameRate = *frameRateFlag
	}
	if *sizeFlag != "" {
		if opts.Width, opts.Height, err = config.ParseSize(*sizeFlag); err != nil {
			return err
		}
	}
	if *workersFlag > 0 {
		opts.Workers = *workersFlag
	}

	start := time.Now()
	job, err := extract.Extract(ctx, video, opts)
	if err != nil {
		return err
	}
	for p := range job.Progress() {
		if p.Total > 0 {
			fmt.Printf("\r[*] %.2f%%", float64(p.Done)/float64(p.Total)*100)
		}
	}
	fmt.Println()
	if err := job.Wait(); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn("[!] Извлечение прервано, продолжить можно с флагом -force")
			return nil
		}
		return err
	}

	fmt.Printf("[+++] Извлечено %d кадров за %.2f сек: %s\n", job.Frames.Len(), time.Since(start).Seconds(), job.Dest)
	return nil
}

func runScan(_ context.Context, fs *flag.FlagSet, args []string) error {
	destFlag := fs.String("dest", "", "Папка с кадрами (по умолчанию: путь к видео без расширения)")
	if _, err := setup(fs, args); err != nil {
		return err
	}

	dest := *destFlag
	if dest == "" {
		video, err := resolveVideo(fs)
		if err != nil {
			return err
		}
		dest = extract.DefaultDest(video)
	}

	frames, incomplete, err := extract.Scan(dest)
	if err != nil {
		return err
	}
	m := frames.Metadata
	fmt.Printf("[*] Папка: %s\n", frames.Dir)
	fmt.Printf("[*] Кадр: %dx%d | Исходная частота: %.3f | Интервал: %d\n", m.FrameSize[0], m.FrameSize[1], m.FrameRate, m.FrameInterval)
	fmt.Printf("[*] Кадров: %d | Длительность: %s\n", frames.Len(), timeline.FormatTime(m.Duration()))
	if incomplete {
		fmt.Println("[!] Извлечение не завершено, запустите extract -force")
	}
	return nil
}

func loadStore(fs *flag.FlagSet) (string, string, *timeline.Store, error) {
	video, err := resolveVideo(fs)
	if err != nil {
		return "", "", nil, err
	}
	path := timeline.DescriptionPath(video)
	s, err := timeline.Load(path)
	if err != nil {
		return "", "", nil, err
	}
	return video, path, s, nil
}

func runLabels(_ context.Context, fs *flag.FlagSet, args []string) error {
	atFlag := fs.Float64("t", 0, "Момент времени в секундах")
	asJSONFlag := fs.Bool("json", false, "Вывести в формате JSON")
	if _, err := setup(fs, args); err != nil {
		return err
	}

	_, _, s, err := loadStore(fs)
	if err != nil {
		return err
	}
	labels := s.LabelsAt(*atFlag)

	if *asJSONFlag {
		enc := json.NewEncoder(os.Stdout)
		enc.SetEscapeHTML(false)
		return enc.Encode(labels)
	}

	fmt.Printf("--- [%s] %s ---\n", timeline.FormatTime(*atFlag), labels.Match)
	for i := range labels.PlayerNames {
		fmt.Printf("%2d. %-20s %s\n", i, labels.PlayerNames[i], labels.PlayerHeroes[i])
	}
	for _, k := range labels.Kills {
		fmt.Println("    " + k)
	}
	return nil
}

func runKills(_ context.Context, fs *flag.FlagSet, args []string) error {
	atFlag := fs.Float64("t", 0, "Любой момент внутри матча, в секундах")
	if _, err := setup(fs, args); err != nil {
		return err
	}

	_, _, s, err := loadStore(fs)
	if err != nil {
		return err
	}
	kills, err := s.Kills(*atFlag)
	if err != nil {
		return err
	}
	for i, k := range kills {
		fmt.Printf("%3d  %s  %s\n", i, timeline.FormatTime(k.StartTime), timeline.FormatKill(k))
	}
	return nil
}

func runApply(_ context.Context, fs *flag.FlagSet, args []string) error {
	opsFileFlag := fs.String("ops", "-", "Файл с операциями JSON (\"-\" - stdin)")
	cfg, err := setup(fs, args)
	if err != nil {
		return err
	}

	video, path, s, err := loadStore(fs)
	if err != nil {
		return err
	}
	s.Updated()

	var r io.Reader = os.Stdin
	if *opsFileFlag != "-" {
		file, err := os.Open(*opsFileFlag)
		if err != nil {
			return err
		}
		defer file.Close()
		r = file
	}
	list, err := ops.Decode(r)
	if err != nil {
		return err
	}

	applier := ops.Applier{Catalog: loadCatalog(cfg.HeroesFile), Metadata: loadMetadata(video)}
	if err := applier.ApplyAll(s, list); err != nil {
		return err
	}
	if !s.Updated() {
		fmt.Println("[*] Изменений нет")
		return nil
	}
	if err := s.Save(path); err != nil {
		return err
	}
	fmt.Printf("[+++] Применено операций: %d. Сохранено: %s\n", len(list), path)
	return nil
}

func runServe(ctx context.Context, fs *flag.FlagSet, args []string) error {
	listenFlag := fs.String("listen", "", "Адрес сервера (пусто - из настроек)")
	noResumeFlag := fs.Bool("no-extract", false, "Не запускать извлечение недостающих кадров")
	cfg, err := setup(fs, args)
	if err != nil {
		return err
	}

	video, path, s, err := loadStore(fs)
	if err != nil {
		return err
	}

	opts := server.Options{
		Addr:            cfg.Listen,
		Store:           s,
		DescriptionPath: path,
		PushInterval:    cfg.PushEvery(),
	}
	if *listenFlag != "" {
		opts.Addr = *listenFlag
	}

	frames, incomplete, err := extract.Scan(extract.DefaultDest(video))
	if err != nil && !errors.Is(err, extract.ErrNoFrames) {
		return err
	}
	if (frames == nil || incomplete) && !*noResumeFlag {
		job, err := extract.Extract(ctx, video, extract.Options{
			FrameRate: cfg.FrameRate,
			Width:     cfg.Width,
			Height:    cfg.Height,
			Workers:   cfg.Workers,
			Quality:   cfg.JPEGQuality,
			Force:     true,
		})
		if err != nil {
			return err
		}
		frames, opts.Job = job.Frames, job
		defer job.Cancel()
	}
	opts.Frames = frames

	var meta *extract.Metadata
	if frames != nil {
		meta = &frames.Metadata
	}
	opts.Applier = ops.Applier{Catalog: loadCatalog(cfg.HeroesFile), Metadata: meta}

	srv := server.New(opts)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()
	log.Infof("[*] Сервер запущен: http://%s", opts.Addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("[*] Сервер остановлен. Не забудьте сохранить разметку через /api/save")
	return nil
}

func runExport(ctx context.Context, fs *flag.FlagSet, args []string) error {
	dsnFlag := fs.String("dsn", "", "Путь к SQLite или postgres:// URL (пусто - из настроек)")
	cfg, err := setup(fs, args)
	if err != nil {
		return err
	}

	video, _, s, err := loadStore(fs)
	if err != nil {
		return err
	}

	dsn := cfg.ExportDSN
	if *dsnFlag != "" {
		dsn = *dsnFlag
	}
	if dsn == "" {
		dsn = strings.TrimSuffix(timeline.DescriptionPath(video), ".description.json") + ".db"
	}

	e, err := export.Open(ctx, dsn)
	if err != nil {
		return err
	}
	defer e.Close()

	sum, err := e.Export(ctx, video, s)
	if err != nil {
		return err
	}
	fmt.Printf("[+++] Экспорт %s: матчей %d, героев %d, убийств %d\n", sum.RunID, sum.Matches, sum.Heroes, sum.Kills)
	return nil
}
