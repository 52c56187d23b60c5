// wadprof runs one archive operation in a loop over a generated dataset
// and optionally records CPU, heap and execution trace profiles.
package main

import (
	"context"
	"fmt"
	"log"
	"math/rand" //nolint:gosec // intentional use for reproducible benchmarks
	"net/http"
	_ "net/http/pprof" //nolint:gosec // intentional profiling endpoint
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	wad "github.com/node91/OpenWAD"
)

type config struct {
	mode       string
	files      int
	fileSize   int
	dirCount   int
	pattern    string
	duration   time.Duration
	iterations int
	pprofAddr  string
	cpuProfile string
	memProfile string
	traceFile  string
	digests    bool
	directIO   bool
	tempDir    string
	keepTemp   bool
	randomSeed int64
}

//nolint:unused // sink variables prevent compiler optimizations in profiling
var (
	sinkBytes  []byte
	sinkEntry  wad.Entry
	sinkReport *wad.Report
)

//nolint:gocognit,gocyclo // main function complexity is acceptable for CLI tool
func main() {
	cfg := parseFlags()

	if cfg.pprofAddr != "" {
		go func() {
			log.Printf("pprof listening on %s", cfg.pprofAddr)
			//nolint:gosec // intentional pprof server without timeouts for profiling
			if err := http.ListenAndServe(cfg.pprofAddr, nil); err != nil {
				log.Printf("pprof server error: %v", err)
			}
		}()
	}

	dir, cleanup, err := setupTempDir(cfg)
	if err != nil {
		log.Fatal(err)
	}
	if cleanup != nil {
		defer cleanup() //nolint:errcheck // cleanup errors are non-fatal in profiler
	}

	srcDir := filepath.Join(dir, "src")
	if err := makeFiles(srcDir, cfg.files, cfg.fileSize, cfg.dirCount, cfg.pattern, cfg.randomSeed); err != nil {
		log.Fatal(err) //nolint:gocritic // exitAfterDefer is intentional - cleanup is best-effort
	}
	archive := filepath.Join(dir, "src.wad")
	if _, err := wad.Pack(context.Background(), srcDir, wad.PackWithDestination(archive)); err != nil {
		log.Fatal(err)
	}

	if cfg.cpuProfile != "" {
		cpuFile, cpuErr := os.Create(cfg.cpuProfile)
		if cpuErr != nil {
			log.Fatal(cpuErr)
		}
		if cpuErr = pprof.StartCPUProfile(cpuFile); cpuErr != nil {
			log.Fatal(cpuErr)
		}
		defer func() {
			pprof.StopCPUProfile()
			_ = cpuFile.Close()
		}()
	}

	if cfg.traceFile != "" {
		traceFile, traceErr := os.Create(cfg.traceFile)
		if traceErr != nil {
			log.Fatal(traceErr)
		}
		if traceErr = trace.Start(traceFile); traceErr != nil {
			log.Fatal(traceErr)
		}
		defer func() {
			trace.Stop()
			_ = traceFile.Close()
		}()
	}

	stats, err := runProfile(cfg, srcDir, archive, dir)
	if err != nil {
		log.Fatal(err)
	}

	if cfg.memProfile != "" {
		runtime.GC()
		f, err := os.Create(cfg.memProfile)
		if err != nil {
			log.Fatal(err)
		}
		if err := pprof.WriteHeapProfile(f); err != nil {
			log.Fatal(err)
		}
		_ = f.Close()
	}

	perSec := float64(stats.bytes) / stats.elapsed.Seconds()
	fmt.Printf("mode=%s ops=%d bytes=%s elapsed=%s throughput=%s/s\n",
		cfg.mode,
		stats.ops,
		humanize.IBytes(uint64(stats.bytes)), //nolint:gosec // byte counts are non-negative
		stats.elapsed,
		humanize.IBytes(uint64(perSec)),
	)
}

type profileStats struct {
	ops     int
	bytes   int64
	elapsed time.Duration
}

//nolint:gocognit,gocyclo,gocritic // complexity is inherent to multi-mode profiler dispatch; hugeParam acceptable for profiler
func runProfile(cfg config, srcDir, archive, rootDir string) (profileStats, error) {
	ctx := context.Background()
	start := time.Now()
	ops := 0
	var byteCount int64

	shouldContinue := func() bool {
		if cfg.iterations > 0 {
			return ops < cfg.iterations
		}
		return time.Since(start) < cfg.duration
	}

	switch cfg.mode {
	case "pack":
		opCfg := wad.OperationConfig{SkipOverwriteConfirm: true}
		for shouldContinue() {
			stats, err := wad.Pack(ctx, srcDir,
				wad.PackWithConfig(opCfg),
				wad.PackWithDestination(filepath.Join(rootDir, "pack.wad")))
			if err != nil {
				return profileStats{}, err
			}
			byteCount += int64(stats.ArchiveSize) //nolint:gosec // archive sizes fit in 32 bits
			ops++
		}

	case "writer":
		items, err := loadItems(srcDir)
		if err != nil {
			return profileStats{}, err
		}
		w := wad.NewWriter()
		for shouldContinue() {
			data, err := w.Bytes(items)
			if err != nil {
				return profileStats{}, err
			}
			sinkBytes = data
			byteCount += int64(len(data))
			ops++
		}

	case "extract":
		opts := []wad.ExtractOption{wad.ExtractWithDirectWrites(cfg.directIO)}
		for shouldContinue() {
			dest := filepath.Join(rootDir, "extract", fmt.Sprintf("iter-%d", ops))
			stats, err := wad.Extract(ctx, archive, append(opts, wad.ExtractWithDestination(dest))...)
			if err != nil {
				return profileStats{}, err
			}
			if err := stats.Err(); err != nil {
				return profileStats{}, err
			}
			if err := os.RemoveAll(dest); err != nil {
				return profileStats{}, err
			}
			byteCount += int64(stats.TotalBytes) //nolint:gosec // payload sizes fit in 32 bits
			ops++
		}

	case "parse":
		data, err := os.ReadFile(archive)
		if err != nil {
			return profileStats{}, err
		}
		rng := rand.New(rand.NewSource(cfg.randomSeed)) //nolint:gosec // intentional for reproducible benchmarks
		for shouldContinue() {
			a, err := wad.Parse(data)
			if err != nil {
				return profileStats{}, err
			}
			if a.Len() > 0 {
				sinkEntry = a.Entry(rng.Intn(a.Len()))
			}
			byteCount += int64(a.TableEnd())
			ops++
		}

	case "inspect":
		a, err := wad.Open(archive)
		if err != nil {
			return profileStats{}, err
		}
		defer a.Close()
		for shouldContinue() {
			r, err := wad.Inspect(a, wad.InspectWithDigests(cfg.digests))
			if err != nil {
				return profileStats{}, err
			}
			sinkReport = r
			byteCount += int64(r.PayloadBytes) //nolint:gosec // payload sizes fit in 32 bits
			ops++
		}

	default:
		return profileStats{}, fmt.Errorf("unknown mode: %s", cfg.mode)
	}

	return profileStats{
		ops:     ops,
		bytes:   byteCount,
		elapsed: time.Since(start),
	}, nil
}

func parseFlags() config {
	var cfg config
	pflag.StringVar(&cfg.mode, "mode", "extract", "mode: pack, writer, extract, parse, inspect")
	pflag.IntVar(&cfg.files, "files", 512, "number of files")
	pflag.IntVar(&cfg.fileSize, "file-size", 16<<10, "file size in bytes")
	pflag.IntVar(&cfg.dirCount, "dir-count", 16, "number of directories")
	pflag.StringVar(&cfg.pattern, "pattern", "compressible", "pattern: compressible or random")
	pflag.DurationVar(&cfg.duration, "duration", 10*time.Second, "duration to run (ignored if iterations > 0)")
	pflag.IntVar(&cfg.iterations, "iterations", 0, "number of iterations to run")
	pflag.StringVar(&cfg.pprofAddr, "pprof-addr", "", "pprof listen address (e.g. :6060)")
	pflag.StringVar(&cfg.cpuProfile, "cpuprofile", "", "write CPU profile to file")
	pflag.StringVar(&cfg.memProfile, "memprofile", "", "write heap profile to file")
	pflag.StringVar(&cfg.traceFile, "trace", "", "write trace to file")
	pflag.BoolVar(&cfg.digests, "digests", true, "inspect: hash every payload")
	pflag.BoolVar(&cfg.directIO, "direct-writes", false, "extract: write entries in place instead of temp file and rename")
	pflag.StringVar(&cfg.tempDir, "temp-dir", "", "directory to use for dataset")
	pflag.BoolVar(&cfg.keepTemp, "keep-temp", false, "keep temp dir after run")
	pflag.Int64Var(&cfg.randomSeed, "seed", 1, "random seed")
	pflag.Parse()
	return cfg
}

//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func setupTempDir(cfg config) (string, func() error, error) {
	if cfg.tempDir != "" {
		return cfg.tempDir, nil, os.MkdirAll(cfg.tempDir, 0o755) //nolint:gosec // 0o755 is intentional for profiler temp dirs
	}
	dir, err := os.MkdirTemp("", "wadprof-*")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() error {
		if cfg.keepTemp {
			return nil
		}
		return os.RemoveAll(dir)
	}
	return dir, cleanup, nil
}

func makeFiles(dir string, fileCount, fileSize, dirCount int, pattern string, seed int64) error {
	if dirCount <= 0 {
		dirCount = 1
	}
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // intentional use for reproducible benchmarks
	for i := range fileCount {
		relPath := fmt.Sprintf("dir%02d/file%05d.dat", i%dirCount, i)
		fullPath := filepath.Join(dir, filepath.FromSlash(relPath))
		if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil { //nolint:gosec // 0o755 is intentional for profiler
			return err
		}

		content := make([]byte, fileSize)
		switch pattern {
		case "random":
			if _, err := rng.Read(content); err != nil {
				return err
			}
		default:
			fillByte := byte('a' + (i % 26))
			for j := range content {
				content[j] = fillByte
			}
			if len(content) > 0 {
				content[0] = byte(i)
			}
		}

		if err := os.WriteFile(fullPath, content, 0o644); err != nil { //nolint:gosec // 0o644 is intentional for profiler test files
			return err
		}
	}
	return nil
}

// loadItems reads the dataset back as writer items, in the same order
// and with the same names Pack would use.
func loadItems(srcDir string) ([]wad.Item, error) {
	var items []wad.Item
	err := filepath.WalkDir(srcDir, func(p string, d os.DirEntry, err error) error {
		if err != nil || !d.Type().IsRegular() {
			return err
		}
		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		items = append(items, wad.Item{
			SourcePath: p,
			Name:       wad.ArchiveName(filepath.ToSlash(rel)),
			Data:       data,
		})
		return nil
	})
	return items, err
}
