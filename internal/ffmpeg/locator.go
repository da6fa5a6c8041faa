package ffmpeg

import (
	"context"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// SettingKey is the settings row that caches the resolved executable.
const SettingKey = "ffmpeg_path"

// DefaultCandidates are probed with -version when nothing else resolves.
var DefaultCandidates = []string{
	"/usr/bin/ffmpeg",
	"/usr/local/bin/ffmpeg",
	"/opt/homebrew/bin/ffmpeg",
	"/snap/bin/ffmpeg",
	"/opt/ffmpeg/bin/ffmpeg",
}

// SettingsCache persists the resolved path between restarts.
type SettingsCache interface {
	GetSetting(key string) (string, error)
	PutSetting(key, value string) error
	DeleteSetting(key string) error
}

// Locator resolves and caches the ffmpeg executable. Order: memory cache,
// settings cache, configured path, binary next to our executable, PATH
// search, then candidates that answer -version.
type Locator struct {
	mu         sync.Mutex
	cached     string
	configured string
	candidates []string
	settings   SettingsCache
	runner     Runner

	lookPath   func(string) (string, error)
	executable func() (string, error)
	stat       func(string) (os.FileInfo, error)
}

func NewLocator(configured string, candidates []string, settings SettingsCache, runner Runner) *Locator {
	if len(candidates) == 0 {
		candidates = DefaultCandidates
	}
	if runner == nil {
		runner = &ExecRunner{}
	}
	return &Locator{
		configured: configured,
		candidates: candidates,
		settings:   settings,
		runner:     runner,
		lookPath:   exec.LookPath,
		executable: os.Executable,
		stat:       os.Stat,
	}
}

// Locate returns a usable executable path or ErrNotFound.
func (l *Locator) Locate(ctx context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cached != "" && l.isFile(l.cached) {
		return l.cached, nil
	}
	l.cached = ""

	if l.settings != nil {
		if p, err := l.settings.GetSetting(SettingKey); err == nil && p != "" && l.isFile(p) {
			l.cached = p
			return p, nil
		}
	}

	if p := l.resolve(ctx); p != "" {
		l.cached = p
		if l.settings != nil {
			if err := l.settings.PutSetting(SettingKey, p); err != nil {
				log.Printf("[Locator] cache %s: %v", p, err)
			}
		}
		log.Printf("[Locator] using %s", p)
		return p, nil
	}
	return "", ErrNotFound
}

func (l *Locator) resolve(ctx context.Context) string {
	if l.configured != "" && l.isFile(l.configured) {
		return l.configured
	}
	if exe, err := l.executable(); err == nil {
		local := filepath.Join(filepath.Dir(exe), binaryName())
		if l.isFile(local) {
			return local
		}
	}
	if p, err := l.lookPath("ffmpeg"); err == nil {
		return p
	}
	for _, c := range l.candidates {
		if !l.isFile(c) {
			continue
		}
		if _, err := l.version(ctx, c); err == nil {
			return c
		}
	}
	return ""
}

// Invalidate forgets the resolved path in memory and in the settings cache.
func (l *Locator) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cached = ""
	if l.settings != nil {
		if err := l.settings.DeleteSetting(SettingKey); err != nil {
			log.Printf("[Locator] clear cache: %v", err)
		}
	}
}

// Version returns the first line of `ffmpeg -version` for the located binary.
func (l *Locator) Version(ctx context.Context) (string, error) {
	p, err := l.Locate(ctx)
	if err != nil {
		return "", err
	}
	return l.version(ctx, p)
}

func (l *Locator) version(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, VersionTimeout)
	defer cancel()
	res, err := l.runner.Run(ctx, path, "-version")
	if err != nil {
		return "", err
	}
	line := strings.TrimSpace(res.Stdout)
	if i := strings.IndexByte(line, '\n'); i > 0 {
		line = line[:i]
	}
	return line, nil
}

// Dirs lists the directories whose changes may move or replace the binary.
func (l *Locator) Dirs() []string {
	seen := map[string]bool{}
	var out []string
	add := func(p string) {
		if p == "" {
			return
		}
		d := filepath.Dir(p)
		if seen[d] {
			return
		}
		if fi, err := l.stat(d); err == nil && fi.IsDir() {
			seen[d] = true
			out = append(out, d)
		}
	}
	add(l.configured)
	if exe, err := l.executable(); err == nil {
		add(exe)
	}
	for _, c := range l.candidates {
		add(c)
	}
	return out
}

func (l *Locator) isFile(p string) bool {
	fi, err := l.stat(p)
	return err == nil && !fi.IsDir()
}

func binaryName() string {
	if runtime.GOOS == "windows" {
		return "ffmpeg.exe"
	}
	return "ffmpeg"
}
