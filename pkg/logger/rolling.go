package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

const dayLayout = "2006-01-02"

// dailyRoller writes to <dir>/<yyyy-MM-dd>_<name>.log. Lumberjack rolls the
// current day's file when it exceeds maxSizeMB; on a new day a fresh file is
// started and dated files beyond maxFiles are pruned, oldest first.
type dailyRoller struct {
	dir       string
	name      string
	maxSizeMB int
	maxFiles  int
	now       func() time.Time

	mu  sync.Mutex
	day string
	out *lumberjack.Logger
}

func newDailyRoller(dir, name string, maxSizeMB, maxFiles int) (*dailyRoller, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	return &dailyRoller{
		dir:       dir,
		name:      name,
		maxSizeMB: maxSizeMB,
		maxFiles:  maxFiles,
		now:       time.Now,
	}, nil
}

// Write implements io.Writer.
func (r *dailyRoller) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	day := r.now().Format(dayLayout)
	if day != r.day || r.out == nil {
		if err := r.rollLocked(day); err != nil {
			return 0, err
		}
	}
	return r.out.Write(p)
}

// Close closes the current file.
func (r *dailyRoller) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.out == nil {
		return nil
	}
	err := r.out.Close()
	r.out = nil
	return err
}

func (r *dailyRoller) filename(day string) string {
	return filepath.Join(r.dir, day+"_"+r.name+".log")
}

func (r *dailyRoller) rollLocked(day string) error {
	if r.out != nil {
		if err := r.out.Close(); err != nil {
			return fmt.Errorf("closing log file: %w", err)
		}
	}

	r.day = day
	r.out = &lumberjack.Logger{
		Filename:   r.filename(day),
		MaxSize:    r.maxSizeMB,
		MaxBackups: r.maxFiles,
		LocalTime:  true,
	}
	return r.pruneLocked()
}

// pruneLocked removes the oldest log files so at most maxFiles remain.
// Lumberjack backups carry a timestamp after the base name, so sorting by
// name orders both dated files and their backups chronologically.
func (r *dailyRoller) pruneLocked() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("listing log directory: %w", err)
	}

	suffix := "_" + r.name
	current := filepath.Base(r.filename(r.day))
	keep := r.maxFiles - 1 // room for the current file, created on first write

	var files []string
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || filepath.Ext(n) != ".log" || !strings.Contains(n, suffix) {
			continue
		}
		if n == current {
			keep++
		}
		files = append(files, n)
	}
	if len(files) <= keep {
		return nil
	}

	sort.Strings(files)
	for _, n := range files[:len(files)-keep] {
		if err := os.Remove(filepath.Join(r.dir, n)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("pruning log file: %w", err)
		}
	}
	return nil
}
