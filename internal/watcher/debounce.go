package watcher

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/scanner"
	"github.com/umutdinceryananer/Turkish-Cities-Character-Script/internal/textenc"
)

// pendingTables holds the tables whose events are still arriving. Copying a
// table, or dropping its companion next to it, produces a burst of events;
// the table is handed to ready once, delay after the last of them.
type pendingTables struct {
	delay time.Duration
	ready func(table string)

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

func newPendingTables(delay time.Duration, ready func(table string)) *pendingTables {
	return &pendingTables{
		delay:  delay,
		ready:  ready,
		timers: make(map[string]*time.Timer),
	}
}

// touch restarts the timer of table. Touches after stop are ignored.
func (p *pendingTables) touch(table string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return
	}
	if timer, ok := p.timers[table]; ok {
		timer.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(p.delay, func() {
		p.mu.Lock()
		if p.timers[table] != timer {
			p.mu.Unlock()
			return
		}
		delete(p.timers, table)
		p.mu.Unlock()

		if p.ready != nil {
			p.ready(table)
		}
	})
	p.timers[table] = timer
}

// stop drops every pending table and returns how many there were.
func (p *pendingTables) stop() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopped = true
	dropped := len(p.timers)
	for table, timer := range p.timers {
		timer.Stop()
		delete(p.timers, table)
	}
	return dropped
}

// tableFor maps an event path to the table it concerns. A companion
// encoding file stands for the table beside it, which has to be re-read in
// the declared encoding.
func tableFor(path string) (string, bool) {
	if scanner.IsTable(path) {
		return path, true
	}
	ext := filepath.Ext(path)
	if !strings.EqualFold(ext, textenc.CompanionExt) {
		return "", false
	}
	base := strings.TrimSuffix(path, ext)
	candidates := []string{strings.ToLower(scanner.TableExt), strings.ToUpper(scanner.TableExt)}
	if ext == strings.ToUpper(ext) {
		candidates[0], candidates[1] = candidates[1], candidates[0]
	}
	for _, tableExt := range candidates {
		if _, err := os.Stat(base + tableExt); err == nil {
			return base + tableExt, true
		}
	}
	return "", false
}
