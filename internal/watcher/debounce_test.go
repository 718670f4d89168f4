package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPendingTablesFiresOnce(t *testing.T) {
	var called atomic.Int32
	var calledPath string
	var mu sync.Mutex

	delay := 50 * time.Millisecond
	p := newPendingTables(delay, func(table string) {
		mu.Lock()
		calledPath = table
		mu.Unlock()
		called.Add(1)
	})

	p.touch("/data/kars.dbf")
	time.Sleep(delay + 50*time.Millisecond)

	if called.Load() != 1 {
		t.Errorf("expected one callback, got %d", called.Load())
	}
	mu.Lock()
	if calledPath != "/data/kars.dbf" {
		t.Errorf("unexpected table %s", calledPath)
	}
	mu.Unlock()
	if n := p.stop(); n != 0 {
		t.Errorf("nothing should be pending after the callback, got %d", n)
	}
}

func TestPendingTablesCoalescesBursts(t *testing.T) {
	var called atomic.Int32
	delay := 80 * time.Millisecond
	p := newPendingTables(delay, func(string) { called.Add(1) })

	// A table copy produces a create followed by several writes.
	for i := 0; i < 5; i++ {
		p.touch("/data/kars.dbf")
		time.Sleep(10 * time.Millisecond)
	}
	if called.Load() != 0 {
		t.Fatal("callback fired during the burst")
	}

	time.Sleep(delay + 60*time.Millisecond)
	if called.Load() != 1 {
		t.Errorf("expected one callback for the burst, got %d", called.Load())
	}
}

func TestPendingTablesSeparatePaths(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]int{}
	p := newPendingTables(30*time.Millisecond, func(table string) {
		mu.Lock()
		seen[table]++
		mu.Unlock()
	})

	p.touch("/data/kars.dbf")
	p.touch("/data/ardahan.dbf")

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if seen["/data/kars.dbf"] != 1 || seen["/data/ardahan.dbf"] != 1 {
		t.Errorf("unexpected callbacks %v", seen)
	}
}

func TestPendingTablesStop(t *testing.T) {
	var called atomic.Int32
	p := newPendingTables(40*time.Millisecond, func(string) { called.Add(1) })

	p.touch("/data/kars.dbf")
	p.touch("/data/ardahan.dbf")
	p.touch("/data/kars.dbf")

	if n := p.stop(); n != 2 {
		t.Errorf("stop dropped %d tables, want 2", n)
	}
	p.touch("/data/igdir.dbf")

	time.Sleep(80 * time.Millisecond)
	if called.Load() != 0 {
		t.Errorf("stopped tables fired %d callbacks", called.Load())
	}
}

func TestPendingTablesNilCallback(t *testing.T) {
	p := newPendingTables(10*time.Millisecond, nil)
	p.touch("/data/kars.dbf")
	time.Sleep(40 * time.Millisecond)
	if n := p.stop(); n != 0 {
		t.Errorf("expected the timer to clear without a callback, %d pending", n)
	}
}

func TestPendingTablesConcurrentTouches(t *testing.T) {
	var called atomic.Int32
	p := newPendingTables(50*time.Millisecond, func(string) { called.Add(1) })

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				p.touch(fmt.Sprintf("/data/table%d.dbf", i%4))
			}
		}()
	}
	wg.Wait()

	time.Sleep(150 * time.Millisecond)
	if called.Load() != 4 {
		t.Errorf("expected one callback per table, got %d", called.Load())
	}
}

func TestTableFor(t *testing.T) {
	dir := t.TempDir()
	lower := filepath.Join(dir, "kars.dbf")
	upper := filepath.Join(dir, "ARDAHAN.DBF")
	for _, path := range []string{lower, upper} {
		if err := os.WriteFile(path, []byte("table"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		path  string
		table string
		ok    bool
	}{
		{lower, lower, true},
		{filepath.Join(dir, "new.DBF"), filepath.Join(dir, "new.DBF"), true},
		{filepath.Join(dir, "kars.cpg"), lower, true},
		{filepath.Join(dir, "ARDAHAN.CPG"), upper, true},
		{filepath.Join(dir, "igdir.cpg"), "", false},
		{filepath.Join(dir, "kars.shp"), "", false},
		{filepath.Join(dir, "kars.dbf.1234.tmp"), "", false},
	}
	for _, tt := range tests {
		t.Run(filepath.Base(tt.path), func(t *testing.T) {
			table, ok := tableFor(tt.path)
			if ok != tt.ok || table != tt.table {
				t.Errorf("tableFor(%s) = %q, %v; want %q, %v", tt.path, table, ok, tt.table, tt.ok)
			}
		})
	}
}
