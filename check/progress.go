package check

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// Progress 检测进度，供状态接口读取
type Progress struct {
	total     atomic.Int64
	done      atomic.Int64
	alive     atomic.Int64
	running   atomic.Bool
	startedAt atomic.Int64
}

// ProgressSnapshot 某一时刻的进度
type ProgressSnapshot struct {
	Running bool          `json:"running"`
	Total   int64         `json:"total"`
	Done    int64         `json:"done"`
	Alive   int64         `json:"alive"`
	Elapsed time.Duration `json:"elapsed"`
}

// Current 当前进程的检测进度
var Current = &Progress{}

func (p *Progress) start(total int) {
	p.total.Store(int64(total))
	p.done.Store(0)
	p.alive.Store(0)
	p.startedAt.Store(time.Now().UnixNano())
	p.running.Store(true)
}

func (p *Progress) finish() {
	p.running.Store(false)
}

func (p *Progress) record(alive bool) {
	p.done.Add(1)
	if alive {
		p.alive.Add(1)
	}
}

// Snapshot 读取当前进度
func (p *Progress) Snapshot() ProgressSnapshot {
	s := ProgressSnapshot{
		Running: p.running.Load(),
		Total:   p.total.Load(),
		Done:    p.done.Load(),
		Alive:   p.alive.Load(),
	}
	if start := p.startedAt.Load(); start > 0 {
		s.Elapsed = time.Since(time.Unix(0, start)).Truncate(time.Second)
	}
	return s
}

// report 每隔 interval 打印一次进度，直到 stop 关闭
func (p *Progress) report(interval time.Duration, stop <-chan struct{}) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			s := p.Snapshot()
			slog.Info("检测进度", "已检测", s.Done, "总数", s.Total, "可用", s.Alive)
		}
	}
}
