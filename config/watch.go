package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher 基于 fsnotify 监听配置文件变化，重新加载并回调。
// 编辑器原子替换（rename+create）也会触发，所以监听所在目录而非文件本身。
type Watcher struct {
	Path     string
	Cooldown time.Duration // 两次重载之间的最小间隔，默认 2s

	// 重载失败时回调；旧配置继续生效。
	OnError func(err error)

	mu         sync.Mutex
	lastReload time.Time
}

// Start 阻塞监听直到 ctx 取消；每次有效变更调用 onUpdate。
func (w *Watcher) Start(ctx context.Context, onUpdate func(AppConfig)) error {
	if w.Cooldown <= 0 {
		w.Cooldown = 2 * time.Second
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	dir := filepath.Dir(w.Path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	target := filepath.Clean(w.Path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.reload(onUpdate)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			if w.OnError != nil {
				w.OnError(err)
			}
		}
	}
}

func (w *Watcher) reload(onUpdate func(AppConfig)) {
	w.mu.Lock()
	if time.Since(w.lastReload) < w.Cooldown {
		w.mu.Unlock()
		return
	}
	w.lastReload = time.Now()
	w.mu.Unlock()

	cfg, err := LoadWithEnvOverrides(w.Path)
	if err != nil {
		if w.OnError != nil {
			w.OnError(err)
		}
		return
	}
	if onUpdate != nil {
		onUpdate(cfg)
	}
}
