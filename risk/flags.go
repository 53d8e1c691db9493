package risk

import "sync"

// halt flag 名称。DAILY_STOP 会话内可逆（取决于配置），KILL_SWITCH 一旦
// 触发在本会话内终结，只能由会话边界的 Reset 清除。
const (
	FlagDailyStop  = "DAILY_STOP"
	FlagKillSwitch = "KILL_SWITCH"
)

// Flags 是一次快照。
type Flags struct {
	DailyStop  bool
	KillSwitch bool
}

// Any 是否有任一 flag 激活。
func (f Flags) Any() bool { return f.DailyStop || f.KillSwitch }

// Registry 进程级 halt flag 注册表：单写者（Risk Engine）、多读者。
// Set 之后的任何 Snapshot 都能观察到新值（互斥锁保证顺序一致）。
type Registry struct {
	mu    sync.RWMutex
	flags Flags

	// flag 发生变化时回调（指标 gauge 等），在锁外调用。
	OnChange func(name string, active bool)
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Set 置位/清除一个 flag；值未变化时不触发回调。
func (r *Registry) Set(name string, active bool) {
	r.mu.Lock()
	changed := false
	switch name {
	case FlagDailyStop:
		changed = r.flags.DailyStop != active
		r.flags.DailyStop = active
	case FlagKillSwitch:
		changed = r.flags.KillSwitch != active
		r.flags.KillSwitch = active
	}
	cb := r.OnChange
	r.mu.Unlock()

	if changed && cb != nil {
		cb(name, active)
	}
}

// Get 读取单个 flag。
func (r *Registry) Get(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch name {
	case FlagDailyStop:
		return r.flags.DailyStop
	case FlagKillSwitch:
		return r.flags.KillSwitch
	}
	return false
}

// Snapshot 返回当前全部 flag 状态。
func (r *Registry) Snapshot() Flags {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.flags
}

// Reset 清除全部 flag，仅限会话边界调用。
func (r *Registry) Reset() {
	r.Set(FlagDailyStop, false)
	r.Set(FlagKillSwitch, false)
}
