package exchange

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile 保存交易所执行参数（精度、最小名义、费率、滑点基线）。
// 按 (venue, environment) 加载一次，之后只读共享。
type Profile struct {
	Venue       string  `yaml:"venue"`
	Environment string  `yaml:"environment"`
	TickSize    float64 `yaml:"tickSize"`
	StepSize    float64 `yaml:"stepSize"`
	MinNotional float64 `yaml:"minNotional"`
	MakerBps    float64 `yaml:"makerBps"`
	TakerBps    float64 `yaml:"takerBps"`
	SlippageBps float64 `yaml:"slippageBps"`
	ATRSlipMult float64 `yaml:"atrSlipMult"` // atr_scaled 滑点模型的倍率，0 表示未配置
	FeeCurrency string  `yaml:"feeCurrency"` // 手续费币种，空表示计价货币
}

// Validate 检查 Profile 字段是否可用于撮合模拟。
func (p Profile) Validate() error {
	if p.Venue == "" {
		return fmt.Errorf("profile venue is required")
	}
	if p.TickSize <= 0 {
		return fmt.Errorf("profile %s tickSize must be > 0", p.Venue)
	}
	if p.StepSize <= 0 {
		return fmt.Errorf("profile %s stepSize must be > 0", p.Venue)
	}
	if p.MinNotional < 0 {
		return fmt.Errorf("profile %s minNotional must be >= 0", p.Venue)
	}
	if p.MakerBps < 0 || p.TakerBps < 0 || p.SlippageBps < 0 {
		return fmt.Errorf("profile %s fee/slippage bps must be >= 0", p.Venue)
	}
	return nil
}

// Resolver 从目录里按 (venue, environment) 解析 Profile。
// 文件命名：优先 {venue}_{environment}.yaml，缺省回退 {venue}.yaml。
type Resolver struct {
	Dir   string
	cache map[string]Profile
}

func NewResolver(dir string) *Resolver {
	return &Resolver{Dir: dir, cache: make(map[string]Profile)}
}

// Resolve 返回指定 venue/environment 的 Profile；结果缓存。
func (r *Resolver) Resolve(venue, environment string) (Profile, error) {
	venue = strings.ToLower(venue)
	environment = strings.ToLower(environment)
	key := venue + "/" + environment
	if p, ok := r.cache[key]; ok {
		return p, nil
	}

	candidates := []string{
		fmt.Sprintf("%s_%s.yaml", venue, sanitize(environment)),
		venue + ".yaml",
	}
	var lastErr error
	for _, name := range candidates {
		path := filepath.Join(r.Dir, name)
		raw, err := os.ReadFile(path)
		if err != nil {
			lastErr = err
			continue
		}
		var p Profile
		if err := yaml.Unmarshal(raw, &p); err != nil {
			return Profile{}, fmt.Errorf("parse profile %s: %w", name, err)
		}
		if p.Venue == "" {
			p.Venue = venue
		}
		if p.Environment == "" {
			p.Environment = environment
		}
		if err := p.Validate(); err != nil {
			return Profile{}, err
		}
		r.cache[key] = p
		return p, nil
	}
	return Profile{}, fmt.Errorf("no profile for %s/%s: %w", venue, environment, lastErr)
}

// sanitize 把 environment 里的连字符转成下划线，便于文件命名。
func sanitize(env string) string {
	return strings.ReplaceAll(env, "-", "_")
}
