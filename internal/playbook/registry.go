package playbook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"tradelab/internal/logger"
	"tradelab/internal/pkg/faults"
	"tradelab/internal/strategy"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Template 描述一个可复用的策略剧本：规则文本 + 风控缺省值。
type Template struct {
	ID            string                 `mapstructure:"id" yaml:"id"`
	Description   string                 `mapstructure:"description" yaml:"description"`
	Rules         string                 `mapstructure:"rules" yaml:"rules"`
	StopLossPct   float64                `mapstructure:"stop_loss_pct" yaml:"stop_loss_pct"`
	TakeProfitPct float64                `mapstructure:"take_profit_pct" yaml:"take_profit_pct"`
	Version       int                    `mapstructure:"version" yaml:"version"`
	Schema        map[string]interface{} `mapstructure:"schema" yaml:"schema"`

	schemaCompiled *jsonschema.Schema
}

// FileConfig 映射 playbooks 文件的顶层结构。
type FileConfig struct {
	Playbooks map[string]Template `mapstructure:"playbooks" yaml:"playbooks"`
}

// Snapshot 是某一时刻的模板全集，重载后版本号递增。
type Snapshot struct {
	Version   int64
	LoadedAt  time.Time
	Templates map[string]Template
}

// Registry 管理剧本模板，文件变更时自动重载。
type Registry struct {
	path string
	v    *viper.Viper

	mu       sync.RWMutex
	snapshot Snapshot
}

// NewRegistry 读取剧本文件并监听更新。
// 启动时每个模板的规则文本都要能编译通过，坏模板直接拒绝加载。
func NewRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("playbook registry requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read playbook config failed: %w", err)
	}
	r := &Registry{path: path, v: v}
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		// 重载失败保留旧快照，服务不受影响
		if err := r.reload(); err != nil {
			logger.Errorf("playbook reload failed: %v", err)
		}
	})
	v.WatchConfig()
	return r, nil
}

// Snapshot 返回当前模板集的副本。
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneSnapshot(r.snapshot)
}

// Template 返回指定 ID 的模板。
func (r *Registry) Template(id string) (Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tpl, ok := r.snapshot.Templates[strings.TrimSpace(id)]
	return tpl, ok
}

// IDs 返回所有模板 ID（排序后）。
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.snapshot.Templates))
	for id := range r.snapshot.Templates {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Resolve 查找模板并用 schema 校验调用方的参数覆盖。
func (r *Registry) Resolve(id string, params map[string]any) (Template, error) {
	tpl, ok := r.Template(id)
	if !ok {
		return Template{}, faults.Validationf("playbook", "未知剧本: %s", id)
	}
	if err := tpl.ValidateParams(params); err != nil {
		return Template{}, faults.Validationf("playbook_params", "%v", err)
	}
	return tpl, nil
}

// ValidateParams 用模板自带的 JSON Schema 校验参数覆盖，无 schema 时放行。
func (t Template) ValidateParams(params map[string]any) error {
	if t.schemaCompiled == nil || len(params) == 0 {
		return nil
	}
	return t.schemaCompiled.Validate(normalizeJSONValues(params))
}

func (r *Registry) reload() error {
	cfg, err := readPlaybookFile(r.path)
	if err != nil {
		return err
	}
	templates := make(map[string]Template)
	for name, tpl := range cfg.Playbooks {
		norm, err := normalizeTemplate(name, tpl)
		if err != nil {
			return err
		}
		templates[norm.ID] = norm
	}
	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:   r.snapshot.Version + 1,
		LoadedAt:  time.Now(),
		Templates: templates,
	}
	r.mu.Unlock()
	logger.Infof("Playbook registry loaded %d templates from %s", len(templates), filepath.Base(r.path))
	return nil
}

func normalizeTemplate(name string, tpl Template) (Template, error) {
	tpl.ID = strings.TrimSpace(tpl.ID)
	if tpl.ID == "" {
		tpl.ID = strings.TrimSpace(name)
	}
	if tpl.Version <= 0 {
		tpl.Version = 1
	}
	tpl.Description = strings.TrimSpace(tpl.Description)
	if _, err := strategy.Compile(tpl.Rules); err != nil {
		return Template{}, fmt.Errorf("playbook %s 规则非法: %w", tpl.ID, err)
	}
	if tpl.StopLossPct < 0 || tpl.StopLossPct >= 100 {
		return Template{}, fmt.Errorf("playbook %s stop_loss_pct 必须落在 [0,100)", tpl.ID)
	}
	if tpl.TakeProfitPct < 0 {
		return Template{}, fmt.Errorf("playbook %s take_profit_pct 不能为负", tpl.ID)
	}
	if len(tpl.Schema) > 0 {
		compiled, err := compileSchema(tpl.Schema)
		if err != nil {
			return Template{}, fmt.Errorf("playbook %s schema 编译失败: %w", tpl.ID, err)
		}
		tpl.schemaCompiled = compiled
	}
	return tpl, nil
}

func cloneSnapshot(src Snapshot) Snapshot {
	dst := Snapshot{
		Version:   src.Version,
		LoadedAt:  src.LoadedAt,
		Templates: make(map[string]Template, len(src.Templates)),
	}
	for id, tpl := range src.Templates {
		dst.Templates[id] = tpl
	}
	return dst
}

func compileSchema(data map[string]interface{}) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", strings.NewReader(string(raw))); err != nil {
		return nil, err
	}
	return compiler.Compile("schema.json")
}

func readPlaybookFile(path string) (FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("read playbook config failed: %w", err)
	}
	var cfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return FileConfig{}, fmt.Errorf("parse playbook config failed: %w", err)
	}
	return cfg, nil
}

// normalizeJSONValues 把 YAML/请求解出的 int 归一成 float64，保证与 schema 的 number 匹配。
func normalizeJSONValues(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = normalizeJSONValues(child)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = normalizeJSONValues(child)
		}
		return out
	case int:
		return float64(val)
	case int64:
		return float64(val)
	default:
		return val
	}
}
