package reporter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
)

// JSON 将结果写入 JSON 文件
type JSON struct {
	path string
}

// NewJSON 创建 JSON 报告器
func NewJSON(path string) *JSON {
	return &JSON{path: path}
}

// NewJSONFactory 返回 JSON 报告器工厂，需要 path 配置项
func NewJSONFactory() Factory {
	return func(config map[string]any) (Reporter, error) {
		path, _ := config["path"].(string)
		if path == "" {
			return nil, fmt.Errorf("json 报告器需要 path 配置")
		}
		return NewJSON(path), nil
	}
}

// Name implements Reporter.
func (j *JSON) Name() string { return string(TypeJSON) }

// Report implements Reporter.
func (j *JSON) Report(_ context.Context, s *Summary) error {
	data, err := sonic.ConfigStd.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化报告失败: %w", err)
	}
	if dir := filepath.Dir(j.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("创建目录失败: %w", err)
		}
	}
	if err := os.WriteFile(j.path, data, 0o644); err != nil {
		return fmt.Errorf("写入报告失败: %w", err)
	}
	return nil
}
