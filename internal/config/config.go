// Package config 实现 novac 后端的配置加载
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// 常量定义
const (
	ConfigFileName = "novac.toml" // 配置文件名
)

// Config 后端配置
type Config struct {
	Target TargetConfig `toml:"target"`
	Log    LogConfig    `toml:"log"`
	Dump   DumpConfig   `toml:"dump"`
}

// TargetConfig 目标架构配置
type TargetConfig struct {
	// Name 目标名称（目前支持 x64）
	Name string `toml:"name"`
}

// LogConfig 日志配置
type LogConfig struct {
	// Level 日志级别（debug/info/warn/error）
	Level string `toml:"level"`

	// Development 开发模式（彩色控制台输出）
	Development bool `toml:"development"`
}

// DumpConfig 调试输出配置
type DumpConfig struct {
	// IR 每个阶段后输出函数 IR
	IR bool `toml:"ir"`

	// CFG 输出控制流图
	CFG bool `toml:"cfg"`

	// Liveness 输出活跃区间与存储偏好
	Liveness bool `toml:"liveness"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Target: TargetConfig{Name: "x64"},
		Log:    LogConfig{Level: "info"},
	}
}

// Load 从文件加载配置
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}
