package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// LoadConfig 加载配置并解码到 out
//
// 顺序: base.yaml -> <env>.yaml -> secrets.env 占位符 -> 系统环境变量占位符。
// configDir 为空时使用 "config"。
func LoadConfig(env string, configDir string, out any) error {
	if configDir == "" {
		configDir = "config"
	}

	baseConfig, err := loadYAMLFile(filepath.Join(configDir, "base.yaml"))
	if err != nil {
		return fmt.Errorf("failed to load base.yaml: %w", err)
	}

	merged := baseConfig
	if env != "" && env != "base" {
		envFile := filepath.Join(configDir, env+".yaml")
		if _, err := os.Stat(envFile); err == nil {
			envConfig, err := loadYAMLFile(envFile)
			if err != nil {
				return fmt.Errorf("failed to load %s.yaml: %w", env, err)
			}
			merged = mergeMaps(baseConfig, envConfig)
		}
	}

	secrets := map[string]string{}
	secretsFile := filepath.Join(configDir, "secrets.env")
	if _, err := os.Stat(secretsFile); err == nil {
		secrets, err = loadEnvFile(secretsFile)
		if err != nil {
			return fmt.Errorf("failed to load secrets.env: %w", err)
		}
	}
	merged = substituteEnvVars(merged, secrets)

	// 重新编码后解码到目标结构体，复用 yaml tag 和 time.Duration 解析
	raw, err := yaml.Marshal(merged)
	if err != nil {
		return fmt.Errorf("failed to re-encode config: %w", err)
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	return nil
}

func loadYAMLFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := map[string]any{}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, err
	}
	return config, nil
}

// loadEnvFile 加载 .env 文件
func loadEnvFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	env := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"`)
		value = strings.Trim(value, `'`)
		env[strings.TrimSpace(key)] = value
	}
	return env, nil
}

// mergeMaps 合并两个 map，src 覆盖 dst，嵌套 map 递归合并
func mergeMaps(dst, src map[string]any) map[string]any {
	result := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		result[k] = v
	}
	for k, v := range src {
		dstMap, dstOK := result[k].(map[string]any)
		srcMap, srcOK := v.(map[string]any)
		if dstOK && srcOK {
			result[k] = mergeMaps(dstMap, srcMap)
			continue
		}
		result[k] = v
	}
	return result
}

func substituteEnvVars(config map[string]any, env map[string]string) map[string]any {
	result := make(map[string]any, len(config))
	for k, v := range config {
		switch val := v.(type) {
		case string:
			result[k] = substituteString(val, env)
		case map[string]any:
			result[k] = substituteEnvVars(val, env)
		default:
			result[k] = v
		}
	}
	return result
}

// substituteString 替换 ${VAR}；secrets.env 优先，其次系统环境变量，都没有则置空
func substituteString(s string, env map[string]string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return placeholder.ReplaceAllStringFunc(s, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		if v, ok := env[name]; ok {
			return v
		}
		return os.Getenv(name)
	})
}

// GetEnv 获取环境变量，如果未设置则返回默认值
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetConfigEnv 获取配置环境（从环境变量 CONFIG_ENV，默认为 local）
func GetConfigEnv() string {
	return GetEnv("CONFIG_ENV", "local")
}
