package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"workpool/internal/logger"
	"workpool/internal/pool"
	"workpool/internal/scenario"
)

// FileConfig は設定ファイルの構造
type FileConfig struct {
	Pool     PoolConfig     `yaml:"pool" json:"pool" envPrefix:"POOL_"`
	Log      LogConfig      `yaml:"log" json:"log" envPrefix:"LOG_"`
	Scenario ScenarioConfig `yaml:"scenario" json:"scenario" envPrefix:"SCENARIO_"`
	Server   ServerConfig   `yaml:"server" json:"server" envPrefix:"SERVER_"`
}

// PoolConfig はワーカープール設定
type PoolConfig struct {
	Name        string `yaml:"name" json:"name" env:"NAME"`
	Size        int    `yaml:"size" json:"size" env:"SIZE"`
	FaultPolicy string `yaml:"fault_policy" json:"fault_policy" env:"FAULT_POLICY"`
}

// LogConfig はログ設定
type LogConfig struct {
	Level string `yaml:"level" json:"level" env:"LEVEL"`
}

// ScenarioConfig は負荷シナリオ設定
type ScenarioConfig struct {
	Preset      string  `yaml:"preset" json:"preset" env:"PRESET"`
	Jobs        int     `yaml:"jobs" json:"jobs" env:"JOBS"`
	Producers   int     `yaml:"producers" json:"producers" env:"PRODUCERS"`
	Interval    string  `yaml:"interval" json:"interval" env:"INTERVAL"`
	JobDuration string  `yaml:"job_duration" json:"job_duration" env:"JOB_DURATION"`
	Jitter      float64 `yaml:"jitter" json:"jitter" env:"JITTER"`
	PanicEvery  int     `yaml:"panic_every" json:"panic_every" env:"PANIC_EVERY"`
}

// ServerConfig はAPIサーバー設定
type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr" env:"ADDR"`
}

// envPrefix は環境変数の共通接頭辞
const envPrefix = "WORKPOOL_"

// Default はデフォルト設定を返す
func Default() *FileConfig {
	return &FileConfig{
		Log:    LogConfig{Level: "info"},
		Server: ServerConfig{Addr: ":8080"},
	}
}

// Load は設定ファイル（空なら省略）を読み込み、環境変数で上書きする
func Load(path string) (*FileConfig, error) {
	config := Default()

	if path != "" {
		fc, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		config.merge(fc)
	}

	if err := env.ParseWithOptions(config, env.Options{Prefix: envPrefix}); err != nil {
		return nil, errors.Wrap(err, "parse env")
	}

	return config, nil
}

// LoadEnvFile は .env 形式のファイルを環境変数として読み込む
// 既に設定されている環境変数は上書きしない
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		return errors.Wrapf(err, "load env file %s", path)
	}
	return nil
}

// LoadFile は設定ファイルを読み込む
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config file")
	}

	var config FileConfig
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, errors.Wrap(err, "parse YAML")
		}
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, errors.Wrap(err, "parse JSON")
		}
	default:
		return nil, errors.Errorf("unsupported config format: %s", ext)
	}

	return &config, nil
}

// merge は空でない値だけを上書きする
func (f *FileConfig) merge(o *FileConfig) {
	if o.Pool.Name != "" {
		f.Pool.Name = o.Pool.Name
	}
	if o.Pool.Size != 0 {
		f.Pool.Size = o.Pool.Size
	}
	if o.Pool.FaultPolicy != "" {
		f.Pool.FaultPolicy = o.Pool.FaultPolicy
	}
	if o.Log.Level != "" {
		f.Log.Level = o.Log.Level
	}
	if o.Server.Addr != "" {
		f.Server.Addr = o.Server.Addr
	}
	f.Scenario = o.Scenario
}

// Validate は設定を検証する。すべての問題をまとめて返す
func (f *FileConfig) Validate() error {
	var err error

	if f.Pool.Size < 0 {
		err = multierr.Append(err, fmt.Errorf("pool.size must be non-negative"))
	}
	if _, perr := pool.ParseFaultPolicy(f.Pool.FaultPolicy); perr != nil {
		err = multierr.Append(err, perr)
	}
	if _, lerr := logger.ParseLevel(f.Log.Level); lerr != nil {
		err = multierr.Append(err, lerr)
	}

	sc := f.Scenario
	if sc.Jobs < 0 {
		err = multierr.Append(err, fmt.Errorf("scenario.jobs must be non-negative"))
	}
	if sc.Producers < 0 {
		err = multierr.Append(err, fmt.Errorf("scenario.producers must be non-negative"))
	}
	if sc.PanicEvery < 0 {
		err = multierr.Append(err, fmt.Errorf("scenario.panic_every must be non-negative"))
	}
	if sc.Jitter < 0 || sc.Jitter > 1 {
		err = multierr.Append(err, fmt.Errorf("scenario.jitter must be between 0 and 1"))
	}
	if sc.JobDuration != "" {
		if _, derr := time.ParseDuration(sc.JobDuration); derr != nil {
			err = multierr.Append(err, errors.Wrap(derr, "scenario.job_duration"))
		}
	}
	if sc.Interval != "" {
		if _, derr := time.ParseDuration(sc.Interval); derr != nil {
			err = multierr.Append(err, errors.Wrap(derr, "scenario.interval"))
		}
	}
	if sc.Preset != "" {
		if _, ok := scenario.GetPreset(sc.Preset); !ok {
			err = multierr.Append(err, fmt.Errorf("unknown preset: %s", sc.Preset))
		}
	}

	return err
}

// LogLevel はログレベルを返す
func (f *FileConfig) LogLevel() (logger.Level, error) {
	return logger.ParseLevel(f.Log.Level)
}

// ToPoolConfig はFileConfigをpool.Configに変換する
// Size が 0 の場合は pool.DefaultConfig の値を使う
func (f *FileConfig) ToPoolConfig() (pool.Config, error) {
	config := pool.DefaultConfig()

	if f.Pool.Name != "" {
		config.Name = f.Pool.Name
	}
	if f.Pool.Size > 0 {
		config.Size = f.Pool.Size
	}

	policy, err := pool.ParseFaultPolicy(f.Pool.FaultPolicy)
	if err != nil {
		return config, err
	}
	config.FaultPolicy = policy

	return config, nil
}

// ToScenarioConfig はFileConfigをscenario.Configに変換する
func (f *FileConfig) ToScenarioConfig() (scenario.Config, error) {
	sc := f.Scenario

	config := scenario.DefaultConfig()
	if sc.Preset != "" {
		preset, ok := scenario.GetPreset(sc.Preset)
		if !ok {
			return config, fmt.Errorf("unknown preset: %s", sc.Preset)
		}
		config = preset
	}

	// pool セクションは指定された項目だけがプリセットを上書きする
	pc, err := f.ToPoolConfig()
	if err != nil {
		return config, errors.Wrap(err, "invalid pool section")
	}
	if f.Pool.Name != "" {
		config.PoolName = pc.Name
	}
	if f.Pool.Size > 0 {
		config.Workers = pc.Size
	}
	if f.Pool.FaultPolicy != "" {
		config.FaultPolicy = pc.FaultPolicy
	}
	if sc.Jobs > 0 {
		config.Jobs = sc.Jobs
	}
	if sc.Producers > 0 {
		config.Producers = sc.Producers
	}
	if sc.JobDuration != "" {
		d, err := time.ParseDuration(sc.JobDuration)
		if err != nil {
			return config, errors.Wrap(err, "invalid job duration")
		}
		config.JobDuration = d
	}
	if sc.Interval != "" {
		d, err := time.ParseDuration(sc.Interval)
		if err != nil {
			return config, errors.Wrap(err, "invalid interval")
		}
		config.Interval = d
	}
	if sc.Jitter > 0 {
		config.Jitter = sc.Jitter
	}
	if sc.PanicEvery > 0 {
		config.PanicEvery = sc.PanicEvery
	}

	return config, nil
}
