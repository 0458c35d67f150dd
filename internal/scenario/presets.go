package scenario

import (
	"time"

	"workpool/internal/pool"
)

// QuickScenario はクイックテスト用シナリオを返す
// 短時間での動作確認用
func QuickScenario() Config {
	return Config{
		Name:        "quick",
		Description: "Quick verification run without faults",
		Workers:     4,
		FaultPolicy: pool.FaultIsolate,
		Jobs:        200,
		Producers:   2,
		JobDuration: time.Millisecond,
		Jitter:      0.2,
	}
}

// StressScenario は高負荷シナリオを返す
// 多数のプロデューサーから短いジョブを大量に投入する
func StressScenario() Config {
	return Config{
		Name:        "stress",
		Description: "High volume of short jobs from many producers",
		Workers:     16,
		FaultPolicy: pool.FaultIsolate,
		Jobs:        100000,
		Producers:   32,
		JobDuration: 50 * time.Microsecond,
		Jitter:      0.5,
	}
}

// FaultyScenario はパニック注入シナリオを返す
// パニックはジョブ単位で隔離され、ワーカーは生き続ける
func FaultyScenario() Config {
	return Config{
		Name:        "faulty",
		Description: "Panicking jobs isolated inside their workers",
		Workers:     4,
		FaultPolicy: pool.FaultIsolate,
		Jobs:        1000,
		Producers:   4,
		JobDuration: 500 * time.Microsecond,
		Jitter:      0.3,
		PanicEvery:  10,
	}
}

// RestartScenario はワーカー再起動シナリオを返す
// パニックしたワーカーは終了し、同じIDで再起動される
func RestartScenario() Config {
	return Config{
		Name:        "restart",
		Description: "Panicking jobs make their worker restart",
		Workers:     4,
		FaultPolicy: pool.FaultRestart,
		Jobs:        1000,
		Producers:   4,
		JobDuration: 500 * time.Microsecond,
		Jitter:      0.3,
		PanicEvery:  25,
	}
}

// SerialScenario は単一ワーカーのシナリオを返す
// ジョブは投入順に1件ずつ実行される
func SerialScenario() Config {
	return Config{
		Name:        "serial",
		Description: "Single worker executing jobs one at a time",
		Workers:     1,
		FaultPolicy: pool.FaultIsolate,
		Jobs:        100,
		Producers:   1,
		JobDuration: time.Millisecond,
	}
}

var presets = map[string]func() Config{
	"quick":   QuickScenario,
	"stress":  StressScenario,
	"faulty":  FaultyScenario,
	"restart": RestartScenario,
	"serial":  SerialScenario,
}

// GetPreset は名前からプリセットシナリオを取得する
func GetPreset(name string) (Config, bool) {
	if fn, ok := presets[name]; ok {
		return fn(), true
	}
	return Config{}, false
}

// ListPresets は利用可能なプリセット名を返す
func ListPresets() []string {
	return []string{"quick", "stress", "faulty", "restart", "serial"}
}

// PresetInfo はプリセットの概要
type PresetInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Workers     int    `json:"workers"`
	Jobs        int    `json:"jobs"`
	FaultPolicy string `json:"fault_policy"`
}

// Presets はすべてのプリセットの概要を返す
func Presets() []PresetInfo {
	names := ListPresets()
	infos := make([]PresetInfo, 0, len(names))
	for _, name := range names {
		c, _ := GetPreset(name)
		infos = append(infos, PresetInfo{
			Name:        c.Name,
			Description: c.Description,
			Workers:     c.Workers,
			Jobs:        c.Jobs,
			FaultPolicy: c.FaultPolicy.String(),
		})
	}
	return infos
}
