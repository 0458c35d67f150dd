package pool

import (
	"fmt"
	"strings"
)

// FaultPolicy はジョブがパニックした際の扱いを表す
type FaultPolicy int

const (
	FaultIsolate FaultPolicy = iota
	FaultRestart
	FaultPropagate
)

func (f FaultPolicy) String() string {
	switch f {
	case FaultIsolate:
		return "isolate"
	case FaultRestart:
		return "restart"
	case FaultPropagate:
		return "propagate"
	default:
		return "unknown"
	}
}

func (f FaultPolicy) valid() bool {
	return f >= FaultIsolate && f <= FaultPropagate
}

// ParseFaultPolicy は文字列からFaultPolicyを解析する
func ParseFaultPolicy(s string) (FaultPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "isolate":
		return FaultIsolate, nil
	case "restart":
		return FaultRestart, nil
	case "propagate", "crash":
		return FaultPropagate, nil
	default:
		return FaultIsolate, fmt.Errorf("unknown fault policy: %q", s)
	}
}
