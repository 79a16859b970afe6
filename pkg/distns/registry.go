package distns

import (
	"fmt"
	"sort"
	"sync"
)

var (
	// registered 已注册的分布（名称 -> 分布）
	registered   = make(map[string]Distribution)
	registeredMu sync.RWMutex
)

func init() {
	Register(NormalName, NewNormal(nil, nil))
}

// Register 注册分布类型
// 分布应该在 init() 函数中调用此函数进行注册，重复注册会 panic
func Register(name string, d Distribution) {
	registeredMu.Lock()
	defer registeredMu.Unlock()

	if _, exists := registered[name]; exists {
		panic(fmt.Errorf("distribution %s already registered", name))
	}
	registered[name] = d
}

// Lookup 获取已注册的分布
func Lookup(name string) (Distribution, error) {
	registeredMu.RLock()
	defer registeredMu.RUnlock()

	d, exists := registered[name]
	if !exists {
		return nil, fmt.Errorf("distribution %s not found", name)
	}
	return d, nil
}

// Names 列出所有已注册的分布名称（已排序）
func Names() []string {
	registeredMu.RLock()
	defer registeredMu.RUnlock()

	names := make([]string, 0, len(registered))
	for name := range registered {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ScoreFor 按名称查找分布支持的评分规则
func ScoreFor(d Distribution, name string) (Score, error) {
	for _, s := range d.Scores() {
		if s.Name() == name {
			return s, nil
		}
	}
	return nil, fmt.Errorf("distribution %s does not implement score %s", d.Name(), name)
}

// ScorerFor 与 ScoreFor 相同，但要求评分规则提供评分值与梯度
func ScorerFor(d Distribution, name string) (Scorer, error) {
	s, err := ScoreFor(d, name)
	if err != nil {
		return nil, err
	}
	sc, ok := s.(Scorer)
	if !ok {
		return nil, fmt.Errorf("score %s of %s has no gradient", name, d.Name())
	}
	return sc, nil
}
