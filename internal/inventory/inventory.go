package inventory

import (
	"errors"
	"fmt"
	"maps"
	"sync"

	"factory-cell-controller/internal/types"
)

// ErrOutOfStock 表示该颜色已无可用坯料
var ErrOutOfStock = errors.New("out of stock")

// DefaultPreset 返回默认库存分布：仓库 3x3 货位，每种颜色一行
func DefaultPreset() map[types.Color]int {
	return map[types.Color]int{
		types.ColorWhite: 3,
		types.ColorRed:   3,
		types.ColorBlue:  3,
	}
}

// Inventory 记录各颜色坯料的可用数量，数量始终 >= 0
type Inventory struct {
	mu     sync.Mutex
	counts map[types.Color]int
	preset map[types.Color]int
}

// New 按预设分布创建库存，负数按 0 处理
func New(preset map[types.Color]int) *Inventory {
	p := make(map[types.Color]int, len(preset))
	for c, n := range preset {
		p[c] = max(n, 0)
	}
	inv := &Inventory{preset: p}
	inv.Preset()
	return inv
}

// Preset 把库存重置为预设分布
func (inv *Inventory) Preset() {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.counts = maps.Clone(inv.preset)
}

// Available 返回某颜色的可用数量
func (inv *Inventory) Available(c types.Color) int {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.counts[c]
}

// Satisfies 判断任务需要的库存属性当前是否满足
func (inv *Inventory) Satisfies(job *types.Job) bool {
	return inv.Available(job.Color) > 0
}

// Take 为任务消耗一个坯料
func (inv *Inventory) Take(c types.Color) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.counts[c] <= 0 {
		return fmt.Errorf("%s: %w", c, ErrOutOfStock)
	}
	inv.counts[c]--
	return nil
}

// Snapshot 返回当前库存的副本
func (inv *Inventory) Snapshot() map[types.Color]int {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return maps.Clone(inv.counts)
}
