package station

import (
	"factory-cell-controller/internal/types"
)

// Station 定义工站接口
// 每个工站是一组静态声明的位/寄存器加上语义化的方法
type Station interface {
	GetID() types.StationID
}

// Readier 由带就绪位的工站实现
type Readier interface {
	Station
	IsReady() (bool, error)
}

// ReadyState 逐个读取工站的就绪位，遇到第一个错误即返回
func ReadyState(stations ...Readier) (map[types.StationID]bool, error) {
	out := make(map[types.StationID]bool, len(stations))
	for _, s := range stations {
		ready, err := s.IsReady()
		if err != nil {
			return out, err
		}
		out[s.GetID()] = ready
	}
	return out, nil
}
