package contract

import "errors"

// 最小错误分类（哨兵；用于上层策略判定，不做字符串匹配）。
var (
	// ErrConfig: 运行前配置违例（分块/重叠尺寸非法、未注册组件等）。致命，处理开始前终止。
	ErrConfig = errors.New("config invalid")
	// ErrUnknownLens: 目录中不存在的 lens 名称（属配置错误类）。
	ErrUnknownLens = errors.New("unknown lens")
	// ErrInvalidInput: 输入违例（通用哨兵）。
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvariantViolation: 领域不变量违例（通用哨兵）。
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrPathInvalid: 目标标识映射为无效/越界路径（例如绝对路径或 '..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
)
