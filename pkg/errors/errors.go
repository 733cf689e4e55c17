package errors

import "errors"

// ErrCacheConflict 唯一键冲突：同一 (date, group_key, algorithm_version) 已被其他计算写入
var ErrCacheConflict = errors.New("班次估算已存在，跳过写入")
