package utils

import "github.com/google/uuid"

// IsUUID 校验标准 36 位 UUID 文本，主键列为 uuid 类型，非法值直接送入数据库会报错
func IsUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
