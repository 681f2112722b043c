package service

import (
	"errors"
	"fmt"
	"math"

	"lms_backend/internal/util"

	"gorm.io/gorm"
)

// lookupErr 记录不存在映射为 NotFound，其余错误原样包装
func lookupErr(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return util.NotFoundf("%s not found", what)
	}
	return fmt.Errorf("load %s: %w", what, err)
}

func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
