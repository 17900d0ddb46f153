//go:build unix

package fsx

import (
	"errors"
	"os"
	"syscall"
)

// isEXDEV 识别 rename 返回的跨盘错误（裸 errno 或包在 *os.LinkError 里）。
// 缓存目录与 runs/ 目录被单独挂载时，临时文件与目标仍同目录，理论上不会触发。
func isEXDEV(err error) bool {
	var le *os.LinkError
	if errors.As(err, &le) {
		err = le.Err
	}
	return errors.Is(err, syscall.EXDEV)
}
