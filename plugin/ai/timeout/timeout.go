// Package timeout defines centralized timeout constants for booking operations.
// Package timeout 定义预订操作的集中式超时常量。
package timeout

import "time"

// Booking operation timeout constants.
// 预订操作超时常量。
const (
	// BackendCallTimeout is the timeout for a single calendar backend call.
	// BackendCallTimeout 是单次日历后端调用的超时时间。
	BackendCallTimeout = 30 * time.Second

	// OracleTimeout is the timeout for one interpretation request to the language oracle.
	// OracleTimeout 是语言理解服务单次解析的超时时间。
	OracleTimeout = 20 * time.Second

	// RetryBackoff is the delay before the single retry of a transient backend failure.
	// RetryBackoff 是后端瞬时错误重试前的等待时间。
	RetryBackoff = 500 * time.Millisecond

	// SessionLockTimeout bounds how long a turn waits for its conversation lock.
	// SessionLockTimeout 是等待会话锁的最长时间。
	SessionLockTimeout = 45 * time.Second

	// HTTPShutdownTimeout is the grace period for in-flight HTTP requests on shutdown.
	HTTPShutdownTimeout = 10 * time.Second

	// MaxTruncateLength is the maximum length for truncating strings in logs.
	// MaxTruncateLength 是日志中字符串截断的最大长度。
	MaxTruncateLength = 200
)
