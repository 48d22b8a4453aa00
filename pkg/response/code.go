package response

// 业务状态码
const (
	CodeSuccess = 0
	CodeError   = 1

	// 用户模块错误 100xx
	ErrUserNotFound = 10002
	ErrTokenInvalid = 10004
	ErrNoPermission = 10005

	// 优惠券模块错误 200xx
	ErrCouponNotFound = 20001
	ErrCouponInvalid  = 20004

	// 订单模块错误 300xx
	ErrOrderNotFound     = 30001
	ErrOrderConflict     = 30002
	ErrOrderBusinessRule = 30003
	ErrShippingFailed    = 30004

	// 系统错误 500xx
	ErrServerInternal  = 50001
	ErrInvalidParam    = 50002
	ErrTooManyRequests = 50003
	ErrNotFound        = 50004
)
