package model

import "strings"

// Status 订单状态
type Status string

const (
	StatusPending         Status = "pending"
	StatusProcessing      Status = "processing"
	StatusShipped         Status = "shipped"
	StatusOutForDelivery  Status = "out-for-delivery"
	StatusDelivered       Status = "delivered"
	StatusCancelled       Status = "cancelled"
	StatusReturnPending   Status = "return_pending"
	StatusReturnApproved  Status = "return_approved"
	StatusReturnRejected  Status = "return_rejected"
	StatusReturnCompleted Status = "return_completed"
)

// transitions 合法的状态流转
var transitions = map[Status][]Status{
	StatusPending:         {StatusProcessing, StatusCancelled},
	StatusProcessing:      {StatusShipped, StatusOutForDelivery, StatusCancelled},
	StatusShipped:         {StatusOutForDelivery, StatusDelivered},
	StatusOutForDelivery:  {StatusDelivered},
	StatusDelivered:       {StatusReturnPending},
	StatusReturnPending:   {StatusReturnApproved, StatusReturnRejected},
	StatusReturnApproved:  {StatusReturnCompleted},
	StatusReturnRejected:  {StatusReturnCompleted},
	StatusReturnCompleted: {},
	StatusCancelled:       {},
}

// ParseStatus 解析状态字符串，未知状态返回 false
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	_, ok := transitions[st]
	return st, ok
}

// CanTransitionTo 判断是否允许从当前状态流转到目标状态
func (s Status) CanTransitionTo(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Cancellable 仅待处理与处理中的订单可以取消
func (s Status) Cancellable() bool {
	return s.CanTransitionTo(StatusCancelled)
}

// Terminal 无后续状态
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

func (s Status) String() string { return string(s) }
