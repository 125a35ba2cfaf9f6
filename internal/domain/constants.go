package domain

// OrderStatus is the closed set of payment order states. Transitions are
// performed only through conditional updates in the order repository;
// nothing else writes the status column.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPaid      OrderStatus = "paid"
	OrderCancelled OrderStatus = "cancelled"
	OrderExpired   OrderStatus = "expired"
	OrderRefunded  OrderStatus = "refunded"
)

// Terminal reports whether no further transition can leave this state.
// paid still has the refund edge; everything else past pending is final.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderCancelled, OrderExpired, OrderRefunded:
		return true
	}
	return false
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderPaid, OrderCancelled, OrderExpired, OrderRefunded:
		return true
	}
	return false
}

// PointsCategory classifies a ledger entry by what caused it.
type PointsCategory string

const (
	CategoryPaymentReward   PointsCategory = "payment_reward"
	CategoryMallConsumption PointsCategory = "mall_consumption"
	CategoryAdminAdjust     PointsCategory = "admin_adjust"
	CategoryRefundReversal  PointsCategory = "refund_reversal"
	CategoryExpiredDeduct   PointsCategory = "expired_deduct"
)

func (c PointsCategory) Valid() bool {
	switch c {
	case CategoryPaymentReward, CategoryMallConsumption, CategoryAdminAdjust,
		CategoryRefundReversal, CategoryExpiredDeduct:
		return true
	}
	return false
}

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

const (
	UserActive    = "active"
	UserSuspended = "suspended"
)

const (
	MerchantActive   = "active"
	MerchantPending  = "pending"
	MerchantDisabled = "disabled"
)
