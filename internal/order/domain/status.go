package domain

type OrderStatus string

const (
	StatusCreated                  OrderStatus = "Created"
	StatusPaid                     OrderStatus = "Paid"
	StatusPendingFFL               OrderStatus = "Pending FFL"
	StatusMultiFirearmHold         OrderStatus = "Multi-Firearm Hold"
	StatusProcessing               OrderStatus = "Processing"
	StatusManualProcessingRequired OrderStatus = "Manual Processing Required"
	StatusReadyToFulfill           OrderStatus = "Ready To Fulfill"
	StatusShipped                  OrderStatus = "Shipped"
	StatusDelivered                OrderStatus = "Delivered"
	StatusRejected                 OrderStatus = "Rejected"
	StatusCancelled                OrderStatus = "Cancelled"
)

type HoldReason string

const (
	HoldReasonNone         HoldReason = ""
	HoldReasonFFL          HoldReason = "FFL"
	HoldReasonMultiFirearm HoldReason = "MultiFirearm"
)

type FFLStatus string

const (
	FFLStatusMissing             FFLStatus = "Missing"
	FFLStatusPendingVerification FFLStatus = "Pending Verification"
	FFLStatusVerified            FFLStatus = "Verified"
)

// transitions is the full order lifecycle. No transition returns to Created
// and no transition removes a row.
var transitions = map[OrderStatus][]OrderStatus{
	StatusCreated:                  {StatusPaid, StatusPendingFFL, StatusMultiFirearmHold, StatusRejected},
	StatusPaid:                     {StatusProcessing, StatusManualProcessingRequired, StatusCancelled},
	StatusPendingFFL:               {StatusReadyToFulfill, StatusCancelled},
	StatusMultiFirearmHold:         {StatusReadyToFulfill, StatusCancelled},
	StatusProcessing:               {StatusShipped, StatusCancelled},
	StatusManualProcessingRequired: {StatusProcessing, StatusShipped, StatusCancelled},
	StatusReadyToFulfill:           {StatusShipped, StatusCancelled},
	StatusShipped:                  {StatusDelivered},
}

func CanTransition(from, to OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsHold reports whether the status blocks fulfillment pending a compliance
// condition. HoldReason must be non-empty iff the status is a hold state.
func (s OrderStatus) IsHold() bool {
	return s == StatusPendingFFL || s == StatusMultiFirearmHold
}

// WindowQualifyingStatuses are the order states whose firearm lines count
// toward the rolling purchase window.
var WindowQualifyingStatuses = []OrderStatus{
	StatusPaid,
	StatusPendingFFL,
	StatusReadyToFulfill,
	StatusShipped,
}
