package models

type DeliveryStatus string

const (
	DeliveryAccepted DeliveryStatus = "accepted"
	DeliveryRejected DeliveryStatus = "rejected"
	DeliveryTimedOut DeliveryStatus = "timed_out"
	DeliverySkipped  DeliveryStatus = "skipped"
)

type DeliveryMode string

const (
	DeliveryBatch   DeliveryMode = "batch"
	DeliveryPerItem DeliveryMode = "per_item"
)

// DeliveryOutcome is the terminal result of delivering one item (or the
// whole batch when batch mode succeeds).
type DeliveryOutcome struct {
	Status     DeliveryStatus `json:"status"`
	HTTPStatus int            `json:"http_status,omitempty"`
	Detail     string         `json:"detail,omitempty"`
}

type DeliverySummary struct {
	Total    int          `json:"total"`
	Accepted int          `json:"accepted"`
	Skipped  int          `json:"skipped"`
	Mode     DeliveryMode `json:"mode"`
}
