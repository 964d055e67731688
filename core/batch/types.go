package batch

import (
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	StatusPending            Status = "Pending"
	StatusProcessing         Status = "Processing"
	StatusCompleted          Status = "Completed"
	StatusFailed             Status = "Failed"
	StatusPartiallyCompleted Status = "Partially Completed"
)

type Type string

const (
	TypePayment        Type = "Payment"
	TypeRefund         Type = "Refund"
	TypeTransfer       Type = "Transfer"
	TypeCardIssuance   Type = "Card Issuance"
	TypeCustomerImport Type = "Customer Import"
	TypeMerchantImport Type = "Merchant Import"
)

// Item-level statuses reuse the job labels that apply to single items.
const (
	ItemPending   = "Pending"
	ItemCompleted = "Completed"
	ItemFailed    = "Failed"
)

var allStatuses = []Status{
	StatusPending, StatusProcessing, StatusCompleted,
	StatusFailed, StatusPartiallyCompleted,
}

var allTypes = []Type{
	TypePayment, TypeRefund, TypeTransfer,
	TypeCardIssuance, TypeCustomerImport, TypeMerchantImport,
}

func AllTypes() []Type {
	out := make([]Type, len(allTypes))
	copy(out, allTypes)
	return out
}

func ParseStatus(raw string) (Status, error) {
	for _, s := range allStatuses {
		if strings.EqualFold(string(s), strings.TrimSpace(raw)) {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown batch status: %s", raw)
}

func ParseType(raw string) (Type, error) {
	for _, t := range allTypes {
		if strings.EqualFold(string(t), strings.TrimSpace(raw)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown batch type: %s", raw)
}

// Item is one unit of work inside a job. Data carries the domain payload;
// the rest is bookkeeping filled in as the item is processed.
type Item struct {
	ID           string         `json:"id"`
	Data         map[string]any `json:"data"`
	Status       string         `json:"status"`
	ErrorMessage string         `json:"error_message"`
	ProcessedAt  *time.Time     `json:"processed_at,omitempty"`
}

type Job struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Type        Type           `json:"batch_type"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Items       []*Item        `json:"items"`

	Status          Status     `json:"status"`
	TotalItems      int        `json:"total_items"`
	ProcessedItems  int        `json:"processed_items"`
	SuccessfulItems int        `json:"successful_items"`
	FailedItems     int        `json:"failed_items"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Progress reports percent of items processed. An empty job is complete by
// definition.
func (j *Job) Progress() float64 {
	if j.TotalItems == 0 {
		return 100.0
	}
	return float64(j.ProcessedItems) / float64(j.TotalItems) * 100.0
}

func (j *Job) Terminal() bool {
	switch j.Status {
	case StatusCompleted, StatusFailed, StatusPartiallyCompleted:
		return true
	}
	return false
}

// Result is what a processor reports for one item. Output keys are merged
// into the item payload on success so exports carry them.
type Result struct {
	Success bool
	Error   string
	Output  map[string]any
}

// ProcessorFunc handles a single item's payload. A panic inside the
// processor fails the item, not the job.
type ProcessorFunc func(data map[string]any, batchType Type) Result
