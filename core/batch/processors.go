package batch

import (
	"fmt"
	"hash/fnv"
	"strconv"
)

// Default processors for the built-in batch types. They validate the item
// payload and simulate the downstream call; real deployments replace them
// via RegisterProcessor.
func registerDefaultProcessors(e *Engine) {
	e.processors[TypePayment] = processPayment
	e.processors[TypeRefund] = processRefund
	e.processors[TypeTransfer] = processTransfer
	e.processors[TypeCardIssuance] = processCardIssuance
	e.processors[TypeCustomerImport] = processCustomerImport
	e.processors[TypeMerchantImport] = processMerchantImport
}

func processPayment(data map[string]any, _ Type) Result {
	if res, ok := requireFields(data, "amount", "card_number", "expiry", "cvv"); !ok {
		return res
	}
	amount, err := toFloat(data["amount"])
	if err != nil || amount <= 0 {
		return Result{Error: "Invalid amount"}
	}
	if declined(data["card_number"], 10) {
		return Result{Error: "Payment declined"}
	}
	return Result{Success: true, Output: map[string]any{"transaction_id": newID()}}
}

func processRefund(data map[string]any, _ Type) Result {
	if res, ok := requireFields(data, "transaction_id", "amount"); !ok {
		return res
	}
	if declined(data["transaction_id"], 20) {
		return Result{Error: "Refund failed"}
	}
	return Result{Success: true, Output: map[string]any{"refund_id": newID()}}
}

func processTransfer(data map[string]any, _ Type) Result {
	if res, ok := requireFields(data, "source_account", "destination_account", "amount"); !ok {
		return res
	}
	if declined(data["source_account"], 12) {
		return Result{Error: "Transfer failed"}
	}
	return Result{Success: true, Output: map[string]any{"transfer_id": newID()}}
}

func processCardIssuance(data map[string]any, _ Type) Result {
	if res, ok := requireFields(data, "customer_id", "card_type"); !ok {
		return res
	}
	if declined(data["customer_id"], 50) {
		return Result{Error: "Card issuance failed"}
	}
	return Result{Success: true, Output: map[string]any{"card_id": newID()}}
}

func processCustomerImport(data map[string]any, _ Type) Result {
	if res, ok := requireFields(data, "first_name", "last_name", "email"); !ok {
		return res
	}
	if declined(data["email"], 25) {
		return Result{Error: "Customer import failed"}
	}
	return Result{Success: true, Output: map[string]any{"customer_id": newID()}}
}

func processMerchantImport(data map[string]any, _ Type) Result {
	if res, ok := requireFields(data, "name", "category", "contact_email"); !ok {
		return res
	}
	if declined(data["name"], 16) {
		return Result{Error: "Merchant import failed"}
	}
	return Result{Success: true, Output: map[string]any{"merchant_id": newID()}}
}

func requireFields(data map[string]any, fields ...string) (Result, bool) {
	for _, f := range fields {
		if _, ok := data[f]; !ok {
			return Result{Error: fmt.Sprintf("Missing required field: %s", f)}, false
		}
	}
	return Result{}, true
}

// declined simulates a downstream failure deterministically: roughly one
// item per mod bucket is rejected, keyed on a stable payload field.
func declined(key any, mod uint32) bool {
	h := fnv.New32a()
	fmt.Fprintf(h, "%v", key)
	return h.Sum32()%mod == 0
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(n, 64)
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}
