package order

import (
	"encoding/json"
	"strings"

	"github.com/teslashibe/go-fivestars/pkg/conversation"
)

// SubmitToolName is the function the model calls once the customer has
// confirmed the order.
const SubmitToolName = "submit_order"

// SubmitTool describes submit_order to the model.
func SubmitTool() conversation.Tool {
	return conversation.Tool{
		Name:        SubmitToolName,
		Description: "Submit the confirmed order after the customer agreed to the itemized summary and total.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"customer_name":  map[string]any{"type": "string"},
				"address":        map[string]any{"type": "string"},
				"phone":          map[string]any{"type": "string"},
				"payment_method": map[string]any{"type": "string", "enum": []string{"cash", "card"}},
				"coupon":         map[string]any{"type": "string", "description": "Coupon code, if one was applied."},
				"items": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"name":     map[string]any{"type": "string", "description": "Menu item name exactly as listed."},
							"size":     map[string]any{"type": "string", "description": `Size such as 16" or 2L. Empty for single-price items.`},
							"quantity": map[string]any{"type": "integer", "minimum": 1},
							"toppings": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
							"options":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
						},
						"required": []string{"name", "quantity"},
					},
				},
			},
			"required": []string{"items"},
		},
	}
}

// SubmitArgs is the decoded submit_order payload.
type SubmitArgs struct {
	CustomerName  string       `json:"customer_name"`
	Address       string       `json:"address"`
	Phone         string       `json:"phone"`
	PaymentMethod string       `json:"payment_method"`
	Coupon        string       `json:"coupon"`
	Items         []SubmitItem `json:"items"`
}

// SubmitItem is one item of a submit_order call.
type SubmitItem struct {
	Name     string   `json:"name"`
	Size     string   `json:"size"`
	Quantity int      `json:"quantity"`
	Toppings []string `json:"toppings"`
	Options  []string `json:"options"`
}

// ParseSubmitArgs decodes the arguments of a submit_order call.
func ParseSubmitArgs(call *conversation.ToolCall) (SubmitArgs, error) {
	var args SubmitArgs
	raw := strings.TrimSpace(call.Arguments)
	if raw == "" && call.Args != nil {
		b, err := json.Marshal(call.Args)
		if err != nil {
			return args, extractionErr("invalid tool arguments", "", err)
		}
		raw = string(b)
	}
	if raw == "" {
		return args, extractionErr("empty tool arguments", "", nil)
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return args, extractionErr("invalid tool arguments", "", err)
	}
	return args, nil
}
