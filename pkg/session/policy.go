package session

import (
	"strings"

	"github.com/teslashibe/go-fivestars/pkg/catalog"
	"github.com/teslashibe/go-fivestars/pkg/conversation"
	"github.com/teslashibe/go-fivestars/pkg/order"
)

// Signal carries structured output seen so far in the conversation.
type Signal struct {
	// Call is the most recent tool call, if any.
	Call *conversation.ToolCall
}

// CompletionPolicy decides whether the order is complete. Implementations
// must be pure: the same transcript and signal always give the same answer.
type CompletionPolicy interface {
	Complete(t conversation.Transcript, sig Signal) bool
}

// PolicyFunc adapts a function to CompletionPolicy.
type PolicyFunc func(t conversation.Transcript, sig Signal) bool

// Complete implements CompletionPolicy.
func (f PolicyFunc) Complete(t conversation.Transcript, sig Signal) bool {
	return f(t, sig)
}

// ToolCallPolicy completes once the model called the named tool.
type ToolCallPolicy struct {
	Name string
}

// Complete implements CompletionPolicy.
func (p ToolCallPolicy) Complete(_ conversation.Transcript, sig Signal) bool {
	return sig.Call != nil && sig.Call.Name == p.Name
}

// SummaryPolicy completes when the latest turn is an agent utterance that
// names at least one catalog item, states "total ... $N.NN" within one
// sentence and asks no question anywhere.
type SummaryPolicy struct {
	Catalog *catalog.Catalog
}

// Complete implements CompletionPolicy.
func (p SummaryPolicy) Complete(t conversation.Transcript, _ Signal) bool {
	if len(t) == 0 {
		return false
	}
	last := t[len(t)-1]
	if last.Role != conversation.RoleAgent {
		return false
	}
	return IsOrderSummary(p.Catalog, last.Content)
}

// IsOrderSummary applies the summary rule to one utterance.
func IsOrderSummary(cat *catalog.Catalog, text string) bool {
	if cat == nil || strings.ContainsAny(text, "?¿") || !cat.MentionsItem(text) {
		return false
	}
	_, _, ok := order.TotalIndex(text)
	return ok
}

// AnyOf completes when any of the policies does.
func AnyOf(policies ...CompletionPolicy) CompletionPolicy {
	return PolicyFunc(func(t conversation.Transcript, sig Signal) bool {
		for _, p := range policies {
			if p.Complete(t, sig) {
				return true
			}
		}
		return false
	})
}

// DefaultPolicy accepts either the submit_order tool call or a spoken
// summary with a total.
func DefaultPolicy(cat *catalog.Catalog) CompletionPolicy {
	return AnyOf(ToolCallPolicy{Name: order.SubmitToolName}, SummaryPolicy{Catalog: cat})
}
