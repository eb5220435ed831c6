package order

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"go.temporal.io/sdk/client"

	"github.com/teslashibe/go-fivestars/internal/httpc"
)

// Dispatcher hands a completed order to fulfillment.
type Dispatcher interface {
	Submit(ctx context.Context, o Order) (Ack, error)
}

// DispatchError wraps a sink failure.
type DispatchError struct {
	Sink    string
	OrderID string
	Cause   error
}

// Error implements the error interface.
func (e *DispatchError) Error() string {
	return fmt.Sprintf("order: dispatch %s via %s: %v", e.OrderID, e.Sink, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *DispatchError) Unwrap() error {
	return e.Cause
}

// Is makes every DispatchError match ErrDispatch.
func (e *DispatchError) Is(target error) bool {
	return target == ErrDispatch
}

// LogSink writes orders to the log. It never fails.
type LogSink struct {
	Logger *slog.Logger
}

// Submit implements Dispatcher.
func (s LogSink) Submit(ctx context.Context, o Order) (Ack, error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lines := make([]string, len(o.Items))
	for i, li := range o.Items {
		lines[i] = li.String()
	}
	logger.Info("order submitted",
		"order_id", o.ID,
		"session", o.SessionID,
		"customer", o.Customer.Name,
		"items", strings.Join(lines, "; "),
		"coupon", o.Coupon,
		"total", o.Total.String(),
	)
	return Ack{OrderID: o.ID, Sink: "log"}, nil
}

// WebhookSink POSTs the order as JSON.
type WebhookSink struct {
	URL    string
	Header http.Header
	Client *http.Client
}

// Submit implements Dispatcher. Non-2xx responses are errors.
func (s WebhookSink) Submit(ctx context.Context, o Order) (Ack, error) {
	body, err := json.Marshal(o)
	if err != nil {
		return Ack{}, &DispatchError{Sink: "webhook", OrderID: o.ID, Cause: err}
	}

	resp, err := httpc.PostJSON(ctx, s.Client, s.URL, body, s.Header)
	if err != nil {
		return Ack{}, &DispatchError{Sink: "webhook", OrderID: o.ID, Cause: err}
	}
	defer resp.Body.Close()

	ref, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Ack{}, &DispatchError{
			Sink:    "webhook",
			OrderID: o.ID,
			Cause:   fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(ref))),
		}
	}
	return Ack{OrderID: o.ID, Sink: "webhook", Reference: strings.TrimSpace(string(ref))}, nil
}

// FulfillWorkflow is the workflow type started for each order.
const FulfillWorkflow = "FulfillOrder"

// WorkflowStarter is the part of client.Client the Temporal sink needs.
type WorkflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

// TemporalSink starts a FulfillOrder workflow per order.
type TemporalSink struct {
	Client    WorkflowStarter
	TaskQueue string
}

// DialTemporal connects to a Temporal frontend.
func DialTemporal(hostPort, namespace string) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  hostPort,
		Namespace: namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("order: dial temporal %s: %w", hostPort, err)
	}
	return c, nil
}

// Submit implements Dispatcher. The workflow ID is derived from the order
// ID so a resubmitted order does not start a second workflow.
func (s TemporalSink) Submit(ctx context.Context, o Order) (Ack, error) {
	opts := client.StartWorkflowOptions{
		ID:        "order-" + o.ID,
		TaskQueue: s.TaskQueue,
	}
	we, err := s.Client.ExecuteWorkflow(ctx, opts, FulfillWorkflow, o)
	if err != nil {
		return Ack{}, &DispatchError{Sink: "temporal", OrderID: o.ID, Cause: err}
	}
	return Ack{OrderID: o.ID, Sink: "temporal", Reference: we.GetID(), RunID: we.GetRunID()}, nil
}

// Ensure the sinks satisfy Dispatcher.
var (
	_ Dispatcher = LogSink{}
	_ Dispatcher = WebhookSink{}
	_ Dispatcher = TemporalSink{}
	_ Dispatcher = (*Recorder)(nil)
)
