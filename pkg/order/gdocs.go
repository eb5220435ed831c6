package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/docs/v1"
	"google.golang.org/api/option"
)

// ErrNoGoogleToken indicates the Docs sink has no stored OAuth token.
var ErrNoGoogleToken = errors.New("order: no google token, authorize the store account first")

// DocAppender appends text to the end of a document and returns the
// document revision after the write.
type DocAppender interface {
	AppendText(ctx context.Context, docID, text string) (string, error)
}

// GoogleDocsSink appends a ticket per order to a shared Google Doc that
// the kitchen keeps open.
type GoogleDocsSink struct {
	Docs  DocAppender
	DocID string
}

// Submit implements Dispatcher.
func (s GoogleDocsSink) Submit(ctx context.Context, o Order) (Ack, error) {
	if _, err := s.Docs.AppendText(ctx, s.DocID, Ticket(o)); err != nil {
		return Ack{}, &DispatchError{Sink: "gdocs", OrderID: o.ID, Cause: err}
	}
	return Ack{OrderID: o.ID, Sink: "gdocs", Reference: DocURL(s.DocID)}, nil
}

// Ticket renders an order as a plain-text kitchen ticket.
func Ticket(o Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Order %s  %s\n", o.ID, o.CreatedAt.Format(time.Kitchen))
	if c := o.Customer; c.Name != "" || c.Phone != "" || c.Address != "" {
		var who []string
		for _, v := range []string{c.Name, c.Phone, c.Address} {
			if v != "" {
				who = append(who, v)
			}
		}
		fmt.Fprintf(&b, "For: %s\n", strings.Join(who, ", "))
	}
	for _, li := range o.Items {
		fmt.Fprintf(&b, "  %s  %s\n", li, li.Total())
	}
	if o.Coupon != "" {
		fmt.Fprintf(&b, "Coupon %s  -%s\n", o.Coupon, o.Discount)
	}
	fmt.Fprintf(&b, "Total %s\n", o.Total)
	if o.Customer.Payment != "" {
		fmt.Fprintf(&b, "Paying by %s\n", o.Customer.Payment)
	}
	b.WriteString("\n")
	return b.String()
}

// DocURL returns the edit URL of a Google Doc.
func DocURL(docID string) string {
	return fmt.Sprintf("https://docs.google.com/document/d/%s/edit", docID)
}

// GoogleDocsConfig configures the Docs client.
type GoogleDocsConfig struct {
	ClientID     string
	ClientSecret string

	// TokenPath holds the stored OAuth token
	// (default: ~/.fivestars/google_token.json).
	TokenPath string

	// Endpoint overrides the Docs API base URL.
	Endpoint string
}

// GoogleDocs appends text to documents through the Google Docs API.
type GoogleDocs struct {
	service *docs.Service
}

// NewGoogleDocs builds a Docs client from a stored OAuth token. The token
// is refreshed with the client credentials when it expires.
func NewGoogleDocs(ctx context.Context, cfg GoogleDocsConfig) (*GoogleDocs, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("order: GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required")
	}
	if cfg.TokenPath == "" {
		homeDir, _ := os.UserHomeDir()
		cfg.TokenPath = filepath.Join(homeDir, ".fivestars", "google_token.json")
	}

	token, err := loadToken(cfg.TokenPath)
	if err != nil {
		return nil, err
	}

	oauthConfig := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       []string{docs.DocumentsScope},
		Endpoint:     google.Endpoint,
	}

	opts := []option.ClientOption{option.WithHTTPClient(oauthConfig.Client(ctx, token))}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	service, err := docs.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("order: create docs service: %w", err)
	}
	return &GoogleDocs{service: service}, nil
}

// AppendText implements DocAppender.
func (g *GoogleDocs) AppendText(ctx context.Context, docID, text string) (string, error) {
	req := &docs.BatchUpdateDocumentRequest{
		Requests: []*docs.Request{
			{
				InsertText: &docs.InsertTextRequest{
					EndOfSegmentLocation: &docs.EndOfSegmentLocation{},
					Text:                 text,
				},
			},
		},
	}
	resp, err := g.service.Documents.BatchUpdate(docID, req).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to document %s: %w", docID, err)
	}
	if resp.WriteControl != nil {
		return resp.WriteControl.RequiredRevisionId, nil
	}
	return "", nil
}

func loadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoGoogleToken, path)
	}
	if err != nil {
		return nil, fmt.Errorf("order: read google token: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("order: parse google token %s: %w", path, err)
	}
	return &token, nil
}

var (
	_ Dispatcher  = GoogleDocsSink{}
	_ DocAppender = (*GoogleDocs)(nil)
)
