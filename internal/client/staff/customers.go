package staff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/atinyakov/sockcs/internal/client/jsonx"
)

// Customer types.
const (
	CustomerRetail    = "RETAIL"
	CustomerWholesale = "WHOLESALE"
)

// ErrNoName is returned when a customer is created without a name.
var ErrNoName = errors.New("customer name is required")

// Customer is a customer record.
type Customer struct {
	ID           jsonx.ID   `json:"id,omitempty"`
	Name         string     `json:"name"`
	CustomerType string     `json:"customer_type"`
	Email        jsonx.Text `json:"email"`
	Phone        jsonx.Text `json:"phone"`
	City         jsonx.Text `json:"city"`
}

// Customers lists every customer.
func (c *Client) Customers(ctx context.Context) ([]Customer, error) {
	page, err := list[Customer](ctx, c, AdminPath+"customers/")
	if err != nil {
		return nil, err
	}
	return page.Rows, nil
}

// CreateCustomer adds a customer. An empty type is RETAIL.
func (c *Client) CreateCustomer(ctx context.Context, cu Customer) error {
	cu.Name = strings.TrimSpace(cu.Name)
	if cu.Name == "" {
		return ErrNoName
	}
	cu.ID = ""
	if cu.CustomerType == "" {
		cu.CustomerType = CustomerRetail
	}
	if _, err := c.call(ctx, http.MethodPost, AdminPath+"customers/", cu); err != nil {
		return fmt.Errorf("create customer: %w", err)
	}
	return nil
}

// EnquiriesPath lists customer enquiries.
const EnquiriesPath = "/api/enquiries/?page_size=100"

// Enquiry statuses.
const (
	EnquiryOpen     = "open"
	EnquiryPending  = "pending"
	EnquiryResolved = "resolved"
)

// Enquiry is a normalized customer enquiry.
type Enquiry struct {
	ID      string
	Email   string
	Subject string
	Created string
	Status  string
}

// Enquiries lists enquiries, normalized.
func (c *Client) Enquiries(ctx context.Context) ([]Enquiry, error) {
	page, err := list[json.RawMessage](ctx, c, EnquiriesPath)
	if err != nil {
		return nil, err
	}
	out := make([]Enquiry, 0, len(page.Rows))
	for i, raw := range page.Rows {
		out = append(out, NormalizeEnquiry(raw, i))
	}
	return out, nil
}

// NormalizeEnquiry reads an enquiry record at index i of its list. Records
// without an id are numbered from one.
func NormalizeEnquiry(raw json.RawMessage, i int) Enquiry {
	m := object(raw)
	e := Enquiry{
		ID:      m.first("id", "pk"),
		Subject: m.first("subject", "title", "topic"),
		Email:   m.first("email", "customer_email"),
		Created: m.first("created_at", "created", "timestamp", "date"),
		Status:  EnquiryStatus(m.first("status", "state", "stage")),
	}
	if e.ID == "" {
		e.ID = fmt.Sprint(i + 1)
	}
	if e.Subject == "" {
		e.Subject = "(no subject)"
	}
	if e.Email == "" {
		e.Email = object(m["user"]).first("email")
	}
	if e.Email == "" {
		e.Email = object(m["contact"]).first("email")
	}
	if e.Email == "" {
		e.Email = "unknown"
	}
	if strings.Contains(e.Created, "T") {
		e.Created = strings.ReplaceAll(strings.Replace(e.Created, "T", " ", 1), "Z", "")
	}
	return e
}

// EnquiryStatus maps backend workflow states onto open, pending and resolved.
// Unknown states pass through lower-cased.
func EnquiryStatus(s string) string {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case "done", "closed", "resolved":
		return EnquiryResolved
	case "hold", "pending", "waiting":
		return EnquiryPending
	case "new", "open", "":
		return EnquiryOpen
	default:
		return v
	}
}

// Summarize counts enquiries per status.
func Summarize(rows []Enquiry) EnquirySummary {
	var s EnquirySummary
	for _, e := range rows {
		switch e.Status {
		case EnquiryOpen:
			s.Open++
		case EnquiryPending:
			s.Pending++
		case EnquiryResolved:
			s.Resolved++
		}
	}
	return s
}

// FilterEnquiries keeps rows whose email, subject or status contains q and
// whose status is status ("all" or empty keeps every status).
func FilterEnquiries(rows []Enquiry, q, status string) []Enquiry {
	needle := strings.ToLower(strings.TrimSpace(q))
	out := make([]Enquiry, 0, len(rows))
	for _, e := range rows {
		if status != "" && status != StatusAll && e.Status != status {
			continue
		}
		hay := strings.ToLower(e.Email + " " + e.Subject + " " + e.Status)
		if needle != "" && !strings.Contains(hay, needle) {
			continue
		}
		out = append(out, e)
	}
	return out
}
