package model

import (
	"strings"
	"unicode/utf8"
)

// MaxClientNameLen bounds client names in runes, not bytes, since most
// names are Cyrillic.
const MaxClientNameLen = 100

// Client is a customer record. The id is client_<dbid> for cloud-backed
// rows; local-only clients use client_<timestamp>.
type Client struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Phone           string `json:"phone"`
	Email           string `json:"email"`
	Address         string `json:"address"`
	PreferredSource string `json:"preferredSource"`
	Notes           string `json:"notes"`
	CreatedDate     string `json:"createdDate"` // YYYY-MM-DD

	IsOptimistic bool `json:"_isOptimistic,omitempty"`
}

// Validate checks required fields and formats.
func (c *Client) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return errValidation("client name is required")
	}
	if utf8.RuneCountInString(c.Name) > MaxClientNameLen {
		return errValidation("client name exceeds %d characters", MaxClientNameLen)
	}
	if c.Email != "" && !ValidEmail(c.Email) {
		return errValidation("client email %q is not a valid address", c.Email)
	}
	if c.Phone != "" && !ValidPhone(c.Phone) {
		return errValidation("client phone %q needs at least 6 digits", c.Phone)
	}
	if c.CreatedDate != "" && !ValidDate(c.CreatedDate) {
		return errValidation("client createdDate must be YYYY-MM-DD, got %q", c.CreatedDate)
	}
	return nil
}

// Clone returns a deep copy.
func (c *Client) Clone() *Client {
	cp := *c
	return &cp
}

// ClientStats is the aggregate computed from a client's orders across all
// months.
type ClientStats struct {
	OrderCount    int     `json:"orderCount"`
	TotalSpentEUR float64 `json:"totalSpentEUR"`
	TotalSpentBGN float64 `json:"totalSpentBGN"`
	ProfitEUR     float64 `json:"profitEUR"`
	ProfitBGN     float64 `json:"profitBGN"`
	LastOrderDate string  `json:"lastOrderDate"`
	FirstSeenDate string  `json:"firstSeenDate"`
}
