package settings

import "time"

// Setting represents a system configuration setting
type Setting struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Type        string    `json:"type"` // string, int, bool
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Editable    bool      `json:"editable"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Category represents a group of related settings
type Category string

const (
	CategorySystem Category = "system"
	CategoryLimits Category = "limits"
)

// Type represents the data type of a setting
type Type string

const (
	TypeString Type = "string"
	TypeInt    Type = "int"
	TypeBool   Type = "bool"
)

// Server access modes. In private mode anonymous creation is disabled and
// objects come into existence only through invite links or an
// authenticated admin.
const (
	ModePublic  = "public"
	ModePrivate = "private"
)

// Limits is the per-request snapshot of creation constraints. Handlers
// re-read it on every request, so an admin edit applies without a restart.
type Limits struct {
	MaxTextLength int   `json:"maxTextLength"`
	MaxFileCount  int   `json:"maxFileCount"`
	MaxFileSize   int64 `json:"maxFileSize"`
	MaxRetention  int64 `json:"maxRetention"`
}

// UpdateRequest represents a request to update a setting
type UpdateRequest struct {
	Value string `json:"value"`
}

// BulkUpdateRequest represents a request to update multiple settings
type BulkUpdateRequest struct {
	Settings map[string]string `json:"settings"` // key -> value
}
