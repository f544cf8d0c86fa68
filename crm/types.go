package crm

// User is an account owner. Flight tracking flags are consumed by the
// flight route, not managed here.
type User struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	Email                 string `json:"email"`
	FlightTrackingEnabled bool   `json:"flight_tracking_enabled"`
	FlightTrackingQuota   int    `json:"flight_tracking_quota"`
	FlightLookupsUsed     int    `json:"flight_lookups_used"`
	CreatedAt             int64  `json:"created_at"`
}

// Client is a sales contact at a company.
type Client struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Name        string `json:"name"`
	CompanyName string `json:"company_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Status      string `json:"status"` // lead | active | closed
	Notes       string `json:"notes"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

// Deal is an opportunity attached to a client. Amount is in cents.
type Deal struct {
	ID        string `json:"id"`
	ClientID  string `json:"client_id"`
	UserID    string `json:"user_id"`
	Title     string `json:"title"`
	Stage     string `json:"stage"` // prospecting | proposal | negotiation | won | lost
	Amount    int64  `json:"amount"`
	CloseDate int64  `json:"close_date,omitempty"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// Task is a follow-up item attached to a client.
type Task struct {
	ID        string `json:"id"`
	ClientID  string `json:"client_id"`
	UserID    string `json:"user_id"`
	Title     string `json:"title"`
	DueAt     int64  `json:"due_at,omitempty"`
	Done      bool   `json:"done"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}
