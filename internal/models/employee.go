package models

import "time"

// Employee represents one person on the insured roster. Charge rows are
// matched to roster entries by (name, id_number) during reconciliation.
type Employee struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenantId"`
	Name       string    `json:"name"`
	IDNumber   string    `json:"idNumber"` // national id, unique per tenant
	Department string    `json:"department"`
	Status     string    `json:"status"` // active | left
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// CreateEmployeeRequest holds the fields needed to add a roster entry.
type CreateEmployeeRequest struct {
	Name       string `json:"name"`
	IDNumber   string `json:"idNumber"`
	Department string `json:"department"`
	Status     string `json:"status,omitempty"`
}

// UpdateEmployeeRequest holds the fields that can be updated.
type UpdateEmployeeRequest struct {
	Name       *string `json:"name,omitempty"`
	IDNumber   *string `json:"idNumber,omitempty"`
	Department *string `json:"department,omitempty"`
	Status     *string `json:"status,omitempty"`
}

// Validate checks if the create request contains valid data.
func (r *CreateEmployeeRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if len(r.Name) < 2 || len(r.Name) > 100 {
		errors["name"] = "Name must be between 2 and 100 characters"
	}
	if len(r.IDNumber) < 6 {
		errors["idNumber"] = "ID number is required (min 6 characters)"
	}
	if r.Status != "" && r.Status != "active" && r.Status != "left" {
		errors["status"] = "Status must be 'active' or 'left'"
	}

	return errors
}
