package models

// Tenant is one participating employer unit. Periods, files and the
// roster are all scoped to a tenant; operator and viewer accounts see
// only the tenants they are assigned to.
type Tenant struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	TaxNumber   *string `json:"taxNumber,omitempty"`   // 统一社会信用代码
	InsuranceNo *string `json:"insuranceNo,omitempty"` // 社保登记号
	ContactName *string `json:"contactName,omitempty"`
	CreatedAt   string  `json:"createdAt"`
	UpdatedAt   string  `json:"updatedAt"`
}
