package models

type Customer struct {
	ID             string   `json:"id,omitempty"`
	Name           string   `json:"name"`
	Company        string   `json:"company,omitempty"`
	Email          string   `json:"email,omitempty"`
	Phone          string   `json:"phone,omitempty"`
	Address        string   `json:"address,omitempty"`
	State          string   `json:"state,omitempty"`
	Country        string   `json:"country,omitempty"`
	Fiber          []string `json:"fiber,omitempty"`
	Certifications []string `json:"certifications,omitempty"`
	DeliveryTerms  []string `json:"delivery_terms,omitempty"`
	PaymentTerms   []string `json:"payment_terms,omitempty"`
	Remark         string   `json:"remark,omitempty"`
}

type Vendor struct {
	ID             string   `json:"id,omitempty"`
	Name           string   `json:"name"`
	Company        string   `json:"company,omitempty"`
	Email          string   `json:"email,omitempty"`
	Phone          string   `json:"phone,omitempty"`
	Address        string   `json:"address,omitempty"`
	State          string   `json:"state,omitempty"`
	Country        string   `json:"country,omitempty"`
	ProductTypes   []string `json:"product_types,omitempty"`
	Fiber          []string `json:"fiber,omitempty"`
	Certifications []string `json:"certifications,omitempty"`
	DeliveryTerms  []string `json:"delivery_terms,omitempty"`
	PaymentTerms   []string `json:"payment_terms,omitempty"`
	Remark         string   `json:"remark,omitempty"`
}

// Person is a contact attached to a customer or a vendor.
type Person struct {
	ID         string `json:"id,omitempty"`
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	LinkedTo   string `json:"linked_to,omitempty"`
	LinkedToID string `json:"linked_to_id,omitempty"`
	Type       string `json:"type,omitempty"`
}

// Attribute holds one option list offered by the entity forms, e.g. the
// fiber or certification choices.
type Attribute struct {
	ID     string   `json:"id,omitempty"`
	Key    string   `json:"key"`
	Values []string `json:"values"`
}

func (c Customer) RecordID() string  { return c.ID }
func (v Vendor) RecordID() string    { return v.ID }
func (p Person) RecordID() string    { return p.ID }
func (a Attribute) RecordID() string { return a.ID }
