package domain

import "time"

// Address платежный адрес партнера
type Address struct {
	Line1      string `json:"line1" validate:"required,max=200"`
	Line2      string `json:"line2,omitempty" validate:"max=200"`
	City       string `json:"city" validate:"required,max=100"`
	PostalCode string `json:"postalCode" validate:"required,max=20"`
	State      string `json:"state,omitempty" validate:"max=100"`
	Country    string `json:"country" validate:"required,len=2"`
}

// Partner представляет донора. Email уникален и хранится в нижнем регистре.
type Partner struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	FirstName        string    `json:"firstName"`
	LastName         string    `json:"lastName"`
	Organization     string    `json:"organization,omitempty"`
	Phone            string    `json:"phone,omitempty"`
	Country          string    `json:"country,omitempty"`
	StripeCustomerID *string   `json:"stripeCustomerId,omitempty"`
	BillingAddress   *Address  `json:"billingAddress,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// FullName возвращает имя и фамилию через пробел
func (p Partner) FullName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// PartnerInfo контактные данные из формы оформления пожертвования
type PartnerInfo struct {
	FirstName    string `json:"firstName" validate:"required,max=100"`
	LastName     string `json:"lastName" validate:"required,max=100"`
	Email        string `json:"email" validate:"required,email,max=254"`
	Phone        string `json:"phone,omitempty" validate:"max=40"`
	Organization string `json:"organization,omitempty" validate:"max=200"`
	Country      string `json:"country" validate:"required,len=2"`
}
