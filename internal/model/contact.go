package model

// ContactType is the kind of a contact value.
type ContactType string

const (
	ContactEmail     ContactType = "email"
	ContactPhone     ContactType = "phone"
	ContactWhatsApp  ContactType = "whatsapp"
	ContactInstagram ContactType = "instagram"
	ContactFacebook  ContactType = "facebook"
	ContactLinkedIn  ContactType = "linkedin"
)

// Contact is a single contact value attached to an establishment.
// (EstablishmentID, Type, Value) is unique.
type Contact struct {
	ID              int64       `json:"id"`
	EstablishmentID int64       `json:"establishment_id"`
	Type            ContactType `json:"type"`
	Value           string      `json:"value"`
}
