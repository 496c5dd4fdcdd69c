package models

// PersonType distinguishes human accounts from automated (bot) accounts
type PersonType string

const (
	PersonTypePerson PersonType = "person"
	PersonTypeBot    PersonType = "bot"
)

// Person is a platform account as returned by the people API
type Person struct {
	ID          string     `json:"id"`
	Emails      []string   `json:"emails"`
	DisplayName string     `json:"displayName"`
	Type        PersonType `json:"type"`
}

// Email returns the person's primary email, or "" when none is known
func (p *Person) Email() string {
	if p == nil || len(p.Emails) == 0 {
		return ""
	}
	return p.Emails[0]
}

// IsBot reports whether the account is an automated one
func (p *Person) IsBot() bool {
	return p != nil && p.Type == PersonTypeBot
}
