package testutil

import (
	"github.com/google/uuid"

	"procura/internal/auth/models"
)

// DefaultPassword is the password of every seeded test account.
const DefaultPassword = "password123"

// TestUsers are the seeded accounts of the fake backend, one per role.
var TestUsers = struct {
	Admin     models.AuthUser
	PM        models.AuthUser
	Purchaser models.AuthUser
	AP        models.AuthUser
	Field     models.AuthUser
}{
	Admin:     seedUser("11111111-1111-1111-1111-111111111111", "admin@procura.test", "Ada", "Admin", models.RoleAdmin),
	PM:        seedUser("22222222-2222-2222-2222-222222222222", "pm@procura.test", "Pia", "Manager", models.RolePM),
	Purchaser: seedUser("33333333-3333-3333-3333-333333333333", "purchaser@procura.test", "Paul", "Buyer", models.RolePurchaser),
	AP:        seedUser("44444444-4444-4444-4444-444444444444", "ap@procura.test", "Alex", "Payable", models.RoleAP),
	Field:     seedUser("55555555-5555-5555-5555-555555555555", "field@procura.test", "Finn", "Foreman", models.RoleField),
}

// TestOrganizationID is the organization every seeded account belongs to.
const TestOrganizationID = "org-0001"

func seedUser(id, email, first, last string, role models.Role) models.AuthUser {
	return models.AuthUser{
		ID:             id,
		Email:          email,
		FirstName:      first,
		LastName:       last,
		Role:           role,
		OrganizationID: TestOrganizationID,
	}
}

// AllTestUsers returns the seeded accounts ordered from highest to lowest role.
func AllTestUsers() []models.AuthUser {
	return []models.AuthUser{TestUsers.Admin, TestUsers.PM, TestUsers.Purchaser, TestUsers.AP, TestUsers.Field}
}

// UserBuilder provides a fluent interface for building test users.
type UserBuilder struct {
	user models.AuthUser
}

// NewUserBuilder creates a new UserBuilder with sensible defaults.
func NewUserBuilder() *UserBuilder {
	return &UserBuilder{
		user: models.AuthUser{
			ID:             uuid.NewString(),
			Email:          "test@procura.test",
			FirstName:      "Test",
			LastName:       "User",
			Role:           models.RoleField,
			OrganizationID: TestOrganizationID,
		},
	}
}

func (b *UserBuilder) WithID(id string) *UserBuilder {
	b.user.ID = id
	return b
}

func (b *UserBuilder) WithEmail(email string) *UserBuilder {
	b.user.Email = email
	return b
}

func (b *UserBuilder) WithName(first, last string) *UserBuilder {
	b.user.FirstName = first
	b.user.LastName = last
	return b
}

func (b *UserBuilder) WithRole(role models.Role) *UserBuilder {
	b.user.Role = role
	return b
}

func (b *UserBuilder) Build() models.AuthUser {
	return b.user
}
