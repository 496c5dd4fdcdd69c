package platform

import (
	"context"

	"roomframe/internal/models"
)

// Client is the REST surface of the chat platform the framework runs against.
// The framework only ever goes through this interface; tests substitute a fake.
type Client interface {
	// GetMe returns the account the framework is authenticated as
	GetMe(ctx context.Context) (*models.Person, error)

	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	UpdateRoomTitle(ctx context.Context, roomID, title string) (*models.Room, error)

	ListMemberships(ctx context.Context, roomID string) ([]models.Membership, error)
	// ListOwnMemberships returns the authenticated account's memberships,
	// capped at max (0 = platform default page size)
	ListOwnMemberships(ctx context.Context, max int) ([]models.Membership, error)
	CreateMembership(ctx context.Context, roomID, personEmail string, isModerator bool) (*models.Membership, error)
	UpdateMembership(ctx context.Context, m *models.Membership) (*models.Membership, error)
	DeleteMembership(ctx context.Context, membershipID string) error

	GetMessage(ctx context.Context, messageID string) (*models.Message, error)
	CreateMessage(ctx context.Context, msg *models.OutboundMessage) (*models.Message, error)
	DeleteMessage(ctx context.Context, messageID string) error

	GetPerson(ctx context.Context, personID string) (*models.Person, error)
	GetPersonByEmail(ctx context.Context, email string) (*models.Person, error)

	GetAttachmentAction(ctx context.Context, actionID string) (*models.AttachmentAction, error)
}
