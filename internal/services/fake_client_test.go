package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"roomframe/internal/models"
	"roomframe/internal/platform"
)

// fakeClient is an in-memory platform.Client for tests. Lookup errors can be
// injected per room to exercise the rule evaluator's failure defaults.
type fakeClient struct {
	mu sync.Mutex

	me          *models.Person
	rooms       map[string]*models.Room
	memberships map[string][]models.Membership // roomID -> members
	people      map[string]*models.Person
	messages    map[string]*models.Message
	actions     map[string]*models.AttachmentAction

	membershipErr map[string]error // roomID -> error to return from ListMemberships
	roomErr       map[string]error

	sent []models.OutboundMessage
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		me:            &models.Person{ID: "bot-id", Emails: []string{"frame@bots.roomframe.io"}, Type: models.PersonTypeBot},
		rooms:         make(map[string]*models.Room),
		memberships:   make(map[string][]models.Membership),
		people:        make(map[string]*models.Person),
		messages:      make(map[string]*models.Message),
		actions:       make(map[string]*models.AttachmentAction),
		membershipErr: make(map[string]error),
		roomErr:       make(map[string]error),
	}
}

func (f *fakeClient) addRoom(id, title string, roomType models.RoomType) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rooms[id] = &models.Room{ID: id, Title: title, Type: roomType}
}

func (f *fakeClient) addMember(roomID, personID, email string, moderator bool) models.Membership {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := models.Membership{
		ID:          fmt.Sprintf("m-%s-%s", roomID, personID),
		RoomID:      roomID,
		PersonID:    personID,
		PersonEmail: email,
		IsModerator: moderator,
	}
	f.memberships[roomID] = append(f.memberships[roomID], m)
	return m
}

func (f *fakeClient) removeMember(roomID, personID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	members := f.memberships[roomID]
	for i := range members {
		if members[i].PersonID == personID {
			f.memberships[roomID] = append(members[:i], members[i+1:]...)
			return
		}
	}
}

func (f *fakeClient) sentMessages() []models.OutboundMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.OutboundMessage(nil), f.sent...)
}

func (f *fakeClient) GetMe(context.Context) (*models.Person, error) {
	return f.me, nil
}

func (f *fakeClient) GetRoom(_ context.Context, roomID string) (*models.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.roomErr[roomID]; ok {
		return nil, err
	}
	room, ok := f.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("%w: room %s", platform.ErrNotFound, roomID)
	}
	copy := *room
	return &copy, nil
}

func (f *fakeClient) UpdateRoomTitle(_ context.Context, roomID, title string) (*models.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("%w: room %s", platform.ErrNotFound, roomID)
	}
	room.Title = title
	copy := *room
	return &copy, nil
}

func (f *fakeClient) ListMemberships(_ context.Context, roomID string) ([]models.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.membershipErr[roomID]; ok {
		return nil, err
	}
	return append([]models.Membership(nil), f.memberships[roomID]...), nil
}

func (f *fakeClient) ListOwnMemberships(_ context.Context, max int) ([]models.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Membership
	for _, members := range f.memberships {
		for _, m := range members {
			if m.PersonID == f.me.ID {
				out = append(out, m)
			}
		}
		if max > 0 && len(out) >= max {
			break
		}
	}
	return out, nil
}

func (f *fakeClient) CreateMembership(_ context.Context, roomID, personEmail string, isModerator bool) (*models.Membership, error) {
	m := f.addMember(roomID, "p-"+personEmail, personEmail, isModerator)
	return &m, nil
}

func (f *fakeClient) UpdateMembership(_ context.Context, m *models.Membership) (*models.Membership, error) {
	return m, nil
}

func (f *fakeClient) DeleteMembership(_ context.Context, membershipID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for roomID, members := range f.memberships {
		for i := range members {
			if members[i].ID == membershipID {
				f.memberships[roomID] = append(members[:i], members[i+1:]...)
				return nil
			}
		}
	}
	return fmt.Errorf("%w: membership %s", platform.ErrNotFound, membershipID)
}

func (f *fakeClient) GetMessage(_ context.Context, messageID string) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.messages[messageID]
	if !ok {
		return nil, fmt.Errorf("%w: message %s", platform.ErrNotFound, messageID)
	}
	return msg, nil
}

func (f *fakeClient) CreateMessage(_ context.Context, msg *models.OutboundMessage) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, *msg)
	return &models.Message{ID: fmt.Sprintf("sent-%d", len(f.sent)), RoomID: msg.RoomID}, nil
}

func (f *fakeClient) DeleteMessage(context.Context, string) error {
	return nil
}

func (f *fakeClient) GetPerson(_ context.Context, personID string) (*models.Person, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.people[personID]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: person %s", platform.ErrNotFound, personID)
}

func (f *fakeClient) GetPersonByEmail(_ context.Context, email string) (*models.Person, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.people {
		for _, e := range p.Emails {
			if strings.EqualFold(e, email) {
				return p, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: person %s", platform.ErrNotFound, email)
}

func (f *fakeClient) GetAttachmentAction(_ context.Context, actionID string) (*models.AttachmentAction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.actions[actionID]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("%w: action %s", platform.ErrNotFound, actionID)
}

var _ platform.Client = (*fakeClient)(nil)
