// Package memstore is an in-memory implementation of the host directory
// capabilities: groups, users, login providers, pending registrations and
// user commands. It mirrors the Postgres adapter in internal/db.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"keycloak-bridge/internal/auth"

	"github.com/google/uuid"
)

type loginProvider struct {
	userID     string
	provider   string
	identifier string
}

// Store is safe for concurrent use.
type Store struct {
	mu sync.Mutex

	users   map[string]auth.User
	order   []string // user ids in creation order
	groups  map[int64]auth.Group
	members map[int64][]string // group id -> user ids, oldest first
	links   []loginProvider
	pending map[string]auth.PendingRegistration

	// Failure injection for tests.
	EditErr     error
	RegisterErr error

	Edits     []auth.EditUserCommand
	Registers []auth.RegisterUserCommand

	clock time.Time
}

func New() *Store {
	return &Store{
		users:   make(map[string]auth.User),
		groups:  make(map[int64]auth.Group),
		members: make(map[int64][]string),
		pending: make(map[string]auth.PendingRegistration),
		clock:   time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (s *Store) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

// AddGroup seeds a group.
func (s *Store) AddGroup(id int64, name string) auth.Group {
	s.mu.Lock()
	defer s.mu.Unlock()

	g := auth.Group{ID: id, Name: name}
	s.groups[id] = g
	return g
}

// AddUser seeds a user and returns it with id and creation time filled in.
func (s *Store) AddUser(u auth.User) auth.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.tick()
	}
	s.users[u.ID] = u
	s.order = append(s.order, u.ID)
	return u
}

// AddMember appends userID to the members of groupID.
func (s *Store) AddMember(groupID int64, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.members[groupID] = append(s.members[groupID], userID)
}

// GroupsOf returns the ids of the groups userID belongs to.
func (s *Store) GroupsOf(userID string) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []int64
	for id := range s.groups {
		for _, m := range s.members[id] {
			if m == userID {
				ids = append(ids, id)
				break
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// PendingRegistration returns a stored pending registration by token.
func (s *Store) PendingRegistration(token string) (auth.PendingRegistration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[token]
	return p, ok
}

// LoginProviders returns the identifiers linked to userID for provider.
func (s *Store) LoginProviders(userID, provider string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for _, l := range s.links {
		if l.userID == userID && l.provider == provider {
			ids = append(ids, l.identifier)
		}
	}
	return ids
}

// Users returns all users in creation order.
func (s *Store) Users() []auth.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]auth.User, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.users[id])
	}
	return out
}

// ---- groups ----

func (s *Store) FindByName(_ context.Context, name string) (*auth.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, g := range s.groups {
		if g.Name == name {
			g := g
			return &g, nil
		}
	}
	return nil, nil
}

func (s *Store) FindOrFail(_ context.Context, id int64) (*auth.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &g, nil
}

func (s *Store) ListUsers(_ context.Context, groupID int64) ([]auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []auth.User
	for _, id := range s.members[groupID] {
		if u, ok := s.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

// ---- users ----

func (s *Store) FindByID(_ context.Context, id string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *Store) FindByLoginProvider(_ context.Context, provider, identifier string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range s.links {
		if l.provider == provider && l.identifier == identifier {
			u, ok := s.users[l.userID]
			if !ok {
				return nil, nil
			}
			return &u, nil
		}
	}
	return nil, nil
}

func (s *Store) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.byEmailLocked(email)
	if u == nil {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (s *Store) byEmailLocked(email string) *auth.User {
	for _, id := range s.order {
		u := s.users[id]
		if strings.EqualFold(u.Email, email) {
			return &u
		}
	}
	return nil
}

func (s *Store) byUsernameLocked(username string) *auth.User {
	for _, id := range s.order {
		u := s.users[id]
		if strings.EqualFold(u.Username, username) {
			return &u
		}
	}
	return nil
}

// ---- login providers ----

func (s *Store) LinkLoginProvider(_ context.Context, userID, provider, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return auth.ErrNotFound
	}
	for _, l := range s.links {
		if l.provider == provider && l.identifier == identifier {
			if l.userID == userID {
				return nil
			}
			return fmt.Errorf("login provider %s already linked: %w", provider, auth.ErrValidation)
		}
	}
	s.links = append(s.links, loginProvider{userID: userID, provider: provider, identifier: identifier})
	return nil
}

func (s *Store) RemoveLoginProviders(_ context.Context, userID, provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.links[:0]
	for _, l := range s.links {
		if l.userID == userID && l.provider == provider {
			continue
		}
		kept = append(kept, l)
	}
	s.links = kept
	return nil
}

// ---- pending registrations ----

func (s *Store) SavePendingRegistration(_ context.Context, p auth.PendingRegistration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.Token == "" {
		return fmt.Errorf("empty registration token: %w", auth.ErrValidation)
	}
	s.pending[p.Token] = p
	return nil
}

// ---- commands ----

func (s *Store) EditUser(_ context.Context, cmd auth.EditUserCommand) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Edits = append(s.Edits, cmd)

	if s.EditErr != nil {
		return nil, &auth.CommandError{Command: "edit_user", Err: s.EditErr}
	}
	if cmd.Actor == nil {
		return nil, &auth.CommandError{Command: "edit_user", Err: auth.ErrPermissionDenied}
	}

	u, ok := s.users[cmd.UserID]
	if !ok {
		return nil, &auth.CommandError{Command: "edit_user", Err: auth.ErrNotFound}
	}

	a := cmd.Attributes
	if a.Email != "" && !strings.EqualFold(a.Email, u.Email) {
		if other := s.byEmailLocked(a.Email); other != nil && other.ID != u.ID {
			return nil, &auth.CommandError{Command: "edit_user", Err: fmt.Errorf("email taken: %w", auth.ErrValidation)}
		}
		u.Email = a.Email
		u.IsEmailConfirmed = a.IsEmailConfirmed
	} else if a.Email != "" && a.IsEmailConfirmed {
		u.IsEmailConfirmed = true
	}
	if a.Username != "" && !strings.EqualFold(a.Username, u.Username) {
		if other := s.byUsernameLocked(a.Username); other != nil && other.ID != u.ID {
			return nil, &auth.CommandError{Command: "edit_user", Err: fmt.Errorf("username taken: %w", auth.ErrValidation)}
		}
		u.Username = a.Username
	}
	if a.AvatarURL != "" {
		u.AvatarURL = a.AvatarURL
	}
	s.users[u.ID] = u

	for id, ms := range s.members {
		kept := ms[:0]
		for _, m := range ms {
			if m != u.ID {
				kept = append(kept, m)
			}
		}
		s.members[id] = kept
	}
	for _, g := range cmd.Groups {
		if _, ok := s.groups[g.ID]; ok {
			s.members[g.ID] = append(s.members[g.ID], u.ID)
		}
	}

	return &u, nil
}

func (s *Store) RegisterUser(_ context.Context, cmd auth.RegisterUserCommand) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Registers = append(s.Registers, cmd)

	if s.RegisterErr != nil {
		return nil, &auth.CommandError{Command: "register_user", Err: s.RegisterErr}
	}

	a := cmd.Attributes
	if a.Username == "" || a.Email == "" {
		return nil, &auth.CommandError{Command: "register_user", Err: fmt.Errorf("username and email required: %w", auth.ErrValidation)}
	}
	if s.byEmailLocked(a.Email) != nil {
		return nil, &auth.CommandError{Command: "register_user", Err: fmt.Errorf("email taken: %w", auth.ErrValidation)}
	}
	if s.byUsernameLocked(a.Username) != nil {
		return nil, &auth.CommandError{Command: "register_user", Err: fmt.Errorf("username taken: %w", auth.ErrValidation)}
	}

	var pending *auth.PendingRegistration
	if a.Token != "" {
		p, ok := s.pending[a.Token]
		if !ok {
			return nil, &auth.CommandError{Command: "register_user", Err: fmt.Errorf("registration token: %w", auth.ErrNotFound)}
		}
		pending = &p
	}

	u := auth.User{
		ID:               uuid.NewString(),
		Username:         a.Username,
		Email:            a.Email,
		IsEmailConfirmed: a.IsEmailConfirmed,
		AvatarURL:        a.AvatarURL,
		CreatedAt:        s.tick(),
	}
	s.users[u.ID] = u
	s.order = append(s.order, u.ID)

	if pending != nil {
		s.links = append(s.links, loginProvider{
			userID:     u.ID,
			provider:   pending.Provider,
			identifier: pending.Identifier,
		})
		delete(s.pending, pending.Token)
	}

	return &u, nil
}
