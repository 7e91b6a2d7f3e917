package resolver

import (
	"context"
	"fmt"

	"keycloak-bridge/internal/auth"
)

// DefaultAdminGroupID is the host's conventional administrator group.
const DefaultAdminGroupID int64 = 1

// GroupAdminResolver picks the first listed member of GroupID as the
// administrative actor.
type GroupAdminResolver struct {
	Groups  GroupDirectory
	GroupID int64
}

func NewGroupAdminResolver(groups GroupDirectory, groupID int64) *GroupAdminResolver {
	if groupID == 0 {
		groupID = DefaultAdminGroupID
	}
	return &GroupAdminResolver{Groups: groups, GroupID: groupID}
}

func (r *GroupAdminResolver) AdminActor(ctx context.Context) (*auth.User, error) {
	group, err := r.Groups.FindOrFail(ctx, r.GroupID)
	if err != nil {
		return nil, fmt.Errorf("admin group %d: %w", r.GroupID, err)
	}

	users, err := r.Groups.ListUsers(ctx, group.ID)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("admin group %d has no members: %w", r.GroupID, auth.ErrNotFound)
	}

	admin := users[0]
	return &admin, nil
}
