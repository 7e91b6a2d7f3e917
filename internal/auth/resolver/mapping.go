package resolver

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"keycloak-bridge/internal/auth"
	"keycloak-bridge/internal/logger"
)

// RoleMapping maps external role names to local group names.
type RoleMapping map[string]string

// ParseRoleMapping decodes a JSON object of role -> group name.
// A blank or malformed value disables mapping; it never fails.
func ParseRoleMapping(raw string) RoleMapping {
	if strings.TrimSpace(raw) == "" {
		return RoleMapping{}
	}

	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		logger.Warn("role mapping ignored", map[string]any{
			"error": err.Error(),
		})
		return RoleMapping{}
	}
	if m == nil {
		return RoleMapping{}
	}

	return RoleMapping(m)
}

// AssignGroups resolves the local groups reachable from roles through
// mapping. Unmapped roles and names without a group are skipped.
// The result is ordered by group id with duplicates collapsed.
func (e *Engine) AssignGroups(
	ctx context.Context,
	roles []string,
	mapping RoleMapping,
) ([]auth.Group, error) {

	seen := make(map[int64]struct{})
	groups := []auth.Group{}

	for _, role := range roles {
		name, ok := mapping[role]
		if !ok || name == "" {
			continue
		}

		group, err := e.groups.FindByName(ctx, name)
		if err != nil {
			return nil, err
		}
		if group == nil {
			continue
		}

		if _, dup := seen[group.ID]; dup {
			continue
		}
		seen[group.ID] = struct{}{}
		groups = append(groups, *group)
	}

	sort.Slice(groups, func(i, j int) bool {
		return groups[i].ID < groups[j].ID
	})

	return groups, nil
}
