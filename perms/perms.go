package perms

import (
	"reviewhub/models"
)

type Action string

const (
	ActionList     Action = "list"
	ActionRetrieve Action = "retrieve"
	ActionCreate   Action = "create"
	ActionUpdate   Action = "update"
	ActionDelete   Action = "delete"
)

type Resource string

const (
	ResourceCategory Resource = "category"
	ResourceGenre    Resource = "genre"
	ResourceTitle    Resource = "title"
	ResourceReview   Resource = "review"
	ResourceComment  Resource = "comment"
	ResourceUser     Resource = "user"
)

// Rule is one access policy. Every rule is a pure function of the actor;
// object-level ownership is checked separately via AllowObject.
type Rule int

const (
	// Anyone allows the action for all callers, authenticated or not.
	Anyone Rule = iota
	// Authenticated requires any logged-in user.
	Authenticated
	// Staff requires the admin role, the superuser flag, or staff-equivalent.
	Staff
	// Admin requires the admin role or the superuser flag.
	Admin
)

// policy is the action-to-rule table consulted on every mutation. Reads
// are open on all content resources; user records are admin territory
// (the "me" alias is resolved by the handler before this table applies).
var policy = map[Resource]map[Action]Rule{
	ResourceCategory: {
		ActionList:     Anyone,
		ActionRetrieve: Anyone,
		ActionCreate:   Admin,
		ActionDelete:   Admin,
	},
	ResourceGenre: {
		ActionList:     Anyone,
		ActionRetrieve: Anyone,
		ActionCreate:   Admin,
		ActionDelete:   Admin,
	},
	ResourceTitle: {
		ActionList:     Anyone,
		ActionRetrieve: Anyone,
		ActionCreate:   Staff,
		ActionUpdate:   Staff,
		ActionDelete:   Staff,
	},
	ResourceReview: {
		ActionList:     Anyone,
		ActionRetrieve: Anyone,
		ActionCreate:   Authenticated,
		ActionUpdate:   Authenticated,
		ActionDelete:   Authenticated,
	},
	ResourceComment: {
		ActionList:     Anyone,
		ActionRetrieve: Anyone,
		ActionCreate:   Authenticated,
		ActionUpdate:   Authenticated,
		ActionDelete:   Authenticated,
	},
	ResourceUser: {
		ActionList:     Admin,
		ActionRetrieve: Admin,
		ActionCreate:   Admin,
		ActionUpdate:   Admin,
		ActionDelete:   Admin,
	},
}

// Allow reports whether actor may perform action on resource. A nil actor
// is an anonymous caller. Unknown (resource, action) pairs are denied.
func Allow(actor *models.User, action Action, resource Resource) bool {
	actions, ok := policy[resource]
	if !ok {
		return false
	}
	rule, ok := actions[action]
	if !ok {
		return false
	}

	switch rule {
	case Anyone:
		return true
	case Authenticated:
		return actor != nil
	case Staff:
		return actor != nil && actor.IsStaff()
	case Admin:
		return actor != nil && (actor.Role == models.RoleAdmin || actor.IsSuperuser)
	}
	return false
}

// AllowObject decides instance-level access for author-owned resources
// (reviews and comments): admins and moderators may mutate anything,
// everyone else only their own. Reads are always allowed.
func AllowObject(actor *models.User, action Action, resource Resource, authorID uint) bool {
	if action == ActionList || action == ActionRetrieve {
		return true
	}
	if !Allow(actor, action, resource) {
		return false
	}
	if actor.IsModeratorOrAbove() {
		return true
	}
	return actor.ID == authorID
}
