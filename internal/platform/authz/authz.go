// Copyright (c) 2026 Tessera. All rights reserved.

/*
Package authz supplies the authorization filter consumed by the search and
metadata layers.

A [Provider] exposes exactly one operation: produce a query fragment
restricting the set of visible resource ids. The fragment is consumed
verbatim; this package owns how visibility is decided, the query layer owns
where the restriction is applied.
*/
package authz

import (
	"context"

	"github.com/tessera-dev/tessera/internal/platform/ctxutil"
	"github.com/tessera-dev/tessera/internal/schema"
	"github.com/tessera-dev/tessera/pkg/sqlfrag"
)

// Provider restricts resource visibility for one request.
type Provider interface {
	// Filter returns an id-set fragment (SELECT id FROM ...) limiting
	// visible resources. The empty fragment means no restriction.
	Filter(ctx context.Context) sqlfrag.Fragment
}

// AllowAll is the no-op provider used when the repository carries no
// row-level access control.
type AllowAll struct{}

// Filter returns the empty fragment.
func (AllowAll) Filter(context.Context) sqlfrag.Fragment { return sqlfrag.Empty() }

// RoleFilter restricts visibility to resources whose ACL property lists one
// of the caller's roles. Roles travel in the request context (set by the
// bearer-token middleware); PublicRole is always granted.
type RoleFilter struct {
	// ACLProperty is the metadata property carrying read roles.
	ACLProperty string
	// PublicRole is the role granted to anonymous callers.
	PublicRole string
}

// NewRoleFilter builds a role filter from the repository vocabulary.
func NewRoleFilter(reg *schema.Registry, publicRole string) *RoleFilter {
	return &RoleFilter{ACLProperty: reg.ACL, PublicRole: publicRole}
}

// Filter returns the id-set fragment for the caller's roles.
func (f *RoleFilter) Filter(ctx context.Context) sqlfrag.Fragment {
	if f.ACLProperty == "" {
		return sqlfrag.Empty()
	}

	roles := ctxutil.GetRoles(ctx)
	if f.PublicRole != "" {
		roles = append(append([]string{}, roles...), f.PublicRole)
	}

	return sqlfrag.New(
		"SELECT "+schema.Metadata.ID+" FROM "+schema.Metadata.Table+
			" WHERE "+schema.Metadata.Property+" = ? AND "+schema.Metadata.Value+" = ANY(?)",
		f.ACLProperty, roles,
	)
}
