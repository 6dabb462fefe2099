package auth

import (
	"context"
	"sort"
)

// Resolver computes effective permission sets from stored grants.
type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the permission set for a user. Admin accounts short-circuit
// to the unrestricted set without reading any grants. Every store failure,
// an unknown user and a deactivated user all resolve to the empty set:
// authorization reads fail closed and never surface an error a caller could
// mistake for "skip the check".
func (r *Resolver) Resolve(ctx context.Context, userID string) PermissionSet {
	user, err := r.store.FindUser(ctx, userID)
	if err != nil || !user.Active {
		return PermissionSet{}
	}
	if user.Admin {
		return PermissionSet{Admin: true}
	}

	domainGrants, err := r.store.ListDomainGrants(ctx, userID)
	if err != nil {
		return PermissionSet{}
	}
	tableGrants, err := r.store.ListTableGrants(ctx, userID)
	if err != nil {
		return PermissionSet{}
	}

	domains := make([]string, 0, len(domainGrants))
	for _, g := range domainGrants {
		domains = append(domains, g.Domain)
	}
	tables := make([]TableRef, 0, len(tableGrants))
	for _, g := range tableGrants {
		tables = append(tables, g.Table)
	}
	return NewPermissionSet(false, domains, tables)
}

// EnumerateDomains lists the domains a permission set can see. Admins get the
// full reference catalog; everyone else gets the sorted union of coarse
// grants and the domains of fine grants. Catalog failures enumerate to
// nothing.
func (r *Resolver) EnumerateDomains(ctx context.Context, set PermissionSet) []string {
	if set.Admin {
		names, err := r.store.ListDomainNames(ctx)
		if err != nil {
			return nil
		}
		sort.Strings(names)
		return names
	}
	return set.AccessibleDomains()
}

// EnumerateTables lists the tables a permission set can read: the whole
// catalog for admins, otherwise the catalog rows of coarsely granted domains
// plus the exact fine grants, deduped and sorted.
func (r *Resolver) EnumerateTables(ctx context.Context, set PermissionSet) []TableRef {
	if set.Admin {
		refs, err := r.store.ListDomainTables(ctx, nil)
		if err != nil {
			return nil
		}
		sortTableRefs(refs)
		return refs
	}

	seen := make(map[TableRef]struct{})
	var refs []TableRef
	if coarse := set.SortedDomains(); len(coarse) > 0 {
		catalog, err := r.store.ListDomainTables(ctx, coarse)
		if err != nil {
			return nil
		}
		for _, ref := range catalog {
			if _, ok := seen[ref]; ok {
				continue
			}
			seen[ref] = struct{}{}
			refs = append(refs, ref)
		}
	}
	for ref := range set.Tables {
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		refs = append(refs, ref)
	}
	sortTableRefs(refs)
	return refs
}

// HasDomainAccess re-checks coarse access to one domain fresh from the store,
// failing closed on any error.
func (r *Resolver) HasDomainAccess(ctx context.Context, userID, domain string) bool {
	return r.Resolve(ctx, userID).HasDomain(domain)
}
