package auth

import "sort"

// PermissionSet is the resolved authorization view for one user. Admin means
// unrestricted access regardless of the grant sets; otherwise Domains holds
// coarse domain grants and Tables holds fine-grained table grants. The two
// are additive. The zero value denies everything.
//
// A PermissionSet is computed at login or session restoration and treated as
// immutable for the rest of that session; it is never persisted.
type PermissionSet struct {
	Admin   bool
	Domains map[string]struct{}
	Tables  map[TableRef]struct{}
}

// NewPermissionSet builds a set from explicit grant lists.
func NewPermissionSet(admin bool, domains []string, tables []TableRef) PermissionSet {
	set := PermissionSet{Admin: admin}
	if len(domains) > 0 {
		set.Domains = make(map[string]struct{}, len(domains))
		for _, d := range domains {
			set.Domains[d] = struct{}{}
		}
	}
	if len(tables) > 0 {
		set.Tables = make(map[TableRef]struct{}, len(tables))
		for _, t := range tables {
			set.Tables[t] = struct{}{}
		}
	}
	return set
}

// HasDomain reports coarse access to an entire domain. A table grant inside
// the domain does not count; fine-grained access never widens to the domain.
func (p PermissionSet) HasDomain(domain string) bool {
	if p.Admin {
		return true
	}
	_, ok := p.Domains[domain]
	return ok
}

// HasTable reports access to one table: admin, a coarse grant on the table's
// domain, or an exact table grant.
func (p PermissionSet) HasTable(ref TableRef) bool {
	if p.Admin {
		return true
	}
	if _, ok := p.Domains[ref.Domain]; ok {
		return true
	}
	_, ok := p.Tables[ref]
	return ok
}

// AccessibleDomains returns the sorted union of domains reachable through
// either grant kind. Admins are not enumerable from the set alone; callers
// needing the full catalog go through Resolver.EnumerateDomains.
func (p PermissionSet) AccessibleDomains() []string {
	seen := make(map[string]struct{}, len(p.Domains)+len(p.Tables))
	for d := range p.Domains {
		seen[d] = struct{}{}
	}
	for t := range p.Tables {
		seen[t.Domain] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// FilterDomains keeps the domains this set has coarse access to, preserving
// input order.
func (p PermissionSet) FilterDomains(domains []string) []string {
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		if p.HasDomain(d) {
			out = append(out, d)
		}
	}
	return out
}

// SortedDomains returns the coarse grant set in sorted order.
func (p PermissionSet) SortedDomains() []string {
	out := make([]string, 0, len(p.Domains))
	for d := range p.Domains {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// SortedTables returns the fine grant set ordered by domain, schema, table.
func (p PermissionSet) SortedTables() []TableRef {
	out := make([]TableRef, 0, len(p.Tables))
	for t := range p.Tables {
		out = append(out, t)
	}
	sortTableRefs(out)
	return out
}

func sortTableRefs(refs []TableRef) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Domain != refs[j].Domain {
			return refs[i].Domain < refs[j].Domain
		}
		if refs[i].Schema != refs[j].Schema {
			return refs[i].Schema < refs[j].Schema
		}
		return refs[i].Table < refs[j].Table
	})
}
