package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/Hamza-Filali13/check-quality-project/internal/auth"
)

type createUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
	Admin    bool   `json:"is_admin"`
}

type updateUserRequest struct {
	Email    *string `json:"email"`
	FullName *string `json:"full_name"`
	Admin    *bool   `json:"is_admin"`
	Active   *bool   `json:"is_active"`
	Password *string `json:"password"`
}

type grantDomainRequest struct {
	Domain string `json:"domain"`
}

type grantTableRequest struct {
	Domain string `json:"domain"`
	Schema string `json:"schema"`
	Table  string `json:"table"`
}

func (a *API) handleUsersCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listUsers(w, r)
	case http.MethodPost:
		a.createUser(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireAdmin(w, r); !ok {
		return
	}
	users, err := a.accounts.ListUsers(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	if users == nil {
		users = []auth.User{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": users,
	})
}

func (a *API) createUser(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireAdmin(w, r); !ok {
		return
	}
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.accounts.CreateUser(r.Context(), auth.NewUser{
		Username: req.Username,
		Email:    req.Email,
		FullName: req.FullName,
		Password: req.Password,
		Admin:    req.Admin,
	})
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.audit(r.Context(), "admin.user.create", "user", user.ID, map[string]string{
		"username": user.Username,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/users/%s", user.ID))
	writeJSON(w, http.StatusCreated, user)
}

// handleUserResource dispatches /v1/users/{id} and the grant routes
// beneath it.
func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	userID := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodPatch {
			methodNotAllowed(w, r, http.MethodPatch)
			return
		}
		a.updateUser(w, r, userID)
		return
	}
	if parts[1] == "grants" && len(parts) >= 3 {
		a.handleUserGrants(w, r, userID, parts[2:])
		return
	}
	writeError(w, r, http.StatusNotFound, "resource not found")
}

func (a *API) updateUser(w http.ResponseWriter, r *http.Request, userID string) {
	if _, ok := a.requireAdmin(w, r); !ok {
		return
	}
	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.accounts.UpdateUser(r.Context(), userID, auth.UserUpdate{
		Email:    req.Email,
		FullName: req.FullName,
		Admin:    req.Admin,
		Active:   req.Active,
		Password: req.Password,
	})
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.audit(r.Context(), "admin.user.update", "user", user.ID, map[string]string{
		"username": user.Username,
	})
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleUserGrants(w http.ResponseWriter, r *http.Request, userID string, rest []string) {
	s, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}

	switch rest[0] {
	case "domains":
		switch {
		case len(rest) == 1 && r.Method == http.MethodPost:
			var req grantDomainRequest
			if err := decodeJSON(w, r, &req); err != nil {
				writeError(w, r, http.StatusBadRequest, err.Error())
				return
			}
			grant, err := a.accounts.GrantDomain(r.Context(), userID, req.Domain, s.Username())
			if err != nil {
				handleAuthError(w, r, err)
				return
			}
			a.audit(r.Context(), "admin.grant.domain", "user", userID, map[string]string{
				"domain": grant.Domain,
			})
			writeJSON(w, http.StatusCreated, grant)
		case len(rest) == 2 && r.Method == http.MethodDelete:
			if err := a.accounts.RevokeDomain(r.Context(), userID, rest[1]); err != nil {
				handleAuthError(w, r, err)
				return
			}
			a.audit(r.Context(), "admin.revoke.domain", "user", userID, map[string]string{
				"domain": rest[1],
			})
			w.WriteHeader(http.StatusNoContent)
		case len(rest) == 1:
			methodNotAllowed(w, r, http.MethodPost)
		case len(rest) == 2:
			methodNotAllowed(w, r, http.MethodDelete)
		default:
			writeError(w, r, http.StatusNotFound, "resource not found")
		}
	case "tables":
		switch {
		case len(rest) == 1 && r.Method == http.MethodPost:
			var req grantTableRequest
			if err := decodeJSON(w, r, &req); err != nil {
				writeError(w, r, http.StatusBadRequest, err.Error())
				return
			}
			ref := auth.TableRef{Domain: req.Domain, Schema: req.Schema, Table: req.Table}
			grant, err := a.accounts.GrantTable(r.Context(), userID, ref, s.Username())
			if err != nil {
				handleAuthError(w, r, err)
				return
			}
			a.audit(r.Context(), "admin.grant.table", "user", userID, map[string]string{
				"table": grant.Table.String(),
			})
			writeJSON(w, http.StatusCreated, grant)
		case len(rest) == 4 && r.Method == http.MethodDelete:
			ref := auth.TableRef{Domain: rest[1], Schema: rest[2], Table: rest[3]}
			if err := a.accounts.RevokeTable(r.Context(), userID, ref); err != nil {
				handleAuthError(w, r, err)
				return
			}
			a.audit(r.Context(), "admin.revoke.table", "user", userID, map[string]string{
				"table": ref.String(),
			})
			w.WriteHeader(http.StatusNoContent)
		case len(rest) == 1:
			methodNotAllowed(w, r, http.MethodPost)
		case len(rest) == 4:
			methodNotAllowed(w, r, http.MethodDelete)
		default:
			writeError(w, r, http.StatusNotFound, "resource not found")
		}
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}
