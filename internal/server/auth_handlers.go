package server

import (
	"errors"
	"log"
	"net/http"

	"github.com/Ignatius32/keycloak-auth-template/internal/auth"
	"github.com/Ignatius32/keycloak-auth-template/internal/keycloak"
	"github.com/Ignatius32/keycloak-auth-template/internal/roles"
)

// HandleLogin checks credentials against Keycloak and issues a session token
// carrying the user's filtered role names.
func HandleLogin(idp keycloak.IdentityProvider, tokens *auth.TokenIssuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Username == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, "username and password are required")
			return
		}

		user, err := idp.Authenticate(r.Context(), req.Username, req.Password)
		if err != nil {
			switch {
			case errors.Is(err, keycloak.ErrInvalidCredentials):
				writeError(w, http.StatusUnauthorized, "invalid username or password")
			case errors.Is(err, keycloak.ErrUnavailable):
				log.Printf("ERROR: login for %q: %v", req.Username, err)
				writeError(w, http.StatusServiceUnavailable, "authentication service unavailable")
			default:
				log.Printf("ERROR: login for %q: %v", req.Username, err)
				writeError(w, http.StatusInternalServerError, "login failed")
			}
			return
		}

		assertions, err := roles.Extract(user.Claims)
		if err != nil {
			log.Printf("WARNING: malformed role claims for %q: %v", req.Username, err)
			writeError(w, http.StatusUnauthorized, "invalid username or password")
			return
		}

		claims := auth.SessionClaims{
			Username:  user.Username,
			Email:     user.Email,
			FirstName: user.FirstName,
			LastName:  user.LastName,
			Roles:     roles.Names(assertions),
			UserID:    user.Subject,
		}
		claims.Subject = user.Username

		token, err := tokens.Issue(claims)
		if err != nil {
			log.Printf("ERROR: issuing session token for %q: %v", req.Username, err)
			writeError(w, http.StatusInternalServerError, "login failed")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"token":      token,
			"token_type": "bearer",
			"expires_in": int(tokens.TTL().Seconds()),
		})
	}
}

// HandleRegister creates an unverified Keycloak account, assigns its realm
// role, and triggers the verification mail. The mail send is best-effort;
// registration succeeds even when it fails.
func HandleRegister(idp keycloak.IdentityProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username  string `json:"username"`
			Password  string `json:"password"`
			Email     string `json:"email"`
			FirstName string `json:"first_name"`
			LastName  string `json:"last_name"`
			Role      string `json:"role"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Username == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, "username and password are required")
			return
		}
		if req.Role == "" {
			req.Role = "user"
		}

		ctx := r.Context()
		userID, err := idp.CreateUser(ctx, keycloak.NewUser{
			Username:  req.Username,
			Password:  req.Password,
			Email:     req.Email,
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Role:      req.Role,
		})
		if err != nil {
			switch {
			case errors.Is(err, keycloak.ErrUserExists):
				writeError(w, http.StatusConflict, "username or email already exists")
			case errors.Is(err, keycloak.ErrUnavailable):
				log.Printf("ERROR: registering %q: %v", req.Username, err)
				writeError(w, http.StatusServiceUnavailable, "registration service unavailable")
			default:
				log.Printf("ERROR: registering %q: %v", req.Username, err)
				writeError(w, http.StatusInternalServerError, "registration failed")
			}
			return
		}

		if err := idp.AssignRealmRole(ctx, userID, req.Role); err != nil {
			// The account exists; a missing role grant is recoverable by an
			// admin and must not orphan the registration.
			log.Printf("WARNING: assigning role %q to user %s: %v", req.Role, userID, err)
		}

		message := "User created successfully."
		if req.Email != "" {
			if err := idp.SendVerifyEmail(ctx, userID); err != nil {
				log.Printf("WARNING: sending verification email to user %s: %v", userID, err)
			}
			message = "User created successfully. Please check your email to verify your account."
		}

		writeJSON(w, http.StatusCreated, map[string]string{
			"user_id": userID,
			"message": message,
		})
	}
}

// HandlePasswordReset triggers a reset mail for the account matching the
// email. The response never reveals whether the account exists; lookup and
// send failures are logged and swallowed.
func HandlePasswordReset(idp keycloak.IdentityProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email string `json:"email"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Email == "" {
			writeError(w, http.StatusBadRequest, "email is required")
			return
		}

		ctx := r.Context()
		users, err := idp.FindUsersByEmail(ctx, req.Email)
		if err != nil {
			log.Printf("WARNING: password reset lookup for %q: %v", req.Email, err)
		}
		for _, user := range users {
			if err := idp.SendPasswordReset(ctx, user.ID); err != nil {
				log.Printf("WARNING: sending password reset to user %s: %v", user.ID, err)
			}
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "If the email exists, a password reset link has been sent.",
		})
	}
}

// HandleChangePassword re-verifies the current password against Keycloak
// before setting the new one.
func HandleChangePassword(idp keycloak.IdentityProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.ClaimsFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "not authenticated")
			return
		}

		var req struct {
			CurrentPassword string `json:"current_password"`
			NewPassword     string `json:"new_password"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.CurrentPassword == "" || req.NewPassword == "" {
			writeError(w, http.StatusBadRequest, "current_password and new_password are required")
			return
		}

		ctx := r.Context()
		if err := idp.VerifyPassword(ctx, claims.Username, req.CurrentPassword); err != nil {
			switch {
			case errors.Is(err, keycloak.ErrInvalidCredentials):
				writeError(w, http.StatusBadRequest, "current password is incorrect")
			case errors.Is(err, keycloak.ErrUnavailable):
				log.Printf("ERROR: password verify for %q: %v", claims.Username, err)
				writeError(w, http.StatusServiceUnavailable, "authentication service unavailable")
			default:
				log.Printf("ERROR: password verify for %q: %v", claims.Username, err)
				writeError(w, http.StatusInternalServerError, "password change failed")
			}
			return
		}

		if err := idp.SetPassword(ctx, claims.UserID, req.NewPassword); err != nil {
			log.Printf("ERROR: setting password for user %s: %v", claims.UserID, err)
			if errors.Is(err, keycloak.ErrUnavailable) {
				writeError(w, http.StatusServiceUnavailable, "authentication service unavailable")
				return
			}
			writeError(w, http.StatusInternalServerError, "password change failed")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "Password changed successfully.",
		})
	}
}

// HandleMe returns the identity claims from the session token.
func HandleMe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.ClaimsFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "not authenticated")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"user_id":    claims.UserID,
			"username":   claims.Username,
			"email":      claims.Email,
			"first_name": claims.FirstName,
			"last_name":  claims.LastName,
			"roles":      claims.Roles,
		})
	}
}

// HandleModerationQueue returns the pending moderation items. Access is
// restricted to the admin and moderator roles at the router.
func HandleModerationQueue() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.ClaimsFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "not authenticated")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"message":       "Moderation access granted",
			"pending_items": []string{},
			"moderator":     claims.Username,
		})
	}
}

// HandleMyRoles derives the effective permission set from the session roles.
func HandleMyRoles() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.ClaimsFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "not authenticated")
			return
		}

		effective := roles.Compute(roles.AssertionsFromNames(claims.Roles))

		writeJSON(w, http.StatusOK, map[string]any{
			"user_id":       claims.UserID,
			"username":      claims.Username,
			"roles":         claims.Roles,
			"permissions":   effective.Permissions,
			"access_levels": effective.AccessLevels,
			"role_details":  effective.RoleDetails,
		})
	}
}
