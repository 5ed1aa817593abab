package server

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/Ignatius32/keycloak-auth-template/internal/auth"
	"github.com/Ignatius32/keycloak-auth-template/internal/db/models"
	"github.com/Ignatius32/keycloak-auth-template/internal/repository"
)

// profileResponse is the client-facing profile view.
type profileResponse struct {
	ID         int64     `json:"id"`
	KeycloakID string    `json:"keycloak_id"`
	FullName   string    `json:"full_name"`
	Phone      *string   `json:"phone"`
	Address    *string   `json:"address"`
	City       *string   `json:"city"`
	Country    *string   `json:"country"`
	Timezone   *string   `json:"timezone"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toProfileResponse(p *models.Profile) profileResponse {
	return profileResponse{
		ID:         p.ID,
		KeycloakID: p.KeycloakID,
		FullName:   p.FullName,
		Phone:      p.Phone,
		Address:    p.Address,
		City:       p.City,
		Country:    p.Country,
		Timezone:   p.Timezone,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}

// HandleGetMyProfile returns the caller's stored profile.
func HandleGetMyProfile(profiles repository.ProfileRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.ClaimsFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "not authenticated")
			return
		}

		profile, err := profiles.GetByKeycloakID(r.Context(), claims.UserID)
		if err != nil {
			if errors.Is(err, repository.ErrProfileNotFound) {
				writeError(w, http.StatusNotFound, "profile not found")
				return
			}
			log.Printf("ERROR: fetching profile for user %s: %v", claims.UserID, err)
			writeError(w, http.StatusInternalServerError, "failed to fetch profile")
			return
		}

		writeJSON(w, http.StatusOK, toProfileResponse(profile))
	}
}

// HandleCreateMyProfile creates the caller's profile. The account identity
// comes from the session token, never from the request body.
func HandleCreateMyProfile(profiles repository.ProfileRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.ClaimsFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "not authenticated")
			return
		}

		var req struct {
			FullName string  `json:"full_name"`
			Phone    *string `json:"phone"`
			Address  *string `json:"address"`
			City     *string `json:"city"`
			Country  *string `json:"country"`
			Timezone *string `json:"timezone"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}

		profile := &models.Profile{
			KeycloakID: claims.UserID,
			FullName:   req.FullName,
			Phone:      req.Phone,
			Address:    req.Address,
			City:       req.City,
			Country:    req.Country,
			Timezone:   req.Timezone,
		}
		if err := profiles.Create(r.Context(), profile); err != nil {
			if errors.Is(err, repository.ErrDuplicateProfile) {
				writeError(w, http.StatusConflict, "profile already exists")
				return
			}
			log.Printf("ERROR: creating profile for user %s: %v", claims.UserID, err)
			writeError(w, http.StatusInternalServerError, "failed to create profile")
			return
		}

		writeJSON(w, http.StatusCreated, toProfileResponse(profile))
	}
}

// HandleUpdateMyProfile applies a partial update to the caller's profile.
// Absent fields stay untouched; explicit values overwrite, including empty
// strings.
func HandleUpdateMyProfile(profiles repository.ProfileRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.ClaimsFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "not authenticated")
			return
		}

		var req struct {
			FullName *string `json:"full_name"`
			Phone    *string `json:"phone"`
			Address  *string `json:"address"`
			City     *string `json:"city"`
			Country  *string `json:"country"`
			Timezone *string `json:"timezone"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}

		profile, err := profiles.Update(r.Context(), claims.UserID, repository.ProfilePatch{
			FullName: req.FullName,
			Phone:    req.Phone,
			Address:  req.Address,
			City:     req.City,
			Country:  req.Country,
			Timezone: req.Timezone,
		})
		if err != nil {
			if errors.Is(err, repository.ErrProfileNotFound) {
				writeError(w, http.StatusNotFound, "profile not found")
				return
			}
			log.Printf("ERROR: updating profile for user %s: %v", claims.UserID, err)
			writeError(w, http.StatusInternalServerError, "failed to update profile")
			return
		}

		writeJSON(w, http.StatusOK, toProfileResponse(profile))
	}
}

// HandleListProfiles returns every stored profile. Guarded by the
// users:manage permission at the router.
func HandleListProfiles(profiles repository.ProfileRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := profiles.List(r.Context())
		if err != nil {
			log.Printf("ERROR: listing profiles: %v", err)
			writeError(w, http.StatusInternalServerError, "failed to list profiles")
			return
		}

		out := make([]profileResponse, 0, len(list))
		for i := range list {
			out = append(out, toProfileResponse(&list[i]))
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"users": out,
			"total": len(out),
		})
	}
}

// HandleStatus reports where the caller stands in the onboarding flow.
func HandleStatus(profiles repository.ProfileRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.ClaimsFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "not authenticated")
			return
		}

		resp := map[string]any{
			"has_profile":      false,
			"profile_complete": false,
			"next_step":        "create_profile",
			"user_info": map[string]any{
				"user_id":    claims.UserID,
				"username":   claims.Username,
				"email":      claims.Email,
				"first_name": claims.FirstName,
				"last_name":  claims.LastName,
			},
		}

		profile, err := profiles.GetByKeycloakID(r.Context(), claims.UserID)
		if err != nil {
			if errors.Is(err, repository.ErrProfileNotFound) {
				writeJSON(w, http.StatusOK, resp)
				return
			}
			log.Printf("ERROR: fetching status for user %s: %v", claims.UserID, err)
			writeError(w, http.StatusInternalServerError, "failed to fetch status")
			return
		}

		resp["has_profile"] = true
		resp["profile_data"] = toProfileResponse(profile)
		if profile.FullName != "" {
			resp["profile_complete"] = true
			resp["next_step"] = "ready"
		} else {
			resp["next_step"] = "complete_profile"
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
