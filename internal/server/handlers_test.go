package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ignatius32/keycloak-auth-template/internal/auth"
	"github.com/Ignatius32/keycloak-auth-template/internal/db/models"
	"github.com/Ignatius32/keycloak-auth-template/internal/keycloak"
	"github.com/Ignatius32/keycloak-auth-template/internal/repository"
)

// mockIdP implements keycloak.IdentityProvider with overridable functions.
// Unset functions fail the call loudly.
type mockIdP struct {
	authenticate      func(ctx context.Context, username, password string) (*keycloak.AuthenticatedUser, error)
	verifyPassword    func(ctx context.Context, username, password string) error
	createUser        func(ctx context.Context, user keycloak.NewUser) (string, error)
	assignRealmRole   func(ctx context.Context, userID, roleName string) error
	sendVerifyEmail   func(ctx context.Context, userID string) error
	findUsersByEmail  func(ctx context.Context, email string) ([]keycloak.User, error)
	sendPasswordReset func(ctx context.Context, userID string) error
	setPassword       func(ctx context.Context, userID, password string) error
}

func (m *mockIdP) Authenticate(ctx context.Context, username, password string) (*keycloak.AuthenticatedUser, error) {
	return m.authenticate(ctx, username, password)
}

func (m *mockIdP) VerifyPassword(ctx context.Context, username, password string) error {
	return m.verifyPassword(ctx, username, password)
}

func (m *mockIdP) Introspect(ctx context.Context, accessToken string) (map[string]any, error) {
	return nil, keycloak.ErrUnavailable
}

func (m *mockIdP) CreateUser(ctx context.Context, user keycloak.NewUser) (string, error) {
	return m.createUser(ctx, user)
}

func (m *mockIdP) AssignRealmRole(ctx context.Context, userID, roleName string) error {
	if m.assignRealmRole == nil {
		return nil
	}
	return m.assignRealmRole(ctx, userID, roleName)
}

func (m *mockIdP) SendVerifyEmail(ctx context.Context, userID string) error {
	if m.sendVerifyEmail == nil {
		return nil
	}
	return m.sendVerifyEmail(ctx, userID)
}

func (m *mockIdP) FindUsersByEmail(ctx context.Context, email string) ([]keycloak.User, error) {
	return m.findUsersByEmail(ctx, email)
}

func (m *mockIdP) SendPasswordReset(ctx context.Context, userID string) error {
	return m.sendPasswordReset(ctx, userID)
}

func (m *mockIdP) SetPassword(ctx context.Context, userID, password string) error {
	return m.setPassword(ctx, userID, password)
}

func (m *mockIdP) GetUser(ctx context.Context, userID string) (*keycloak.User, error) {
	return nil, keycloak.ErrUserNotFound
}

// mockProfiles is an in-memory ProfileRepository.
type mockProfiles struct {
	mu       sync.Mutex
	nextID   int64
	profiles map[string]*models.Profile
}

func newMockProfiles() *mockProfiles {
	return &mockProfiles{profiles: map[string]*models.Profile{}}
}

func (m *mockProfiles) GetByKeycloakID(_ context.Context, keycloakID string) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[keycloakID]
	if !ok {
		return nil, repository.ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockProfiles) Create(_ context.Context, profile *models.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[profile.KeycloakID]; ok {
		return repository.ErrDuplicateProfile
	}
	m.nextID++
	profile.ID = m.nextID
	now := time.Now()
	profile.CreatedAt = now
	profile.UpdatedAt = now
	cp := *profile
	m.profiles[profile.KeycloakID] = &cp
	return nil
}

func (m *mockProfiles) Update(_ context.Context, keycloakID string, patch repository.ProfilePatch) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[keycloakID]
	if !ok {
		return nil, repository.ErrProfileNotFound
	}
	if patch.FullName != nil {
		p.FullName = *patch.FullName
	}
	if patch.Phone != nil {
		p.Phone = patch.Phone
	}
	if patch.Address != nil {
		p.Address = patch.Address
	}
	if patch.City != nil {
		p.City = patch.City
	}
	if patch.Country != nil {
		p.Country = patch.Country
	}
	if patch.Timezone != nil {
		p.Timezone = patch.Timezone
	}
	p.UpdatedAt = time.Now()
	cp := *p
	return &cp, nil
}

func (m *mockProfiles) List(_ context.Context) ([]models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		out = append(out, *p)
	}
	return out, nil
}

var testTokens = auth.NewTokenIssuer([]byte("server-test-secret"), 30*time.Minute)

func newTestRouter(idp keycloak.IdentityProvider, profiles repository.ProfileRepository) http.Handler {
	return NewRouter(RouterOptions{
		IdP:      idp,
		Profiles: profiles,
		Tokens:   testTokens,
	})
}

func sessionToken(t *testing.T, roleNames ...string) string {
	t.Helper()
	token, err := testTokens.Issue(auth.SessionClaims{
		Username: "jdoe",
		Email:    "jdoe@example.com",
		Roles:    roleNames,
		UserID:   "kc-123",
	})
	require.NoError(t, err)
	return token
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestLogin(t *testing.T) {
	idp := &mockIdP{
		authenticate: func(_ context.Context, username, password string) (*keycloak.AuthenticatedUser, error) {
			if username != "jdoe" || password != "hunter2" {
				return nil, keycloak.ErrInvalidCredentials
			}
			return &keycloak.AuthenticatedUser{
				UserInfo: keycloak.UserInfo{
					Subject:   "kc-123",
					Username:  "jdoe",
					Email:     "jdoe@example.com",
					FirstName: "Jane",
					LastName:  "Doe",
				},
				Claims: map[string]any{
					"realm_access": map[string]any{
						"roles": []any{"user", "offline_access", "default-roles-myrealm"},
					},
				},
			}, nil
		},
	}
	router := newTestRouter(idp, newMockProfiles())

	t.Run("success", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/auth/login", "", map[string]string{
			"username": "jdoe", "password": "hunter2",
		})
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeBody(t, rec)
		assert.Equal(t, "bearer", body["token_type"])
		assert.EqualValues(t, 1800, body["expires_in"])

		claims, err := testTokens.Verify(body["token"].(string))
		require.NoError(t, err)
		assert.Equal(t, "jdoe", claims.Username)
		assert.Equal(t, "kc-123", claims.UserID)
		// Reserved roles never reach the session token.
		assert.Equal(t, []string{"user"}, claims.Roles)
	})

	t.Run("bad credentials", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/auth/login", "", map[string]string{
			"username": "jdoe", "password": "wrong",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing fields", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/auth/login", "", map[string]string{
			"username": "jdoe",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLoginProviderDown(t *testing.T) {
	idp := &mockIdP{
		authenticate: func(context.Context, string, string) (*keycloak.AuthenticatedUser, error) {
			return nil, keycloak.ErrUnavailable
		},
	}
	router := newTestRouter(idp, newMockProfiles())

	rec := doJSON(t, router, http.MethodPost, "/auth/login", "", map[string]string{
		"username": "jdoe", "password": "hunter2",
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRegister(t *testing.T) {
	t.Run("success with failing verify email", func(t *testing.T) {
		var created keycloak.NewUser
		var assignedRole string
		idp := &mockIdP{
			createUser: func(_ context.Context, user keycloak.NewUser) (string, error) {
				created = user
				return "new-id", nil
			},
			assignRealmRole: func(_ context.Context, userID, roleName string) error {
				assignedRole = roleName
				return nil
			},
			sendVerifyEmail: func(context.Context, string) error {
				return keycloak.ErrUnavailable
			},
		}
		router := newTestRouter(idp, newMockProfiles())

		rec := doJSON(t, router, http.MethodPost, "/auth/register", "", map[string]string{
			"username": "newbie", "password": "pw", "email": "newbie@example.com",
		})
		require.Equal(t, http.StatusCreated, rec.Code)

		body := decodeBody(t, rec)
		assert.Equal(t, "new-id", body["user_id"])
		assert.Equal(t, "newbie", created.Username)
		// Role defaults to user and still gets assigned.
		assert.Equal(t, "user", assignedRole)
	})

	t.Run("email is optional", func(t *testing.T) {
		verifySent := false
		idp := &mockIdP{
			createUser: func(_ context.Context, user keycloak.NewUser) (string, error) {
				assert.Empty(t, user.Email)
				return "new-id", nil
			},
			sendVerifyEmail: func(context.Context, string) error {
				verifySent = true
				return nil
			},
		}
		router := newTestRouter(idp, newMockProfiles())

		rec := doJSON(t, router, http.MethodPost, "/auth/register", "", map[string]string{
			"username": "newbie", "password": "pw",
		})
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "new-id", decodeBody(t, rec)["user_id"])
		// No address to verify, so no mail is triggered.
		assert.False(t, verifySent)
	})

	t.Run("duplicate", func(t *testing.T) {
		idp := &mockIdP{
			createUser: func(context.Context, keycloak.NewUser) (string, error) {
				return "", keycloak.ErrUserExists
			},
		}
		router := newTestRouter(idp, newMockProfiles())

		rec := doJSON(t, router, http.MethodPost, "/auth/register", "", map[string]string{
			"username": "newbie", "password": "pw", "email": "newbie@example.com",
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("missing fields", func(t *testing.T) {
		router := newTestRouter(&mockIdP{}, newMockProfiles())
		rec := doJSON(t, router, http.MethodPost, "/auth/register", "", map[string]string{
			"username": "newbie",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestPasswordResetAlwaysSucceeds(t *testing.T) {
	tests := []struct {
		name string
		idp  *mockIdP
	}{
		{
			name: "known email",
			idp: &mockIdP{
				findUsersByEmail: func(context.Context, string) ([]keycloak.User, error) {
					return []keycloak.User{{ID: "kc-123"}}, nil
				},
				sendPasswordReset: func(context.Context, string) error { return nil },
			},
		},
		{
			name: "unknown email",
			idp: &mockIdP{
				findUsersByEmail: func(context.Context, string) ([]keycloak.User, error) {
					return nil, nil
				},
			},
		},
		{
			name: "provider down",
			idp: &mockIdP{
				findUsersByEmail: func(context.Context, string) ([]keycloak.User, error) {
					return nil, keycloak.ErrUnavailable
				},
			},
		},
		{
			name: "send fails",
			idp: &mockIdP{
				findUsersByEmail: func(context.Context, string) ([]keycloak.User, error) {
					return []keycloak.User{{ID: "kc-123"}}, nil
				},
				sendPasswordReset: func(context.Context, string) error {
					return keycloak.ErrUnavailable
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(tt.idp, newMockProfiles())
			rec := doJSON(t, router, http.MethodPost, "/auth/password-reset", "", map[string]string{
				"email": "someone@example.com",
			})
			require.Equal(t, http.StatusOK, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, true, body["success"])
		})
	}
}

func TestChangePassword(t *testing.T) {
	idp := &mockIdP{
		verifyPassword: func(_ context.Context, _, password string) error {
			if password != "hunter2" {
				return keycloak.ErrInvalidCredentials
			}
			return nil
		},
		setPassword: func(context.Context, string, string) error { return nil },
	}
	router := newTestRouter(idp, newMockProfiles())
	token := sessionToken(t, "user")

	t.Run("success", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/auth/change-password", token, map[string]string{
			"current_password": "hunter2", "new_password": "hunter3",
		})
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("wrong current password", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/auth/change-password", token, map[string]string{
			"current_password": "wrong", "new_password": "hunter3",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/auth/change-password", "", map[string]string{
			"current_password": "hunter2", "new_password": "hunter3",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestMe(t *testing.T) {
	router := newTestRouter(&mockIdP{}, newMockProfiles())

	rec := doJSON(t, router, http.MethodGet, "/auth/me", sessionToken(t, "user", "admin"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "jdoe", body["username"])
	assert.Equal(t, "kc-123", body["user_id"])
	assert.Equal(t, []any{"user", "admin"}, body["roles"])
}

func TestMyRoles(t *testing.T) {
	router := newTestRouter(&mockIdP{}, newMockProfiles())

	rec := doJSON(t, router, http.MethodGet, "/auth/me/roles", sessionToken(t, "admin"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Contains(t, body["permissions"], "users:manage")
	levels, ok := body["access_levels"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, levels["is_admin"])
	assert.Equal(t, true, levels["can_moderate"])
	assert.Equal(t, false, levels["can_access_api"])
}

func TestProfileLifecycle(t *testing.T) {
	router := newTestRouter(&mockIdP{}, newMockProfiles())
	token := sessionToken(t, "user")

	// No profile yet.
	rec := doJSON(t, router, http.MethodGet, "/users/me", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/auth/status", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["has_profile"])
	assert.Equal(t, "create_profile", body["next_step"])

	// Create.
	rec = doJSON(t, router, http.MethodPost, "/users/me", token, map[string]any{
		"full_name": "Jane Doe",
		"phone":     "+1-555-0100",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	body = decodeBody(t, rec)
	assert.Equal(t, "kc-123", body["keycloak_id"])
	assert.Equal(t, "Jane Doe", body["full_name"])

	// Duplicate create.
	rec = doJSON(t, router, http.MethodPost, "/users/me", token, map[string]any{
		"full_name": "Jane Again",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Partial update leaves absent fields alone.
	rec = doJSON(t, router, http.MethodPut, "/users/me", token, map[string]any{
		"city": "Lisbon",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	assert.Equal(t, "Jane Doe", body["full_name"])
	assert.Equal(t, "+1-555-0100", body["phone"])
	assert.Equal(t, "Lisbon", body["city"])

	// Status now reports a complete profile.
	rec = doJSON(t, router, http.MethodGet, "/auth/status", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	assert.Equal(t, true, body["has_profile"])
	assert.Equal(t, true, body["profile_complete"])
	assert.Equal(t, "ready", body["next_step"])
}

func TestUpdateMissingProfile(t *testing.T) {
	router := newTestRouter(&mockIdP{}, newMockProfiles())

	rec := doJSON(t, router, http.MethodPut, "/users/me", sessionToken(t, "user"), map[string]any{
		"city": "Lisbon",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminUsersGuard(t *testing.T) {
	profiles := newMockProfiles()
	require.NoError(t, profiles.Create(context.Background(), &models.Profile{
		KeycloakID: "kc-123", FullName: "Jane Doe",
	}))
	router := newTestRouter(&mockIdP{}, profiles)

	t.Run("admin allowed", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/admin/users", sessionToken(t, "admin"), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.EqualValues(t, 1, body["total"])
	})

	t.Run("plain user forbidden", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/admin/users", sessionToken(t, "user"), nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("anonymous unauthorized", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/admin/users", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestModerationQueueGuard(t *testing.T) {
	router := newTestRouter(&mockIdP{}, newMockProfiles())

	t.Run("moderator allowed", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/moderator/content", sessionToken(t, "moderator"), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "jdoe", decodeBody(t, rec)["moderator"])
	})

	t.Run("admin allowed", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/moderator/content", sessionToken(t, "admin"), nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("plain user forbidden", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/moderator/content", sessionToken(t, "user"), nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestRootAndHealth(t *testing.T) {
	router := newTestRouter(&mockIdP{}, newMockProfiles())

	rec := doJSON(t, router, http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "running", decodeBody(t, rec)["status"])

	rec = doJSON(t, router, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "unconfigured", body["database"])
}
