// Package auth implements AuthService and RoleManager: bearer-token
// extraction and verification, and email-allow-list-derived authorization.
package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"

	"github.com/vimarsh/guidance/internal/domain"
)

// Mode selects which validation path AuthService takes.
type Mode string

const (
	ModeDevelopment Mode = "development"
	ModeProduction  Mode = "production"
)

// microsoftGraphAudience is the fixed Microsoft Graph service-principal
// application id, confirmed against unified_auth_service.py's audience
// tolerance list.
const microsoftGraphAudience = "00000003-0000-0000-c000-000000000000"

// devToken is a fixed well-known test token mapped to a synthetic user.
// Used only when Mode is ModeDevelopment.
type devToken struct {
	subject string
	email   string
	role    domain.Role
}

var devTokens = map[string]devToken{
	"dev-token":   {subject: "dev-user", email: "dev@vimarsh.local", role: domain.RoleUser},
	"admin-token": {subject: "dev-admin", email: "admin@vimarsh.local", role: domain.RoleAdmin},
	"test-token":  {subject: "test-user", email: "test@vimarsh.local", role: domain.RoleUser},
}

const cachedTokenTTL = 55 * time.Minute

type cachedValidation struct {
	user      domain.AuthenticatedUser
	expiresAt time.Time
}

// AuthService extracts and verifies a bearer token and derives the
// requesting user's role and permissions.
type AuthService struct {
	mode     Mode
	issuer   string
	audience []string
	jwks     *JWKSCache
	roles    *RoleManager

	httpClient *http.Client

	mu    sync.Mutex
	cache map[string]cachedValidation
}

// NewAuthService creates an AuthService. issuer is the Entra tenant's OIDC
// issuer URL; clientID is the application's registered client id, used to
// build the tolerant audience set.
func NewAuthService(mode Mode, issuer, clientID string, roles *RoleManager) *AuthService {
	return &AuthService{
		mode:   mode,
		issuer: issuer,
		audience: []string{
			clientID,
			fmt.Sprintf("api://%s", clientID),
			"https://graph.microsoft.com",
			microsoftGraphAudience,
		},
		jwks:       NewJWKSCache(),
		roles:      roles,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cache:      make(map[string]cachedValidation),
	}
}

// Authenticate extracts a bearer token from the Authorization header and
// returns the derived AuthenticatedUser.
func (a *AuthService) Authenticate(ctx context.Context, authHeader string) (*domain.AuthenticatedUser, error) {
	token := strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(authHeader, "Bearer "), "bearer "))
	if token == "" {
		return nil, domain.ErrNoToken
	}

	if a.mode == ModeDevelopment {
		return a.authenticateDev(token)
	}
	return a.authenticateProd(ctx, token)
}

func (a *AuthService) authenticateDev(token string) (*domain.AuthenticatedUser, error) {
	if dt, ok := devTokens[token]; ok {
		return a.buildUser(dt.subject, dt.email, dt.role), nil
	}

	// Fall back to decoding the token without signature verification, so
	// hand-rolled test JWTs work in development without a real issuer.
	claims, err := decodeUnverified(token)
	if err != nil {
		return nil, domain.ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, domain.ErrClaimsMissing
	}
	return a.buildUser(claims.Subject, claims.Email, a.roles.Role(claims.Email)), nil
}

func (a *AuthService) authenticateProd(ctx context.Context, token string) (*domain.AuthenticatedUser, error) {
	if cached, ok := a.cachedUser(token); ok {
		return &cached, nil
	}

	claims, err := parseSigned(token)
	if err != nil {
		// Not a well-formed RS256 JWT: treat as an opaque token and validate
		// against the provider's userinfo endpoint instead.
		return a.authenticateOpaque(ctx, token)
	}

	if err := a.verifySigned(ctx, token, claims); err != nil {
		return nil, err
	}

	if claims.Subject == "" || claims.Email == "" {
		return nil, domain.ErrClaimsMissing
	}

	user := a.buildUser(claims.Subject, claims.Email, a.roles.Role(claims.Email))
	a.cacheUser(token, *user)
	return user, nil
}

func (a *AuthService) authenticateOpaque(ctx context.Context, token string) (*domain.AuthenticatedUser, error) {
	userInfoURL, err := a.jwks.UserInfoURL(ctx, a.issuer)
	if err != nil {
		return nil, domain.ErrTokenInvalid
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, userInfoURL, nil)
	if err != nil {
		return nil, domain.ErrTokenInvalid
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.httpClient.Do(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, domain.ErrTokenInvalid
	}
	defer resp.Body.Close()

	var info struct {
		Subject string `json:"sub"`
		Email   string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil || info.Subject == "" {
		return nil, domain.ErrClaimsMissing
	}

	user := a.buildUser(info.Subject, info.Email, a.roles.Role(info.Email))
	a.cacheUser(token, *user)
	return user, nil
}

func (a *AuthService) buildUser(subject, email string, role domain.Role) *domain.AuthenticatedUser {
	return &domain.AuthenticatedUser{
		Subject:     subject,
		Email:       email,
		DisplayName: email,
		Role:        role,
		Permissions: a.roles.Permissions(role),
		LastLogin:   time.Now().UTC(),
		Active:      true,
	}
}

func (a *AuthService) cachedUser(token string) (domain.AuthenticatedUser, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	entry, ok := a.cache[token]
	if !ok || time.Now().After(entry.expiresAt) {
		delete(a.cache, token)
		return domain.AuthenticatedUser{}, false
	}
	return entry.user, true
}

func (a *AuthService) cacheUser(token string, user domain.AuthenticatedUser) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cache[token] = cachedValidation{user: user, expiresAt: time.Now().Add(cachedTokenTTL)}
}

// signedClaims are the claims extracted from an RS256 bearer token.
type signedClaims struct {
	Subject   string   `json:"sub"`
	Email     string   `json:"email"`
	Issuer    string   `json:"iss"`
	Audience  audience `json:"aud"`
	ExpiresAt int64    `json:"exp"`
	KeyID     string   `json:"-"`
}

// audience accepts either a single string or a JSON array, matching how
// Entra ID emits the aud claim depending on token type.
type audience []string

func (a *audience) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*a = audience{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*a = audience(many)
	return nil
}

func parseSigned(token string) (*signedClaims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("not a JWT")
	}

	headerBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("decoding header: %w", err)
	}
	var header struct {
		Kid string `json:"kid"`
		Alg string `json:"alg"`
	}
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, fmt.Errorf("decoding header: %w", err)
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}
	var claims signedClaims
	if err := json.Unmarshal(payloadBytes, &claims); err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}
	claims.KeyID = header.Kid
	return &claims, nil
}

func decodeUnverified(token string) (*signedClaims, error) {
	return parseSigned(token)
}

func (a *AuthService) verifySigned(ctx context.Context, token string, claims *signedClaims) error {
	key, err := a.jwks.Key(ctx, a.issuer, claims.KeyID)
	if err != nil {
		return domain.ErrKeyNotFound
	}

	sig, err := jose.ParseSigned(token, []jose.SignatureAlgorithm{jose.RS256})
	if err != nil {
		return domain.ErrTokenInvalid
	}
	if _, err := sig.Verify(key); err != nil {
		return domain.ErrTokenInvalid
	}

	if time.Now().Unix() > claims.ExpiresAt {
		return domain.ErrTokenExpired
	}

	if !strings.Contains(claims.Issuer, a.issuerHost()) {
		return domain.ErrIssuerInvalid
	}

	if !a.audienceAccepted(claims.Audience) {
		return domain.ErrAudienceInvalid
	}

	return nil
}

func (a *AuthService) issuerHost() string {
	return strings.TrimSuffix(strings.TrimPrefix(a.issuer, "https://"), "/")
}

func (a *AuthService) audienceAccepted(tokenAud audience) bool {
	for _, got := range tokenAud {
		for _, want := range a.audience {
			if got == want {
				return true
			}
		}
	}
	return false
}
