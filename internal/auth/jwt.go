package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/straye-as/blob-processor/internal/config"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrMissingRole  = errors.New("token missing required role")
)

// KeySource returns the RSA public key for a token key ID
type KeySource interface {
	PublicKey(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

// DeliveryValidator validates the Azure AD tokens Event Grid attaches to
// webhook deliveries when the subscription uses AAD authentication.
type DeliveryValidator struct {
	config *config.EventGridConfig
	keys   KeySource
}

// NewDeliveryValidator creates a validator that fetches signing keys from the tenant's JWKS endpoint
func NewDeliveryValidator(cfg *config.EventGridConfig) *DeliveryValidator {
	return NewDeliveryValidatorWithKeys(cfg, NewJWKSKeySource(JWKSURL(cfg.InstanceUrl, cfg.TenantId), nil))
}

// NewDeliveryValidatorWithKeys creates a validator with a custom key source
func NewDeliveryValidatorWithKeys(cfg *config.EventGridConfig, keys KeySource) *DeliveryValidator {
	return &DeliveryValidator{config: cfg, keys: keys}
}

// ValidateToken validates a bearer token and returns the calling principal
func (v *DeliveryValidator) ValidateToken(ctx context.Context, tokenString string) (*Delivery, error) {
	// Parse token without validation first to get header
	token, _, err := new(jwt.Parser).ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	kid, ok := token.Header["kid"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: missing kid in header", ErrInvalidToken)
	}

	publicKey, err := v.keys.PublicKey(ctx, kid)
	if err != nil {
		return nil, fmt.Errorf("failed to get public key: %w", err)
	}

	claims := jwt.MapClaims{}
	parsedToken, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return publicKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !parsedToken.Valid {
		return nil, ErrInvalidToken
	}

	if v.config.Audience != "" {
		aud, _ := claims.GetAudience()
		validAud := false
		for _, a := range aud {
			if a == v.config.Audience {
				validAud = true
				break
			}
		}
		if !validAud {
			return nil, fmt.Errorf("%w: invalid audience", ErrInvalidToken)
		}
	}

	// v1 tokens use sts.windows.net/<tenant>/, v2 tokens login.microsoftonline.com/<tenant>/v2.0
	iss, _ := claims.GetIssuer()
	if v.config.TenantId == "" || !strings.Contains(iss, "/"+v.config.TenantId+"/") {
		return nil, fmt.Errorf("%w: invalid issuer", ErrInvalidToken)
	}

	delivery := &Delivery{
		AppID:    extractString(claims, "appid", "azp"),
		TenantID: extractString(claims, "tid"),
		Roles:    ExtractRoles(claims),
	}

	if v.config.RequiredRole != "" && !delivery.HasRole(v.config.RequiredRole) {
		return nil, ErrMissingRole
	}

	return delivery, nil
}

// JWKSURL returns the signing key endpoint of a tenant
func JWKSURL(instanceURL, tenantID string) string {
	return fmt.Sprintf("%s%s/discovery/v2.0/keys", instanceURL, tenantID)
}

// JWKSKeySource fetches and caches RSA signing keys from a JWKS endpoint
type JWKSKeySource struct {
	url        string
	client     *http.Client
	ttl        time.Duration
	mu         sync.RWMutex
	publicKeys map[string]*rsa.PublicKey
	lastUpdate time.Time
}

// NewJWKSKeySource creates a key source. A nil client uses a 10 second timeout.
func NewJWKSKeySource(url string, client *http.Client) *JWKSKeySource {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &JWKSKeySource{
		url:        url,
		client:     client,
		ttl:        24 * time.Hour,
		publicKeys: make(map[string]*rsa.PublicKey),
	}
}

// PublicKey returns the cached key for kid, refreshing the key set when it
// is stale or does not contain kid
func (s *JWKSKeySource) PublicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	s.mu.RLock()
	key, exists := s.publicKeys[kid]
	fresh := time.Since(s.lastUpdate) < s.ttl
	s.mu.RUnlock()
	if exists && fresh {
		return key, nil
	}

	if err := s.refresh(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	key, exists = s.publicKeys[kid]
	if !exists {
		return nil, fmt.Errorf("public key not found for kid: %s", kid)
	}
	return key, nil
}

func (s *JWKSKeySource) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return fmt.Errorf("failed to create JWKS request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	var jwks struct {
		Keys []struct {
			Kid string `json:"kid"`
			N   string `json:"n"`
			E   string `json:"e"`
			Kty string `json:"kty"`
			Use string `json:"use"`
		} `json:"keys"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return fmt.Errorf("failed to decode JWKS: %w", err)
	}

	newKeys := make(map[string]*rsa.PublicKey)
	for _, key := range jwks.Keys {
		if key.Kty != "RSA" || (key.Use != "" && key.Use != "sig") {
			continue
		}

		nBytes, err := base64.RawURLEncoding.DecodeString(key.N)
		if err != nil {
			continue
		}

		eBytes, err := base64.RawURLEncoding.DecodeString(key.E)
		if err != nil {
			continue
		}

		e := 0
		for _, b := range eBytes {
			e = e<<8 + int(b)
		}

		newKeys[key.Kid] = &rsa.PublicKey{
			N: new(big.Int).SetBytes(nBytes),
			E: e,
		}
	}

	s.mu.Lock()
	s.publicKeys = newKeys
	s.lastUpdate = time.Now()
	s.mu.Unlock()

	return nil
}

func extractString(claims jwt.MapClaims, keys ...string) string {
	for _, key := range keys {
		if val, ok := claims[key]; ok {
			if str, ok := val.(string); ok && str != "" {
				return str
			}
		}
	}
	return ""
}

// ExtractRoles extracts app roles from JWT claims
func ExtractRoles(claims jwt.MapClaims) []string {
	roles := []string{}

	for _, key := range []string{"roles", "role"} {
		if val, ok := claims[key]; ok {
			switch v := val.(type) {
			case []interface{}:
				for _, r := range v {
					if str, ok := r.(string); ok {
						roles = append(roles, str)
					}
				}
			case []string:
				roles = append(roles, v...)
			case string:
				roles = append(roles, v)
			}
		}
	}

	return roles
}
