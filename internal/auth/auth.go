package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// APIClaims 服务端JWT声明
type APIClaims struct {
	Subject string   `json:"sub_name,omitempty"`
	Scopes  []string `json:"scopes,omitempty"`
	jwt.RegisteredClaims
}

// Service bearer凭证校验服务
// 两种凭证均可通过：配置中的静态API Key，或使用配置密钥签发的HS256 JWT
type Service struct {
	apiKeys   []string
	jwtSecret []byte
	issuer    string
}

// NewService 创建认证服务
func NewService(apiKeys []string, jwtSecret, issuer string) *Service {
	keys := make([]string, 0, len(apiKeys))
	for _, k := range apiKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return &Service{
		apiKeys:   keys,
		jwtSecret: []byte(jwtSecret),
		issuer:    issuer,
	}
}

// Enabled 是否配置了任何凭证
func (s *Service) Enabled() bool {
	return len(s.apiKeys) > 0 || len(s.jwtSecret) > 0
}

// ValidateToken 校验bearer token
func (s *Service) ValidateToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("empty token")
	}

	// 先比对静态API Key
	for _, key := range s.apiKeys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(token)) == 1 {
			return nil
		}
	}

	// 再尝试JWT
	if len(s.jwtSecret) > 0 {
		if _, err := s.parseJWT(token); err == nil {
			return nil
		} else if !errors.Is(err, jwt.ErrTokenMalformed) {
			return err
		}
	}

	return errors.New("invalid token")
}

// GenerateToken 签发HS256 token（运维工具使用）
func (s *Service) GenerateToken(subject string, scopes []string, expiresIn time.Duration) (string, error) {
	if len(s.jwtSecret) == 0 {
		return "", errors.New("jwt secret not configured")
	}
	now := time.Now()
	claims := &APIClaims{
		Subject: subject,
		Scopes:  scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// parseJWT 解析并校验JWT
func (s *Service) parseJWT(tokenString string) (*APIClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &APIClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*APIClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, errors.New("invalid token issuer")
	}
	return claims, nil
}

// ExtractBearer 从Authorization header取出token
func ExtractBearer(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}
