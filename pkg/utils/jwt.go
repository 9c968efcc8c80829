// Package utils 提供通用工具函数
package utils

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// clockSkew 网关与工作流引擎之间允许的时钟偏差
const clockSkew = 30 * time.Second

// Claims 网关签发或校验的令牌声明
type Claims struct {
	ClientID string `json:"client_id"`
	Scope    string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// HasScope 判断空格分隔的 scope 中是否包含 want
func (c *Claims) HasScope(want string) bool {
	for _, s := range strings.Fields(c.Scope) {
		if s == want {
			return true
		}
	}
	return false
}

// JWTManager HS256 令牌的签发与校验，issuer 非空时校验签发方
type JWTManager struct {
	key    []byte
	issuer string
	parser *jwt.Parser
}

// NewJWTManager 创建 JWT 管理器
func NewJWTManager(secret, issuer string) *JWTManager {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(clockSkew),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &JWTManager{key: []byte(secret), issuer: issuer, parser: jwt.NewParser(opts...)}
}

// GenerateToken 签发令牌，audience 为空时不写 aud
func (m *JWTManager) GenerateToken(clientID, scope, audience string, ttl time.Duration) (string, error) {
	now := time.Now()
	rc := jwt.RegisteredClaims{
		Subject:   clientID,
		Issuer:    m.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	if audience != "" {
		rc.Audience = jwt.ClaimStrings{audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		ClientID:         clientID,
		Scope:            scope,
		RegisteredClaims: rc,
	}).SignedString(m.key)
}

// ParseToken 校验签名、有效期与签发方，过期返回 ErrExpiredToken，其余失败统一为 ErrInvalidToken
func (m *JWTManager) ParseToken(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := m.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return m.key, nil
	})
	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	default:
		return nil, ErrInvalidToken
	}
}
