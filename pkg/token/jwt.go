// Package token 提供了用于生成和验证 JSON Web Tokens (JWT) 的功能。
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTManager 负责会话令牌的签发与校验。
type JWTManager struct {
	secretKey []byte        // 签名与校验使用的密钥
	tokenDur  time.Duration // 会话令牌有效期
	now       func() time.Time
}

// ConversationClaims 是会话令牌中携带的数据，令牌只授权访问一个会话。
type ConversationClaims struct {
	ConversationID string `json:"conversationId"`
	ClientID       string `json:"clientId,omitempty"`
	jwt.RegisteredClaims
}

// NewJWTManager 创建一个新的 JWTManager 实例。
// conversationExpireHours: 会话令牌的过期时间（小时），非正数时取 12 小时。
func NewJWTManager(secret string, conversationExpireHours int) *JWTManager {
	if conversationExpireHours <= 0 {
		conversationExpireHours = 12
	}
	return &JWTManager{
		secretKey: []byte(secret),
		tokenDur:  time.Hour * time.Duration(conversationExpireHours),
		now:       time.Now,
	}
}

// GenerateConversationToken 为指定会话签发令牌。
func (m *JWTManager) GenerateConversationToken(conversationID, clientID string) (string, error) {
	now := m.now()
	claims := ConversationClaims{
		ConversationID: conversationID,
		ClientID:       clientID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   conversationID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenDur)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secretKey)
}

// VerifyToken 验证给定的 token 字符串。
// 签名不匹配、已过期或缺少会话 ID 时返回错误。
func (m *JWTManager) VerifyToken(tokenString string) (*ConversationClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ConversationClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secretKey, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*ConversationClaims); ok && token.Valid && claims.ConversationID != "" {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}
