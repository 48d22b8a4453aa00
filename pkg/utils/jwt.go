package utils

import (
	"time"

	"shop_backend/internal/pkg/config"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenIssuer = "shop-backend"

// Claims 自定义JWT Claims，Subject 与 UserID 一致
type Claims struct {
	UserID string `json:"user_id"`
	Role   int    `json:"role"`
	jwt.RegisteredClaims
}

func tokenTTL() time.Duration {
	ttl := time.Duration(config.GlobalConfig.JWT.Expire) * time.Hour
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return ttl
}

// GenerateToken 签发访问令牌，返回过期时间
func GenerateToken(userID string, role int) (string, *time.Time, error) {
	if userID == "" {
		return "", nil, errors.New("empty user id")
	}
	now := time.Now()
	expireTime := now.Add(tokenTTL())

	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expireTime),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(config.GlobalConfig.JWT.Secret))
	if err != nil {
		return "", nil, errors.Wrap(err, "sign token")
	}
	return token, &expireTime, nil
}

// ParseToken 校验签名算法、签发方与过期时间
func ParseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(config.GlobalConfig.JWT.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, errors.Wrap(err, "parse token")
	}
	if claims.UserID == "" || claims.Subject != claims.UserID {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}
