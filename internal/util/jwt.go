package util

import (
	"time"

	"lms_backend/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Claims 身份层签发的 token 内容，本服务只负责解析
type Claims struct {
	UserID         uint           `json:"userId"`
	Role           model.UserRole `json:"role"`
	OrganizationID uint           `json:"organizationId"`
	jwt.RegisteredClaims
}

// Caller 返回业务层使用的调用方信息
func (c *Claims) Caller() model.Caller {
	return model.Caller{
		UserID:         c.UserID,
		Role:           c.Role,
		OrganizationID: c.OrganizationID,
	}
}

// GenerateJWT 供测试和本地调试使用
func GenerateJWT(caller model.Caller, secret string, expiration time.Duration) (string, error) {
	claims := &Claims{
		UserID:         caller.UserID,
		Role:           caller.Role,
		OrganizationID: caller.OrganizationID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiration)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ParseJWT(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, jwt.ErrTokenInvalidClaims
}

func GetUserFromContext(c *gin.Context) *Claims {
	user, exists := c.Get(UserContextKey)
	if !exists {
		return nil
	}
	claims, ok := user.(*Claims)
	if !ok {
		return nil
	}
	return claims
}
