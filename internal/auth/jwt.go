package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/badoux/checkmail"
	"github.com/golang-jwt/jwt"
	"github.com/sebuszqo/PaymentMethods/internal/payment/domain"
)

var (
	ErrInvalidJWTToken = errors.New("JWT token is invalid")
	ErrExpiredJWTToken = errors.New("JWT token is expired")
	ErrMissingOwner    = errors.New("JWT token has no owner")
)

const DefaultJWTDuration = 10 * time.Minute

// IdentityProvider turns a bearer token into the account holder it was issued for.
type IdentityProvider interface {
	ResolveOwner(tokenString string) (domain.Owner, error)
}

type AccessTokenCustomClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	jwt.StandardClaims
}

type JWTManager struct {
	secret []byte
}

func NewJWTManager(secret string) (*JWTManager, error) {
	if secret == "" {
		return nil, errors.New("JWT secret is empty")
	}
	return &JWTManager{secret: []byte(secret)}, nil
}

func (j *JWTManager) GenerateAccessJWT(userID, email string, duration time.Duration) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", ErrMissingOwner
	}
	now := time.Now()
	claims := &AccessTokenCustomClaims{
		UserID: userID,
		Email:  email,
		StandardClaims: jwt.StandardClaims{
			Subject:   userID,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(duration).Unix(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secret)
}

func (j *JWTManager) ValidateAccessToken(tokenString string) (*AccessTokenCustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessTokenCustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidJWTToken
		}
		return j.secret, nil
	})

	if err != nil {
		var validationErr *jwt.ValidationError
		if errors.As(err, &validationErr) {
			if validationErr.Errors&(jwt.ValidationErrorExpired) != 0 {
				return nil, ErrExpiredJWTToken
			}
		}
		return nil, ErrInvalidJWTToken
	}

	claims, ok := token.Claims.(*AccessTokenCustomClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidJWTToken
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return nil, ErrMissingOwner
	}
	return claims, nil
}

// ResolveOwner validates the token and returns its owner. A malformed email
// claim is dropped rather than rejected since the processor treats it as optional.
func (j *JWTManager) ResolveOwner(tokenString string) (domain.Owner, error) {
	claims, err := j.ValidateAccessToken(tokenString)
	if err != nil {
		return domain.Owner{}, err
	}

	owner := domain.Owner{ID: claims.UserID}
	if claims.Email != "" && checkmail.ValidateFormat(claims.Email) == nil {
		owner.Email = claims.Email
	}
	return owner, nil
}
