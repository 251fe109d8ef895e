package auth

import (
	"github.com/angelmondragon/partsrunner-backend/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID int64
	Role   enums.ActorRole
	JTI    string
}

// AccessTokenClaims represents the typed JWT presented by runners and
// dispatchers.
type AccessTokenClaims struct {
	UserID int64           `json:"user_id"`
	Role   enums.ActorRole `json:"role"`
	jwt.RegisteredClaims
}
