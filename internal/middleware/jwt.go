package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Context keys set by SessionTicket.
const (
	DisplayNameKey = "display_name"
	SessionIDKey   = "session_id"
)

const ticketIssuer = "webrtc-matchmaker"

// TicketClaims is an anonymous session ticket: a display name bound to a random
// session id. It proves nothing about who the holder is.
type TicketClaims struct {
	DisplayName string `json:"display_name"`
	jwt.RegisteredClaims
}

// IssueTicket signs a ticket for displayName valid for ttl.
func IssueTicket(secret, displayName string, ttl time.Duration) (string, *TicketClaims, error) {
	now := time.Now()
	claims := &TicketClaims{
		DisplayName: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ticketIssuer,
			Subject:   uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", nil, fmt.Errorf("sign ticket: %w", err)
	}
	return signed, claims, nil
}

// ParseTicket validates a ticket's signature, algorithm, issuer and lifetime.
func ParseTicket(secret, tokenString string) (*TicketClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TicketClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(ticketIssuer))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*TicketClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid ticket claims")
	}
	return claims, nil
}

// SessionTicket reads a ticket from the "ticket" query parameter (browsers cannot
// set headers on a websocket upgrade) or a Bearer Authorization header. Valid
// tickets put the display name and session id in the context. A missing ticket
// is only an error when required is set; a bad one always is.
func SessionTicket(secret string, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.Query("ticket")
		if tokenString == "" {
			if authHeader := c.GetHeader("Authorization"); authHeader != "" {
				// Extract token from "Bearer <token>"
				parts := strings.Split(authHeader, " ")
				if len(parts) != 2 || parts[0] != "Bearer" {
					c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
						"error": "Invalid authorization header format",
					})
					return
				}
				tokenString = parts[1]
			}
		}

		if tokenString == "" {
			if required {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "Session ticket required",
				})
				return
			}
			c.Next()
			return
		}

		claims, err := ParseTicket(secret, tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid session ticket",
			})
			return
		}

		c.Set(DisplayNameKey, claims.DisplayName)
		c.Set(SessionIDKey, claims.Subject)
		c.Next()
	}
}
