package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/api/option"
)

// ErrNotAdmin is returned for any authenticated identity that is not the one
// allow-listed administrator. There is no partial access: wrong email means
// immediate rejection.
var ErrNotAdmin = errors.New("identity is not the administrator")

// Gate validates administrator identity. The primary path verifies a
// Firebase ID token and matches its email against the single allow-listed
// address; a bcrypt password hash serves deployments without Firebase
// credentials.
type Gate struct {
	fb           *fbauth.Client
	adminEmail   string
	passwordHash string
	logger       *zap.Logger
}

// NewGate builds the gate. Firebase is optional: with empty credentials only
// the password fallback is available.
func NewGate(ctx context.Context, projectID, credentialsFile, adminEmail, passwordHash string, logger *zap.Logger) (*Gate, error) {
	g := &Gate{
		adminEmail:   strings.ToLower(adminEmail),
		passwordHash: passwordHash,
		logger:       logger,
	}

	if credentialsFile != "" {
		app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID},
			option.WithCredentialsFile(credentialsFile))
		if err != nil {
			return nil, fmt.Errorf("initialize firebase app: %w", err)
		}
		client, err := app.Auth(ctx)
		if err != nil {
			return nil, fmt.Errorf("get firebase auth client: %w", err)
		}
		g.fb = client
		logger.Info("firebase identity gate enabled",
			zap.String("admin_email", g.adminEmail))
	} else {
		logger.Warn("firebase credentials not configured, admin login limited to password fallback")
	}

	return g, nil
}

// VerifyAdminToken checks a Firebase ID token and enforces the allow list.
// A valid token for the wrong email still fails with ErrNotAdmin.
func (g *Gate) VerifyAdminToken(ctx context.Context, idToken string) (string, error) {
	if g.fb == nil {
		return "", fmt.Errorf("firebase auth not configured")
	}
	token, err := g.fb.VerifyIDToken(ctx, idToken)
	if err != nil {
		return "", fmt.Errorf("verify ID token: %w", err)
	}

	email, _ := token.Claims["email"].(string)
	if strings.ToLower(email) != g.adminEmail {
		g.logger.Warn("rejected non-admin identity", zap.String("email", email))
		return "", ErrNotAdmin
	}
	return email, nil
}

// VerifyAdminPassword checks the fallback password against the configured
// bcrypt hash.
func (g *Gate) VerifyAdminPassword(password string) error {
	if g.passwordHash == "" {
		return fmt.Errorf("password fallback not configured")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(g.passwordHash), []byte(password)); err != nil {
		return ErrNotAdmin
	}
	return nil
}

// AdminEmail returns the allow-listed address, for token claims.
func (g *Gate) AdminEmail() string {
	return g.adminEmail
}
