// Package auth verifies Firebase ID tokens and resolves the owner identity
// for each request. The identity provider owns credentials and sessions; this
// package only checks tokens and extracts the stable owner id (the Firebase
// UID) that scopes every read and write.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"grana/internal/log"
)

type contextKey string

const ownerIDKey contextKey = "owner_id"

// devOwnerID is the identity assumed when verification is disabled.
const devOwnerID = "dev-user"

// TokenVerifier checks an ID token and returns the owner id it asserts.
type TokenVerifier interface {
	Verify(ctx context.Context, idToken string) (string, error)
}

type firebaseVerifier struct {
	client *fbauth.Client
}

func (v *firebaseVerifier) Verify(ctx context.Context, idToken string) (string, error) {
	token, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return "", fmt.Errorf("verify ID token: %w", err)
	}
	return token.UID, nil
}

// NewFirebaseVerifier initializes the Firebase Admin SDK. credentialsJSON
// takes precedence over credentialsFile; with neither, application default
// credentials are used.
func NewFirebaseVerifier(ctx context.Context, projectID, credentialsJSON, credentialsFile string) (TokenVerifier, error) {
	var opts []option.ClientOption
	switch {
	case credentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(credentialsJSON)))
	case credentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("get firebase auth client: %w", err)
	}
	return &firebaseVerifier{client: client}, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// verified owner id in the request context. A nil verifier disables checks
// and assumes the development identity; never run that in production.
func Middleware(verifier TokenVerifier, logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				next.ServeHTTP(w, r.WithContext(WithOwnerID(r.Context(), devOwnerID)))
				return
			}

			idToken := extractToken(r.Header.Get("Authorization"))
			if idToken == "" {
				http.Error(w, "unauthorized: no token provided", http.StatusUnauthorized)
				return
			}

			ownerID, err := verifier.Verify(r.Context(), idToken)
			if err != nil {
				logger.WarnContext(r.Context(), "token verification failed", log.FieldError, err.Error())
				http.Error(w, "unauthorized: invalid token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithOwnerID(r.Context(), ownerID)))
		})
	}
}

// extractToken gets the token from the Authorization header
func extractToken(authHeader string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
}

// WithOwnerID returns a context carrying the verified owner id.
func WithOwnerID(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerIDKey, ownerID)
}

// OwnerID retrieves the verified owner id, or "" when the request never
// passed through the middleware.
func OwnerID(ctx context.Context) string {
	ownerID, _ := ctx.Value(ownerIDKey).(string)
	return ownerID
}
