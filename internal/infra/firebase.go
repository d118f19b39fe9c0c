// README: Firebase Admin auth client that verifies the ID tokens devices send.
package infra

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

var ErrNoFirebaseProject = errors.New("firebase project id is required for token verification")

// FirebaseToken is the part of a verified ID token the API layer uses.
type FirebaseToken struct {
	UID    string
	Claims map[string]interface{}
}

// TokenVerifier checks a raw ID token.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*FirebaseToken, error)
}

type FirebaseOptions struct {
	ProjectID string
	// CredentialsFile is a service-account JSON path; empty means
	// application-default credentials.
	CredentialsFile string
	// CheckRevoked also rejects tokens of signed-out or disabled users, at
	// the cost of one Auth API call per request.
	CheckRevoked bool
}

type firebaseVerifier struct {
	client       *auth.Client
	checkRevoked bool
}

func NewFirebaseVerifier(ctx context.Context, opts FirebaseOptions) (TokenVerifier, error) {
	if opts.ProjectID == "" {
		return nil, ErrNoFirebaseProject
	}
	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: opts.ProjectID}, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("firebase.NewApp: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase auth client: %w", err)
	}
	return &firebaseVerifier{client: client, checkRevoked: opts.CheckRevoked}, nil
}

func (v *firebaseVerifier) VerifyIDToken(ctx context.Context, idToken string) (*FirebaseToken, error) {
	var (
		token *auth.Token
		err   error
	)
	if v.checkRevoked {
		token, err = v.client.VerifyIDTokenAndCheckRevoked(ctx, idToken)
	} else {
		token, err = v.client.VerifyIDToken(ctx, idToken)
	}
	if err != nil {
		return nil, err
	}
	return &FirebaseToken{UID: token.UID, Claims: token.Claims}, nil
}
