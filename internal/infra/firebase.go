// README: Firebase Admin SDK initialisation, token verifier, Firestore and FCM clients.
package infra

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// FirebaseToken holds the verified token data used by downstream middleware.
type FirebaseToken struct {
	UID    string
	Claims map[string]interface{}
}

// TokenVerifier verifies a raw Firebase ID token string and returns token data.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*FirebaseToken, error)
}

// Firebase bundles the clients built from one Admin SDK app.
type Firebase struct {
	App       *firebase.App
	Firestore *firestore.Client
	Messaging *messaging.Client
	Verifier  TokenVerifier
}

// NewFirebase initialises the Admin SDK for projectID. If credentialsFile is non-empty it is used as the
// service-account JSON path; otherwise application-default credentials are used.
func NewFirebase(ctx context.Context, projectID, credentialsFile string) (*Firebase, error) {
	opts := []option.ClientOption{}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase.NewApp: %w", err)
	}
	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase app.Auth: %w", err)
	}
	fs, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase app.Firestore: %w", err)
	}
	msg, err := app.Messaging(ctx)
	if err != nil {
		_ = fs.Close()
		return nil, fmt.Errorf("firebase app.Messaging: %w", err)
	}
	return &Firebase{
		App:       app,
		Firestore: fs,
		Messaging: msg,
		Verifier:  &firebaseVerifier{client: authClient},
	}, nil
}

func (f *Firebase) Close() error {
	return f.Firestore.Close()
}

// firebaseVerifier is the production implementation backed by the Firebase Admin SDK.
type firebaseVerifier struct {
	client *auth.Client
}

func (v *firebaseVerifier) VerifyIDToken(ctx context.Context, idToken string) (*FirebaseToken, error) {
	token, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, err
	}
	return &FirebaseToken{UID: token.UID, Claims: token.Claims}, nil
}

// LocalVerifier accepts "<uid>" or "<uid>|<role>" as the token. It is only wired when no
// Firebase project is configured, for local runs and the bench tool.
type LocalVerifier struct{}

func (LocalVerifier) VerifyIDToken(_ context.Context, idToken string) (*FirebaseToken, error) {
	uid, role, _ := strings.Cut(idToken, "|")
	if uid == "" {
		return nil, errors.New("empty token")
	}
	claims := map[string]interface{}{}
	if role != "" {
		claims["role"] = role
	}
	return &FirebaseToken{UID: uid, Claims: claims}, nil
}
