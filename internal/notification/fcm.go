package notification

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"os"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"google.golang.org/api/option"
)

// FCMProvider delivers pushes over Firebase Cloud Messaging. Device tokens
// are looked up per user; a user with no registered device is a no-op.
type FCMProvider struct {
	client *messaging.Client
	db     *pgxpool.Pool
}

// NewFCMProvider initializes the messaging client. Credentials come from the
// FCM_SERVICE_ACCOUNT_JSON environment variable (base64 encoded), with a
// local service account key file as fallback.
func NewFCMProvider(db *pgxpool.Pool, localFilePath string) (*FCMProvider, error) {
	var opt option.ClientOption

	encodedCreds := os.Getenv("FCM_SERVICE_ACCOUNT_JSON")
	if encodedCreds != "" {
		decoded, err := base64.StdEncoding.DecodeString(encodedCreds)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 firebase credentials: %w", err)
		}
		opt = option.WithCredentialsJSON(decoded)
		log.Println("FCM provider: initializing from FCM_SERVICE_ACCOUNT_JSON")
	} else {
		if _, err := os.Stat(localFilePath); os.IsNotExist(err) {
			return nil, fmt.Errorf("local firebase key file not found: %s, and FCM_SERVICE_ACCOUNT_JSON is not set", localFilePath)
		}
		opt = option.WithCredentialsFile(localFilePath)
		log.Printf("FCM provider: initializing from local file %s", localFilePath)
	}

	app, err := firebase.NewApp(context.Background(), nil, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	client, err := app.Messaging(context.Background())
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}

	return &FCMProvider{client: client, db: db}, nil
}

func (p *FCMProvider) SendPush(ctx context.Context, userID uuid.UUID, title, body string, data map[string]any) error {
	tokens, err := p.deviceTokens(ctx, userID)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		return nil
	}

	stringData := make(map[string]string, len(data))
	for k, v := range data {
		stringData[k] = fmt.Sprintf("%v", v)
	}

	var failures int
	for _, token := range tokens {
		message := &messaging.Message{
			Token: token,
			Notification: &messaging.Notification{
				Title: title,
				Body:  body,
			},
			Data: stringData,
			Android: &messaging.AndroidConfig{
				Priority: "high",
				Notification: &messaging.AndroidNotification{
					Sound: "default",
				},
			},
		}

		if _, err := p.client.Send(ctx, message); err != nil {
			log.Printf("FCM send failed for user %s: %v", userID, err)
			failures++
		}
	}

	if failures == len(tokens) {
		return fmt.Errorf("all %d pushes failed for user %s", failures, userID)
	}
	return nil
}

func (p *FCMProvider) deviceTokens(ctx context.Context, userID uuid.UUID) ([]string, error) {
	query := `
	SELECT token
	FROM device_tokens
	WHERE user_id = $1 AND is_active = true
	`

	rows, err := p.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch device tokens: %w", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan device token: %w", err)
		}
		tokens = append(tokens, t)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating device tokens: %w", err)
	}

	return tokens, nil
}
