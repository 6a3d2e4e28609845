package gcp

import (
	"strings"

	"google.golang.org/api/option"

	"github.com/KKQanT/cringe-alert-v2/internal/platform/envutil"
)

// ClientOptionsFromEnv resolves service account credentials. FIREBASE_CREDENTIALS_PATH is
// honoured for deployments that still ship the Firebase admin key file.
func ClientOptionsFromEnv() []option.ClientOption {
	creds := envutil.FirstString("",
		"GOOGLE_APPLICATION_CREDENTIALS_JSON",
		"GOOGLE_APPLICATION_CREDENTIALS",
		"FIREBASE_CREDENTIALS_PATH",
	)
	if creds == "" {
		return nil
	}
	if strings.HasPrefix(creds, "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return []option.ClientOption{option.WithCredentialsFile(creds)}
}
