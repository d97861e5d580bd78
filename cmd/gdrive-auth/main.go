// Command gdrive-auth runs the OAuth consent flow once and prints the
// refresh token to put in GDRIVE_REFRESH_TOKEN for STORAGE_PROVIDER=gdrive.
package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"

	"manimrender/internal/pkg/logger"
)

type authConfig struct {
	ClientID     string        `env:"GDRIVE_CLIENT_ID,required,notEmpty"`
	ClientSecret string        `env:"GDRIVE_CLIENT_SECRET,required,notEmpty"`
	Timeout      time.Duration `env:"GDRIVE_AUTH_TIMEOUT" envDefault:"3m"`
}

func main() {
	log := logger.New(logger.Config{Level: "info", Format: "text", ServiceName: "gdrive-auth"})

	_ = godotenv.Load()
	var cfg authConfig
	if err := env.Parse(&cfg); err != nil {
		log.LogFatal("invalid environment", err)
	}

	ctx := context.Background()

	// 1) Local callback on a free port
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		log.LogFatal("cannot listen for the OAuth callback", err)
	}
	defer ln.Close()

	port := ln.Addr().(*net.TCPAddr).Port
	redirectURL := fmt.Sprintf("http://127.0.0.1:%d/callback", port)

	conf := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{drive.DriveFileScope},
		RedirectURL:  redirectURL,
	}

	state := randomState()
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	srv := &http.Server{
		Handler:      callbackHandler(state, codeCh, errCh),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		_ = srv.Serve(ln)
	}()

	// 2) Offline access so Google hands out a refresh token
	authURL := conf.AuthCodeURL(
		state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)

	fmt.Println("\nOpen this URL in your browser:")
	fmt.Println()
	fmt.Println(authURL)
	fmt.Println("\nWaiting for authorization on", redirectURL)

	// 3) Wait for the code
	var code string
	select {
	case code = <-codeCh:
	case err := <-errCh:
		_ = srv.Close()
		log.LogFatal("authorization failed", err)
	case <-time.After(cfg.Timeout):
		_ = srv.Close()
		log.LogFatal("timed out waiting for authorization", nil, "timeout", cfg.Timeout.String())
	}
	_ = srv.Close()

	// 4) Exchange the code for tokens
	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		log.LogFatal("token exchange failed", err)
	}

	// Google omits the refresh token when the app was already authorized.
	if strings.TrimSpace(tok.RefreshToken) == "" {
		fmt.Println("\nNo refresh_token was returned.")
		fmt.Println("Revoke the app's access at https://myaccount.google.com/permissions and run this command again.")
		os.Exit(1)
	}

	fmt.Println("\nGDRIVE_REFRESH_TOKEN=" + tok.RefreshToken)
}

func callbackHandler(state string, codeCh chan<- string, errCh chan<- error) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "invalid state", http.StatusBadRequest)
			errCh <- fmt.Errorf("invalid state")
			return
		}
		if e := q.Get("error"); e != "" {
			http.Error(w, "auth error: "+e, http.StatusBadRequest)
			errCh <- fmt.Errorf("auth error: %s", e)
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			errCh <- fmt.Errorf("missing code")
			return
		}

		fmt.Fprintln(w, "Done. You can close this window and return to the terminal.")
		codeCh <- code
	})
	return mux
}

func randomState() string {
	b := make([]byte, 18)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
