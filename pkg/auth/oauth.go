package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

const (
	// ClientSecretsFile is the Google API credentials.json downloaded from
	// the cloud console (client_id, client_secret, redirect_uris).
	ClientSecretsFile = "credentials.json"

	// TokenFile caches the user's access and refresh token.
	TokenFile = "token.json"

	// LocalhostAuthPort is where the local web server listens for the
	// OAuth redirect.
	LocalhostAuthPort = "6789"

	datastoreScope = "https://www.googleapis.com/auth/datastore"

	authTimeout = 5 * time.Minute
)

var (
	ErrNoToken    = errors.New("not signed in")
	ErrAuthFailed = errors.New("authentication failed")
)

// Scopes covers identity lookup, the Firestore task collection and the
// calendar export.
var Scopes = []string{
	"openid",
	oauth2api.UserinfoEmailScope,
	oauth2api.UserinfoProfileScope,
	datastoreScope,
	calendar.CalendarEventsScope,
	calendar.CalendarReadonlyScope,
}

// Identity is the signed-in Google account.
type Identity struct {
	UID         string `json:"uid"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	PhotoURL    string `json:"photoUrl,omitempty"`
}

// Session is an authenticated user together with the credentials used to
// reach Google APIs on their behalf.
type Session struct {
	Identity    Identity
	TokenSource oauth2.TokenSource
	Client      *http.Client
}

// Authenticator runs the installed-app OAuth flow and caches its token in
// Dir.
type Authenticator struct {
	Dir    string
	Scopes []string

	// Prompt receives the URL the user must open; defaults to stdout.
	Prompt func(authURL string)
}

func New(dir string) *Authenticator {
	return &Authenticator{Dir: dir, Scopes: Scopes}
}

func (a *Authenticator) tokenPath() string {
	return filepath.Join(a.Dir, TokenFile)
}

// GetConfig creates an oauth2.Config from the client secrets file.
func (a *Authenticator) GetConfig() (*oauth2.Config, error) {
	clientSecretsFile := filepath.Join(a.Dir, ClientSecretsFile)
	b, err := os.ReadFile(clientSecretsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret file %s: %w", clientSecretsFile, err)
	}

	config, err := google.ConfigFromJSON(b, a.Scopes...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	config.RedirectURL = redirectURL(config.RedirectURL)
	return config, nil
}

// redirectURL forces localhost and out-of-band redirects onto the port the
// callback listener uses. Other redirects are kept as configured.
func redirectURL(configured string) string {
	if configured == "urn:ietf:wg:oauth:2.0:oob" {
		return fmt.Sprintf("http://localhost:%s/oauth2callback", LocalhostAuthPort)
	}
	parsedURL, err := url.Parse(configured)
	if err != nil {
		slog.Warn("could not parse redirect URL, using it as is", "url", configured, "error", err)
		return configured
	}
	if parsedURL.Hostname() != "localhost" && parsedURL.Hostname() != "127.0.0.1" {
		slog.Warn("redirect URL is not a localhost callback", "url", configured)
		return configured
	}
	if parsedURL.Port() != LocalhostAuthPort {
		parsedURL.Host = net.JoinHostPort(parsedURL.Hostname(), LocalhostAuthPort)
	}
	return parsedURL.String()
}

// SignIn returns the cached session or, when no token is cached, runs the
// browser authorization flow and caches the new token.
func (a *Authenticator) SignIn(ctx context.Context) (*Session, error) {
	config, err := a.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	tok, err := tokenFromFile(a.tokenPath())
	if err != nil {
		slog.Info("no cached token, starting web authorization flow", "path", a.tokenPath())
		tok, err = a.getTokenFromWeb(ctx, config)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
		}
		if err := saveToken(a.tokenPath(), tok); err != nil {
			slog.Warn("could not cache OAuth token", "error", err)
		}
	}
	return a.session(ctx, config, tok)
}

// Restore resumes a cached session without prompting. ErrNoToken means
// the user has not signed in on this machine.
func (a *Authenticator) Restore(ctx context.Context) (*Session, error) {
	tok, err := tokenFromFile(a.tokenPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoToken
		}
		return nil, err
	}
	config, err := a.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	return a.session(ctx, config, tok)
}

// SignOut forgets the cached token. Signing out twice is not an error.
func (a *Authenticator) SignOut() error {
	if err := os.Remove(a.tokenPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("could not delete token file %s: %w", a.tokenPath(), err)
	}
	return nil
}

func (a *Authenticator) session(ctx context.Context, config *oauth2.Config, tok *oauth2.Token) (*Session, error) {
	ts := &savingTokenSource{
		base: config.TokenSource(ctx, tok),
		path: a.tokenPath(),
		last: tok,
	}
	reuse := oauth2.ReuseTokenSource(tok, ts)
	client := oauth2.NewClient(ctx, reuse)

	id, err := lookupIdentity(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	return &Session{Identity: id, TokenSource: reuse, Client: client}, nil
}

func lookupIdentity(ctx context.Context, client *http.Client) (Identity, error) {
	srv, err := oauth2api.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return Identity{}, fmt.Errorf("unable to create userinfo service: %w", err)
	}
	info, err := srv.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return Identity{}, fmt.Errorf("unable to fetch user info: %w", err)
	}
	if info.Id == "" {
		return Identity{}, errors.New("user info carries no account id")
	}
	return Identity{UID: info.Id, Email: info.Email, DisplayName: info.Name, PhotoURL: info.Picture}, nil
}

// savingTokenSource re-caches the token whenever a refresh changes it.
type savingTokenSource struct {
	base oauth2.TokenSource
	path string
	last *oauth2.Token
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	if s.last == nil || tok.AccessToken != s.last.AccessToken || tok.RefreshToken != s.last.RefreshToken {
		slog.Debug("token refreshed, saving", "path", s.path)
		if err := saveToken(s.path, tok); err != nil {
			slog.Warn("could not re-save refreshed token", "error", err)
		}
		s.last = tok
	}
	return tok, nil
}

// getTokenFromWeb runs the authorization code flow through a local
// callback server.
func (a *Authenticator) getTokenFromWeb(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error) {
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%s", LocalhostAuthPort))
	if err != nil {
		return nil, fmt.Errorf("failed to start listener on port %s: %w", LocalhostAuthPort, err)
	}
	defer listener.Close()

	server := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			code := r.URL.Query().Get("code")
			if code == "" {
				http.Error(w, "Authorization code not found", http.StatusBadRequest)
				select {
				case errCh <- errors.New("authorization code not found in redirect URL"):
				default:
				}
				return
			}
			fmt.Fprintf(w, "Signed in. You can close this window.")
			select {
			case codeCh <- code:
			default:
			}
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}
	defer server.Shutdown(context.Background())

	go func() {
		slog.Info("waiting for OAuth redirect", "url", config.RedirectURL)
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			select {
			case errCh <- fmt.Errorf("HTTP server error: %w", err):
			default:
			}
		}
	}()

	// AccessTypeOffline makes Google return a refresh token.
	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	if a.Prompt != nil {
		a.Prompt(authURL)
	} else {
		fmt.Printf("Open the following URL in your browser to sign in:\n%s\n", authURL)
	}

	select {
	case authCode := <-codeCh:
		exCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		tok, err := config.Exchange(exCtx, authCode)
		if err != nil {
			return nil, fmt.Errorf("unable to retrieve token from Google: %w", err)
		}
		return tok, nil
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(authTimeout):
		return nil, errors.New("authorization timed out, please try again")
	}
}

// tokenFromFile reads an oauth2.Token from a JSON file.
func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("failed to decode token from file %s: %w", file, err)
	}
	return tok, nil
}

// saveToken writes the token readable by the owner only.
func saveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("could not create token directory: %w", err)
	}
	data, err := json.Marshal(token)
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("unable to cache OAuth token to %s: %w", path, err)
	}
	return os.Chmod(path, 0600)
}
