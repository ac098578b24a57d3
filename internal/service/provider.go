package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/templui/accounts/internal/model"
	"golang.org/x/oauth2"
)

// Profile is the decoded userinfo document of a provider. Numbers are kept
// as json.Number so large ids survive.
type Profile map[string]any

// ProfileFetcher loads the signed-in user's profile from a provider.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, provider string, token *oauth2.Token) (Profile, error)
}

const githubEmailsEndpoint = "github_emails"

// DefaultProfileEndpoints maps providers to their userinfo URLs.
var DefaultProfileEndpoints = map[string]string{
	model.ProviderGoogle:   "https://www.googleapis.com/oauth2/v1/userinfo",
	model.ProviderFacebook: "https://graph.facebook.com/me?fields=id,name,email",
	model.ProviderGitHub:   "https://api.github.com/user",
	githubEmailsEndpoint:   "https://api.github.com/user/emails",
}

type HTTPProfileFetcher struct {
	endpoints map[string]string
	client    *http.Client
}

func NewHTTPProfileFetcher() *HTTPProfileFetcher {
	return NewHTTPProfileFetcherWithEndpoints(DefaultProfileEndpoints, http.DefaultClient)
}

// NewHTTPProfileFetcherWithEndpoints is used by tests to point providers at
// a local server.
func NewHTTPProfileFetcherWithEndpoints(endpoints map[string]string, client *http.Client) *HTTPProfileFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProfileFetcher{endpoints: endpoints, client: client}
}

func (f *HTTPProfileFetcher) FetchProfile(ctx context.Context, provider string, token *oauth2.Token) (Profile, error) {
	endpoint, ok := f.endpoints[provider]
	if !ok {
		return nil, fmt.Errorf("no profile endpoint for provider %q", provider)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, f.client)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))

	var profile Profile
	err := getJSON(ctx, client, endpoint, &profile)
	if err != nil {
		return nil, err
	}

	// GitHub hides private addresses from /user
	if provider == model.ProviderGitHub {
		email, _ := profile["email"].(string)
		if email == "" {
			email, err = f.githubPrimaryEmail(ctx, client)
			if err != nil {
				return nil, err
			}
			if email != "" {
				profile["email"] = email
			}
		}
		if name, _ := profile["name"].(string); name == "" {
			if login, _ := profile["login"].(string); login != "" {
				profile["name"] = login
			}
		}
	}

	return profile, nil
}

func (f *HTTPProfileFetcher) githubPrimaryEmail(ctx context.Context, client *http.Client) (string, error) {
	endpoint, ok := f.endpoints[githubEmailsEndpoint]
	if !ok {
		return "", nil
	}

	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	err := getJSON(ctx, client, endpoint, &emails)
	if err != nil {
		return "", err
	}

	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, nil
		}
	}
	return "", nil
}

func getJSON(ctx context.Context, client *http.Client, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("profile request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("profile endpoint returned status %d", resp.StatusCode)
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	err = dec.Decode(v)
	if err != nil {
		return fmt.Errorf("failed to decode profile: %w", err)
	}
	return nil
}
