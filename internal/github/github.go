// Package github opens pull requests for published fix branches.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	gh "github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/lucasnoah/fixfactory/internal/credential"
)

// ErrNotGitHub is returned for remotes that are not hosted on the client's
// GitHub host.
var ErrNotGitHub = errors.New("remote is not a GitHub repository")

const defaultHost = "github.com"

// Client provides the GitHub operations a run needs.
type Client struct {
	gh   *gh.Client
	host string // git host remotes must live on
}

// tokenSource opens the credential enclave each time a request is signed.
type tokenSource struct {
	token *credential.Token
}

func (s tokenSource) Token() (*oauth2.Token, error) {
	var tok *oauth2.Token
	err := s.token.Use(func(secret string) error {
		tok = &oauth2.Token{AccessToken: secret}
		return nil
	})
	return tok, err
}

// NewClient creates an authenticated client. apiURL overrides the API
// endpoint (GitHub Enterprise); "" uses api.github.com.
func NewClient(ctx context.Context, token *credential.Token, apiURL string) (*Client, error) {
	if token.Empty() {
		return nil, fmt.Errorf("GitHub token not set")
	}
	client := gh.NewClient(oauth2.NewClient(ctx, tokenSource{token: token}))
	if apiURL == "" {
		return &Client{gh: client, host: defaultHost}, nil
	}
	u, err := parseAPIURL(apiURL)
	if err != nil {
		return nil, err
	}
	client.BaseURL = u
	return &Client{gh: client, host: remoteHost(u)}, nil
}

// NewClientWithHTTP wraps an existing HTTP client, e.g. one from httptest.
func NewClientWithHTTP(httpClient *http.Client, apiURL string) (*Client, error) {
	client := gh.NewClient(httpClient)
	u, err := parseAPIURL(apiURL)
	if err != nil {
		return nil, err
	}
	client.BaseURL = u
	return &Client{gh: client, host: remoteHost(u)}, nil
}

func parseAPIURL(apiURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSuffix(apiURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parse GitHub API URL: %w", err)
	}
	return u, nil
}

// remoteHost maps an API endpoint to the host its repositories are cloned
// from. Enterprise servers serve both from the same host.
func remoteHost(api *url.URL) string {
	h := strings.ToLower(api.Hostname())
	if h == "" || h == "api.github.com" {
		return defaultHost
	}
	return h
}

// Host reports the git host whose remotes this client accepts.
func (c *Client) Host() string { return c.host }

// OpenPullRequest opens a pull request from head into the repository's
// default branch and returns its URL. If one is already open for head, that
// one's URL is returned.
func (c *Client) OpenPullRequest(ctx context.Context, remoteURL, head, title, body string) (string, error) {
	owner, repo, ok := ParseRemote(remoteURL, c.host)
	if !ok {
		return "", ErrNotGitHub
	}

	r, _, err := c.gh.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return "", fmt.Errorf("get repository %s/%s: %w", owner, repo, err)
	}
	base := r.GetDefaultBranch()
	if base == "" {
		base = "main"
	}

	pr, _, err := c.gh.PullRequests.Create(ctx, owner, repo, &gh.NewPullRequest{
		Title:               gh.String(title),
		Head:                gh.String(head),
		Base:                gh.String(base),
		Body:                gh.String(body),
		MaintainerCanModify: gh.Bool(true),
	})
	if err == nil {
		return pr.GetHTMLURL(), nil
	}

	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusUnprocessableEntity {
		existing, _, listErr := c.gh.PullRequests.List(ctx, owner, repo, &gh.PullRequestListOptions{
			Head:  owner + ":" + head,
			State: "open",
		})
		if listErr == nil && len(existing) > 0 {
			return existing[0].GetHTMLURL(), nil
		}
	}
	return "", fmt.Errorf("create pull request: %w", err)
}

// ParseGitHubRemote extracts owner and repository from a github.com remote in
// HTTPS, SSH or scp-like form.
func ParseGitHubRemote(remote string) (owner, repo string, ok bool) {
	return ParseRemote(remote, defaultHost)
}

// ParseRemote is ParseGitHubRemote for an arbitrary host, such as a GitHub
// Enterprise server. Ports are ignored when matching the host.
func ParseRemote(remote, host string) (owner, repo string, ok bool) {
	remote = strings.TrimSpace(remote)
	var p string
	switch {
	case !strings.Contains(remote, "://") && strings.Contains(remote, "@"):
		// scp-like: user@host:owner/repo
		_, rest, _ := strings.Cut(remote, "@")
		h, rest, found := strings.Cut(rest, ":")
		if !found || !strings.EqualFold(h, host) {
			return "", "", false
		}
		p = rest
	default:
		u, err := url.Parse(remote)
		if err != nil || !strings.EqualFold(u.Hostname(), host) {
			return "", "", false
		}
		switch u.Scheme {
		case "https", "http", "ssh", "git":
		default:
			return "", "", false
		}
		p = u.Path
	}

	p = strings.TrimSuffix(strings.Trim(p, "/"), ".git")
	parts := strings.Split(p, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
