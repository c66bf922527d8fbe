package project

import (
	"net/url"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
)

// DiscoverRemoteURL returns the first URL of the folder's origin remote, or
// "" when the folder is not a repository or has no origin.
func DiscoverRemoteURL(path string) string {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{EnableDotGitCommonDir: true})
	if err != nil {
		return ""
	}
	remote, err := repo.Remote(git.DefaultRemoteName)
	if err != nil {
		return ""
	}
	if urls := remote.Config().URLs; len(urls) > 0 {
		return urls[0]
	}
	return ""
}

// NormalizeRemote reduces a remote URL to host/owner/repo so that the
// https, ssh and scp-like forms of one repository compare equal.
// Credentials, ports, a trailing ".git" and host case are dropped. Local
// paths keep their case.
func NormalizeRemote(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	host, path := "", s
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return strings.ToLower(s)
		}
		host, path = u.Hostname(), u.Path
	} else if at, colon := strings.Index(s, "@"), strings.Index(s, ":"); colon > 0 && at < colon && !strings.HasPrefix(s, "/") {
		// git@github.com:owner/repo.git
		host, path = s[at+1:colon], s[colon+1:]
	}

	path = strings.TrimSuffix(strings.TrimRight(path, "/"), ".git")
	if host == "" {
		return filepath.Clean(path)
	}
	return strings.ToLower(host) + "/" + strings.TrimLeft(path, "/")
}

// SameRemote reports whether a and b name the same repository.
func SameRemote(a, b string) bool {
	na := NormalizeRemote(a)
	return na != "" && na == NormalizeRemote(b)
}
