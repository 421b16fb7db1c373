package instagram

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// BaseURL is the base URL for Instagram
	BaseURL = "https://www.instagram.com"

	// ProfileEndpoint returns a profile together with its first timeline page
	ProfileEndpoint = "/api/v1/users/web_profile_info/"

	// LoginEndpoint accepts a username/password form and sets a session cookie
	LoginEndpoint = "/api/v1/web/accounts/login/ajax/"

	// DefaultAppID is the web client's application identifier
	DefaultAppID = "936619743392459"

	// MaxPostsPerPage is the size of the first timeline page; later pages
	// are never requested
	MaxPostsPerPage = 12
)

// ProfileURL constructs the URL for fetching a user's profile
func ProfileURL(baseURL, username string) string {
	params := url.Values{}
	params.Set("username", username)
	return fmt.Sprintf("%s%s?%s", strings.TrimRight(baseURL, "/"), ProfileEndpoint, params.Encode())
}

// LoginURL constructs the login endpoint URL
func LoginURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + LoginEndpoint
}

// IsValidUsername checks if a username is valid according to Instagram rules
func IsValidUsername(username string) bool {
	if username == "" || len(username) > 30 {
		return false
	}
	if strings.Trim(username, ".") == "" {
		return false
	}

	for _, char := range username {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '.' || char == '_') {
			return false
		}
	}

	return true
}

// SanitizeUsername strips a leading @ and trailing slashes or spaces
func SanitizeUsername(username string) string {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	return strings.TrimRight(username, "/ ")
}

// clampCount bounds a requested post count to one timeline page
func clampCount(count int) int {
	if count < 1 {
		return 1
	}
	if count > MaxPostsPerPage {
		return MaxPostsPerPage
	}
	return count
}
