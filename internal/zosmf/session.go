package zosmf

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrMissingCredentials indicates the session has no user or password.
var ErrMissingCredentials = errors.New("zosmf user and password are required")

// DefaultTimeout bounds a single REST call when the session does not set one.
const DefaultTimeout = 30 * time.Second

// Session holds the connection details for one z/OSMF instance.
type Session struct {
	Protocol           string
	Host               string
	Port               int
	BasePath           string
	User               string
	Password           string
	RejectUnauthorized bool
	Timeout            time.Duration
}

// Validate reports missing connection details.
func (s Session) Validate() error {
	if strings.TrimSpace(s.Host) == "" {
		return errors.New("zosmf host is required")
	}
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("zosmf port %d is out of range", s.Port)
	}
	switch s.protocol() {
	case "http", "https":
	default:
		return fmt.Errorf("unsupported zosmf protocol %q", s.Protocol)
	}
	if strings.TrimSpace(s.User) == "" || s.Password == "" {
		return ErrMissingCredentials
	}
	return nil
}

// BaseURL returns the scheme, host, port, and base path prefix of the session.
func (s Session) BaseURL() *url.URL {
	host := s.Host
	if s.Port > 0 {
		host = host + ":" + strconv.Itoa(s.Port)
	}
	return &url.URL{
		Scheme: s.protocol(),
		Host:   host,
		Path:   "/" + strings.Trim(s.BasePath, "/"),
	}
}

func (s Session) protocol() string {
	p := strings.ToLower(strings.TrimSpace(s.Protocol))
	if p == "" {
		return "https"
	}
	return p
}

func (s Session) timeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return DefaultTimeout
}
