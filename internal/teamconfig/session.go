package teamconfig

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"pkt.systems/zowe/internal/zosmf"
	"pkt.systems/zowe/schema"
)

// EnvPrefix marks environment variables that override profile properties.
const EnvPrefix = "ZOWE_OPT_"

// Overrides are connection properties given on the command line. Empty
// fields and nil pointers are ignored.
type Overrides struct {
	Host               string
	Port               int
	User               string
	Password           string
	Protocol           string
	BasePath           string
	RejectUnauthorized *bool
}

// SessionOptions selects how a z/OSMF session is resolved.
type SessionOptions struct {
	// ZOSMFProfile names the zosmf profile; empty uses the default.
	ZOSMFProfile string
	// BaseProfile names the base profile; empty uses the default.
	BaseProfile string
	Env         map[string]string
	Overrides   Overrides
	Timeout     time.Duration
	// Complete, when set, may fill in a missing user or password before the
	// session is validated.
	Complete func(*zosmf.Session) error
}

// Session resolves connection details from the base profile, the zosmf
// profile, ZOWE_OPT_ environment variables and overrides, in that order.
func (c *Config) Session(opts SessionOptions) (zosmf.Session, error) {
	props := map[string]any{}
	if c != nil {
		for _, typ := range []string{"base", "zosmf"} {
			name := opts.BaseProfile
			if typ == "zosmf" {
				name = opts.ZOSMFProfile
			}
			explicit := name != ""
			if !explicit {
				name, _ = c.DefaultProfile(typ)
			}
			if name == "" {
				continue
			}
			found, ok := c.Properties(name)
			if !ok {
				if explicit {
					return zosmf.Session{}, fmt.Errorf("%w: profile %q not found", schema.ErrNoProfile, name)
				}
				continue
			}
			for k, v := range found {
				props[k] = v
			}
		}
	}
	for key, value := range opts.Env {
		if !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		props[envProperty(strings.TrimPrefix(key, EnvPrefix))] = value
	}

	session := zosmf.Session{
		Protocol:           stringProp(props, "protocol"),
		Host:               stringProp(props, "host"),
		BasePath:           stringProp(props, "basePath"),
		User:               stringProp(props, "user"),
		Password:           stringProp(props, "password"),
		RejectUnauthorized: true,
		Timeout:            opts.Timeout,
	}
	port, err := intProp(props, "port")
	if err != nil {
		return zosmf.Session{}, err
	}
	session.Port = port
	if reject, ok, err := boolProp(props, "rejectUnauthorized"); err != nil {
		return zosmf.Session{}, err
	} else if ok {
		session.RejectUnauthorized = reject
	}
	applyOverrides(&session, opts.Overrides)

	if strings.TrimSpace(session.Host) == "" {
		return zosmf.Session{}, fmt.Errorf("%w: no host found in profiles, %sHOST or --host", schema.ErrNoProfile, EnvPrefix)
	}
	if opts.Complete != nil && (strings.TrimSpace(session.User) == "" || session.Password == "") {
		if err := opts.Complete(&session); err != nil {
			return zosmf.Session{}, err
		}
	}
	if err := session.Validate(); err != nil {
		return zosmf.Session{}, err
	}
	return session, nil
}

func applyOverrides(s *zosmf.Session, o Overrides) {
	if o.Host != "" {
		s.Host = o.Host
	}
	if o.Port > 0 {
		s.Port = o.Port
	}
	if o.User != "" {
		s.User = o.User
	}
	if o.Password != "" {
		s.Password = o.Password
	}
	if o.Protocol != "" {
		s.Protocol = o.Protocol
	}
	if o.BasePath != "" {
		s.BasePath = o.BasePath
	}
	if o.RejectUnauthorized != nil {
		s.RejectUnauthorized = *o.RejectUnauthorized
	}
}

// envProperty maps REJECT_UNAUTHORIZED to rejectUnauthorized.
func envProperty(name string) string {
	parts := strings.Split(strings.ToLower(name), "_")
	for i := 1; i < len(parts); i++ {
		if parts[i] != "" {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}

func stringProp(props map[string]any, key string) string {
	switch v := props[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func intProp(props map[string]any, key string) (int, error) {
	switch v := props[key].(type) {
	case nil:
		return 0, nil
	case float64:
		return int(v), nil
	case string:
		if strings.TrimSpace(v) == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("property %s must be a number, got %q", key, v)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("property %s must be a number, got %T", key, v)
	}
}

func boolProp(props map[string]any, key string) (bool, bool, error) {
	switch v := props[key].(type) {
	case nil:
		return false, false, nil
	case bool:
		return v, true, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, false, fmt.Errorf("property %s must be true or false, got %q", key, v)
		}
		return b, true, nil
	default:
		return false, false, fmt.Errorf("property %s must be true or false, got %T", key, v)
	}
}
