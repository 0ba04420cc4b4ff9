// Package target defines registered backend targets and the file-backed
// registry the forwarder resolves them from.
package target

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"strings"
)

// AuthType is the closed set of authentication schemes a target may use.
type AuthType int

const (
	// AuthNone sends no Authorization header.
	AuthNone AuthType = iota
	// AuthBasic sends username:password as HTTP Basic credentials.
	AuthBasic
	// AuthBearer sends a static bearer token.
	AuthBearer
	// AuthOAuth obtains a token with the client-credentials grant.
	AuthOAuth
	// AuthUnrecognized is any other configured value. It behaves like AuthNone.
	AuthUnrecognized
)

// ParseAuthType maps a configured authType string onto AuthType, ignoring
// case. Surrounding whitespace is not trimmed: " bearer " is unrecognized.
func ParseAuthType(s string) AuthType {
	switch strings.ToLower(s) {
	case "", "none":
		return AuthNone
	case "basic":
		return AuthBasic
	case "bearer":
		return AuthBearer
	case "oauth", "oauth2":
		return AuthOAuth
	default:
		return AuthUnrecognized
	}
}

func (a AuthType) String() string {
	switch a {
	case AuthNone:
		return "none"
	case AuthBasic:
		return "basic"
	case AuthBearer:
		return "bearer"
	case AuthOAuth:
		return "oauth"
	default:
		return "unrecognized"
	}
}

// DefaultProtocol is used when a target has no protocol configured.
const DefaultProtocol = "http"

// Config is one registered target. The forwarder only reads it.
//
// Fields the proxy does not use are kept in Extra so a registry document
// written by the desktop shell survives a load/save cycle unchanged.
type Config struct {
	ID       string
	Name     string
	Protocol string
	Host     string
	Port     string
	AuthType string

	Username string
	Password string
	Token    string

	ClientID     string
	ClientSecret string
	TokenURL     string

	Extra map[string]json.RawMessage
}

// Auth returns the parsed authentication scheme.
func (c Config) Auth() AuthType {
	return ParseAuthType(c.AuthType)
}

// Scheme returns the configured protocol, or DefaultProtocol if empty.
func (c Config) Scheme() string {
	if c.Protocol == "" {
		return DefaultProtocol
	}
	return c.Protocol
}

// Clone returns a deep copy.
func (c Config) Clone() Config {
	c.Extra = maps.Clone(c.Extra)
	return c
}

// secretKeys are the JSON keys whose values never leave the process in
// listings, whatever their JSON type.
var secretKeys = []string{"password", "token", "clientSecret"}

// Sanitized returns a copy without secrets, for listings. A secret key held in
// Extra because its value was not a string is dropped too.
func (c Config) Sanitized() Config {
	out := c.Clone()
	out.Password = ""
	out.Token = ""
	out.ClientSecret = ""
	for _, k := range secretKeys {
		delete(out.Extra, k)
	}
	if len(out.Extra) == 0 {
		out.Extra = nil
	}
	return out
}

// stringFields binds JSON keys to Config fields. Order is the output order
// of known keys before Extra.
func (c *Config) stringFields() []struct {
	key string
	ptr *string
} {
	return []struct {
		key string
		ptr *string
	}{
		{"id", &c.ID},
		{"name", &c.Name},
		{"protocol", &c.Protocol},
		{"host", &c.Host},
		{"port", &c.Port},
		{"authType", &c.AuthType},
		{"username", &c.Username},
		{"password", &c.Password},
		{"token", &c.Token},
		{"clientId", &c.ClientID},
		{"clientSecret", &c.ClientSecret},
		{"tokenUrl", &c.TokenURL},
	}
}

// UnmarshalJSON accepts the registry's loose object shape: known keys must be
// strings (a numeric port is also accepted), anything else is kept in Extra.
func (c *Config) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding target: %w", err)
	}

	*c = Config{}
	for _, f := range c.stringFields() {
		v, ok := raw[f.key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			*f.ptr = s
			delete(raw, f.key)
			continue
		}
		if f.key == "port" {
			var n json.Number
			dec := json.NewDecoder(bytes.NewReader(v))
			dec.UseNumber()
			if err := dec.Decode(&n); err == nil {
				if i, err := strconv.ParseUint(n.String(), 10, 16); err == nil {
					c.Port = strconv.FormatUint(i, 10)
					delete(raw, f.key)
				}
			}
		}
	}
	if len(raw) > 0 {
		c.Extra = raw
	}
	return nil
}

// MarshalJSON writes non-empty known fields merged with Extra.
func (c Config) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.Extra)+12)
	for k, v := range c.Extra {
		out[k] = v
	}
	for _, f := range c.stringFields() {
		if *f.ptr != "" {
			out[f.key] = *f.ptr
		}
	}
	return json.Marshal(out)
}
