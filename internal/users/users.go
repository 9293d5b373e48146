// Package users looks up test account credentials stored as ini sections:
//
//	[standard_user]
//	username = alice
//	password = secret
package users

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/ini.v1"
)

var (
	// ErrNotFound is returned by Load when the users file does not exist.
	ErrNotFound = errors.New("user config file not found")
	// ErrUnknownProfile is returned for a section that is not defined.
	ErrUnknownProfile = errors.New("unknown user profile")
	// ErrIncomplete is returned when a profile lacks username or password.
	ErrIncomplete = errors.New("user profile incomplete")
)

// Credentials is one user profile.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"-"`
}

// Store holds the profiles of one users file.
type Store struct {
	path string
	f    *ini.File
}

func Load(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &Store{path: path, f: f}, nil
}

// Get returns the username and password of profile.
func (s *Store) Get(profile string) (Credentials, error) {
	sec, err := s.f.GetSection(profile)
	if err != nil || profile == ini.DefaultSection {
		return Credentials{}, fmt.Errorf("%w: %q in %s", ErrUnknownProfile, profile, s.path)
	}
	if !sec.HasKey("username") || !sec.HasKey("password") {
		return Credentials{}, fmt.Errorf("%w: %q needs username and password", ErrIncomplete, profile)
	}
	return Credentials{
		Username: sec.Key("username").String(),
		Password: sec.Key("password").String(),
	}, nil
}

// Profiles lists the defined profiles in file order.
func (s *Store) Profiles() []string {
	var out []string
	for _, name := range s.f.SectionStrings() {
		if name == ini.DefaultSection {
			continue
		}
		out = append(out, name)
	}
	return out
}
