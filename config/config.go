package config

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	StorageBackendObjectStore = "object_store"
	StorageBackendLocalDisk   = "local_disk"

	ObjectStoreDriverMinio = "minio"
	ObjectStoreDriverS3    = "s3"
)

type Config struct {
	EnvConfig *EnvConfig
}

func NewConfig() *Config {
	return &Config{
		EnvConfig: LoadEnvConfig(),
	}
}

// Bound is the maximum width and height an image may have after transcoding.
type Bound struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (b Bound) String() string {
	return fmt.Sprintf("%dx%d", b.Width, b.Height)
}

func ParseBound(s string) (Bound, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), "x")
	if len(parts) != 2 {
		return Bound{}, fmt.Errorf("invalid bound %q: expected WIDTHxHEIGHT", s)
	}
	w, err := strconv.Atoi(parts[0])
	if err != nil || w <= 0 {
		return Bound{}, fmt.Errorf("invalid bound width in %q", s)
	}
	h, err := strconv.Atoi(parts[1])
	if err != nil || h <= 0 {
		return Bound{}, fmt.Errorf("invalid bound height in %q", s)
	}
	return Bound{Width: w, Height: h}, nil
}

// RoleSettings is where images of one role are stored and how large they may be.
type RoleSettings struct {
	BaseDir string
	Bound   Bound
}

// Role returns the settings for "listing", "profile" or "cover".
func (c *EnvConfig) Role(role string) (RoleSettings, bool) {
	switch role {
	case "listing":
		return RoleSettings{BaseDir: c.Image.ListingDir, Bound: c.Image.ListingBound}, true
	case "profile":
		return RoleSettings{BaseDir: c.Image.ProfileDir, Bound: c.Image.ProfileBound}, true
	case "cover":
		return RoleSettings{BaseDir: c.Image.CoverDir, Bound: c.Image.CoverBound}, true
	default:
		return RoleSettings{}, false
	}
}
