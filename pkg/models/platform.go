package models

import "fmt"

// Platform identifies a social network a video can be published to.
type Platform string

const (
	PlatformYouTube   Platform = "youtube"
	PlatformFacebook  Platform = "facebook"
	PlatformInstagram Platform = "instagram"
)

// Providers group platforms by the credential record they share.
// Facebook and Instagram both authenticate through one Meta credential.
const (
	ProviderGoogle = "google"
	ProviderMeta   = "meta"
)

// publishOrder is the fixed processing order within a job: YouTube first,
// then the Meta platforms grouped together.
var publishOrder = map[Platform]int{
	PlatformYouTube:   0,
	PlatformFacebook:  1,
	PlatformInstagram: 2,
}

// ParsePlatform validates a raw platform name.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(s)
	if _, ok := publishOrder[p]; !ok {
		return "", fmt.Errorf("unknown platform %q: must be one of youtube, facebook, instagram", s)
	}
	return p, nil
}

// Provider returns the credential provider this platform authenticates with.
func (p Platform) Provider() string {
	if p == PlatformYouTube {
		return ProviderGoogle
	}
	return ProviderMeta
}

// OrderPlatforms returns the platforms sorted into publish order,
// with duplicates removed. Input order between same-rank entries is irrelevant
// because ranks are unique per platform.
func OrderPlatforms(platforms []Platform) []Platform {
	seen := make(map[Platform]bool, len(platforms))
	var out []Platform
	for _, p := range platforms {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && publishOrder[out[j]] < publishOrder[out[j-1]]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
