package enums

import "fmt"

// AssetKind discriminates the two catalog asset variants. All entitlement and
// delivery logic switches on this tag instead of probing payload shape.
type AssetKind string

const (
	AssetKindSong  AssetKind = "song"
	AssetKindAlbum AssetKind = "album"
)

var validAssetKinds = []AssetKind{
	AssetKindSong,
	AssetKindAlbum,
}

// IsValid reports whether the value matches the canonical asset kind enum.
func (k AssetKind) IsValid() bool {
	for _, candidate := range validAssetKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseAssetKind converts the raw string to AssetKind.
func ParseAssetKind(value string) (AssetKind, error) {
	for _, candidate := range validAssetKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid asset kind %q", value)
}
