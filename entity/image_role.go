package entity

// ImageRole names an image slot on an owning entity.
type ImageRole string

const (
	ImageRoleListing ImageRole = "listing"
	ImageRoleProfile ImageRole = "profile"
	ImageRoleCover   ImageRole = "cover"
)

func (r ImageRole) Valid() bool {
	switch r {
	case ImageRoleListing, ImageRoleProfile, ImageRoleCover:
		return true
	}
	return false
}

// OwnerTable is the table holding the manifest column for the role.
func (r ImageRole) OwnerTable() string {
	if r == ImageRoleListing {
		return "properties"
	}
	return "users"
}

// ManifestColumn is the column the role's manifest is persisted in.
func (r ImageRole) ManifestColumn() string {
	switch r {
	case ImageRoleProfile:
		return "profile_photo"
	case ImageRoleCover:
		return "cover_photo"
	default:
		return "photos"
	}
}
