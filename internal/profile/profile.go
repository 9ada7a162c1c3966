package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type AgeGroup string

const (
	AgeUnder18   AgeGroup = "under_18"
	Age18To32    AgeGroup = "18_32"
	Age32To56    AgeGroup = "32_56"
	Age56AndOver AgeGroup = "56_plus"
)

type Gender string

const (
	GenderFemale Gender = "female"
	GenderMale   Gender = "male"
	GenderOther  Gender = "other"
)

type SkinType string

const (
	SkinOily        SkinType = "oily"
	SkinDry         SkinType = "dry"
	SkinCombination SkinType = "combination"
)

// Profile personalizes an analysis. The JSON shape is the one the analysis
// service expects under "user_profile".
type Profile struct {
	AgeGroup AgeGroup `json:"age"`
	Gender   Gender   `json:"gender"`
	SkinType SkinType `json:"skinType"`
}

var ErrIncompleteProfile = errors.New("age group, gender and skin type are all required")

// Validate accepts a profile only when all three fields carry a known value.
func (p Profile) Validate() error {
	if p.AgeGroup == "" || p.Gender == "" || p.SkinType == "" {
		return ErrIncompleteProfile
	}
	switch p.AgeGroup {
	case AgeUnder18, Age18To32, Age32To56, Age56AndOver:
	default:
		return fmt.Errorf("unknown age group %q", p.AgeGroup)
	}
	switch p.Gender {
	case GenderFemale, GenderMale, GenderOther:
	default:
		return fmt.Errorf("unknown gender %q", p.Gender)
	}
	switch p.SkinType {
	case SkinOily, SkinDry, SkinCombination:
	default:
		return fmt.Errorf("unknown skin type %q", p.SkinType)
	}
	return nil
}

// Store persists profiles keyed by user id. Get returns (nil, nil) when the
// user has not saved a profile yet.
type Store interface {
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	SetProfile(ctx context.Context, userID string, p Profile) error
}

// Identity is the signed-in user a flow acts for. It is passed explicitly to
// the components that need it instead of living in process-wide state.
type Identity struct {
	UserID string
}

func NewIdentity(userID string) (Identity, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Identity{}, errors.New("user id is required")
	}
	return Identity{UserID: userID}, nil
}
