package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validProfile() *UserProfile {
	return &UserProfile{
		UserID:          1,
		FirstName:       "Alex",
		Age:             25,
		Gender:          GenderMale,
		Education:       "Bachelor",
		Interests:       []string{"Tech"},
		Languages:       []string{"English"},
		PreferredGender: PreferenceAny,
	}
}

func TestValidateAcceptsCompleteProfile(t *testing.T) {
	assert.NoError(t, validProfile().Validate())
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*UserProfile)
		field  string
	}{
		{"zero user id", func(u *UserProfile) { u.UserID = 0 }, "user_id"},
		{"missing first name", func(u *UserProfile) { u.FirstName = "" }, "first_name"},
		{"under min age", func(u *UserProfile) { u.Age = MinAge - 1 }, "age"},
		{"over max age", func(u *UserProfile) { u.Age = MaxAge + 1 }, "age"},
		{"unknown gender", func(u *UserProfile) { u.Gender = "Other" }, "gender"},
		{"missing education", func(u *UserProfile) { u.Education = "" }, "education"},
		{"no interests", func(u *UserProfile) { u.Interests = nil }, "interests"},
		{"too many interests", func(u *UserProfile) {
			u.Interests = make([]string, MaxInterests+1)
		}, "interests"},
		{"no languages", func(u *UserProfile) { u.Languages = nil }, "languages"},
		{"too many languages", func(u *UserProfile) {
			u.Languages = make([]string, MaxLanguages+1)
		}, "languages"},
		{"unknown preference", func(u *UserProfile) { u.PreferredGender = "Robots only" }, "preferred_gender"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := validProfile()
			tt.mutate(u)

			err := u.Validate()
			require.Error(t, err)

			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tt.field, validationErr.Field)
		})
	}
}

func TestBoundaryAgesAreValid(t *testing.T) {
	u := validProfile()

	u.Age = MinAge
	assert.NoError(t, u.Validate())

	u.Age = MaxAge
	assert.NoError(t, u.Validate())
}
