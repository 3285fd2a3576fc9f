package shared

import (
	"errors"
	"testing"

	"github.com/ashureev/skill-worlds/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Email string `json:"email" validate:"required,email"`
	Age   int    `json:"age" validate:"min=1,max=120"`
	Name  string `json:"full_name" validate:"required,max=5"`
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		in     sample
		field  string
		reason string
	}{
		{name: "valid", in: sample{Email: "a@b.co", Age: 20, Name: "Ada"}},
		{name: "missing email", in: sample{Age: 20, Name: "Ada"}, field: "email", reason: "is required"},
		{name: "bad email", in: sample{Email: "nope", Age: 20, Name: "Ada"}, field: "email", reason: "must be a valid email address"},
		{name: "age too high", in: sample{Email: "a@b.co", Age: 121, Name: "Ada"}, field: "age", reason: "must be at most 120"},
		{name: "long name", in: sample{Email: "a@b.co", Age: 20, Name: "Adelaide"}, field: "full_name", reason: "must be at most 5 characters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.in)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
			var ie *domain.InputError
			require.True(t, errors.As(err, &ie))
			assert.Equal(t, tt.field, ie.Field)
			assert.Equal(t, tt.reason, ie.Reason)
		})
	}
}
