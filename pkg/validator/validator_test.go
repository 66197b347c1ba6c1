package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type joinInput struct {
	RoomCode string `json:"room_code" validate:"required,len=6,alphanum"`
	Nickname string `json:"nickname" validate:"required,max=5"`
	Ignored  string `json:"-"`
}

func TestValidate(t *testing.T) {
	v := NewValidator()

	errs, ok := v.Validate(joinInput{RoomCode: "ABC123", Nickname: "bob"})
	assert.True(t, ok)
	assert.Empty(t, errs)

	errs, ok = v.Validate(joinInput{RoomCode: "AB-12", Nickname: "toolongname"})
	require.False(t, ok)
	require.Len(t, errs, 2)
	assert.Equal(t, "room_code", errs[0].Field)
	assert.Equal(t, "LEN", errs[0].Code)
	assert.Equal(t, "nickname", errs[1].Field)
	assert.Equal(t, "MAX", errs[1].Code)
	assert.Equal(t, "nickname must not exceed 5 characters", errs[1].Message)

	errs, ok = v.Validate(joinInput{})
	require.False(t, ok)
	assert.Equal(t, "room_code is required", errs[0].Message)
}
