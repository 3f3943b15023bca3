package password

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerify(t *testing.T) {
	encoded, err := Hash("s3cret-pass")
	require.NoError(t, err)

	assert.True(t, Verify("s3cret-pass", encoded))
	assert.False(t, Verify("wrong", encoded))
	assert.False(t, Verify("s3cret-pass", "not-a-hash"))
	assert.False(t, Verify("s3cret-pass", "$bcrypt$v=19$m=1,t=1,p=1$aa$bb"))
}
