package generator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartoncaps/analytics/internal/entropy"
	apperrors "github.com/cartoncaps/analytics/internal/errors"
	"github.com/cartoncaps/analytics/internal/models"
)

func testUser(id int64, email, device string) *models.User {
	return &models.User{UserID: id, Email: email, DeviceID: device, SchoolID: 1}
}

func TestPopulation_AppendRequiresOpenStage(t *testing.T) {
	p := NewPopulation()

	err := p.Append(testUser(1, "a@b.com", "dev_1"))
	require.Error(t, err)
	assert.Equal(t, apperrors.CategoryPrecondition, apperrors.Categorize(err).Category)

	require.NoError(t, p.Open(StageUsers))
	require.NoError(t, p.Append(testUser(1, "a@b.com", "dev_1")))
	p.Close()

	assert.Error(t, p.Append(testUser(2, "c@d.com", "dev_2")))
	assert.Equal(t, 1, p.Len())
}

func TestPopulation_OpenIsExclusive(t *testing.T) {
	p := NewPopulation()
	require.NoError(t, p.Open(StageUsers))

	err := p.Open(StageReferrals)
	require.Error(t, err)
	assert.Contains(t, err.Error(), StageUsers)

	p.Close()
	assert.NoError(t, p.Open(StageReferrals))
}

func TestPopulation_Freeze(t *testing.T) {
	p := NewPopulation()
	require.NoError(t, p.Open(StageReferrals))
	require.NoError(t, p.Append(testUser(1, "a@b.com", "dev_1")))
	p.Freeze()

	assert.True(t, p.Frozen())
	err := p.Open(StageUsers)
	require.Error(t, err)
	assert.Equal(t, apperrors.CategoryPrecondition, apperrors.Categorize(err).Category)
	assert.Error(t, p.Append(testUser(2, "c@d.com", "dev_2")))
}

func TestPopulation_AppendValidation(t *testing.T) {
	p := NewPopulation()
	require.NoError(t, p.Open(StageUsers))
	require.NoError(t, p.Append(testUser(1, "Mary.Smith@email.com", "dev_1")))

	t.Run("id must be next", func(t *testing.T) {
		err := p.Append(testUser(3, "x@y.com", "dev_3"))
		require.Error(t, err)
		assert.Equal(t, apperrors.CodeInvalidParameter, apperrors.Categorize(err).Code)
	})

	t.Run("email unique ignoring case", func(t *testing.T) {
		err := p.Append(testUser(2, "mary.smith@EMAIL.com", "dev_2"))
		require.Error(t, err)
		assert.Equal(t, apperrors.CodeInvalidParameter, apperrors.Categorize(err).Code)
	})

	assert.Equal(t, 1, p.Version())
	assert.Equal(t, int64(2), p.NextID())
}

func TestPopulation_Indexes(t *testing.T) {
	p := NewPopulation()
	require.NoError(t, p.Open(StageUsers))
	assert.False(t, p.HasDevices())

	require.NoError(t, p.Append(testUser(1, "a@b.com", "dev_1")))
	require.NoError(t, p.Append(testUser(2, "c@d.com", "dev_1")))
	require.NoError(t, p.Append(testUser(3, "e@f.com", "dev_2")))

	assert.True(t, p.HasDevices())
	assert.Equal(t, 1, p.DeviceCollisions())
	assert.Equal(t, 3, p.Version())

	u, ok := p.Get(2)
	require.True(t, ok)
	assert.Equal(t, "c@d.com", u.Email)
	_, ok = p.Get(0)
	assert.False(t, ok)
	_, ok = p.Get(4)
	assert.False(t, ok)

	src := entropy.NewSource(1)
	for i := 0; i < 20; i++ {
		assert.Contains(t, []string{"dev_1", "dev_2"}, p.RandomDevice(src))
	}
}

func TestPopulation_EmailReservation(t *testing.T) {
	p := NewPopulation()
	require.NoError(t, p.Open(StageReferrals))
	require.NoError(t, p.Append(testUser(1, "a@b.com", "dev_1")))

	assert.True(t, p.EmailTaken("a@b.com"))
	assert.False(t, p.EmailTaken("friend@gmail.com"))

	p.ReserveEmail("Friend@Gmail.com")
	assert.True(t, p.EmailTaken("friend@gmail.com"))

	// a reserved email can still be claimed by the user it was reserved for
	assert.NoError(t, p.Append(testUser(2, "friend@gmail.com", "dev_2")))
}
