package generator

import (
	"fmt"
	"strings"
	"time"

	"github.com/cartoncaps/analytics/internal/entropy"
	apperrors "github.com/cartoncaps/analytics/internal/errors"
	"github.com/cartoncaps/analytics/internal/models"
	"github.com/cartoncaps/analytics/internal/types"
)

const (
	existingUserFraction = 0.65
	baseVerifiedRate     = 0.94
	// attempts at first.last### before falling back to a random handle
	baseEmailAttempts = 32
)

var (
	baseFirstNames = []string{
		"James", "Mary", "John", "Patricia", "Robert", "Jennifer",
		"Michael", "Linda", "William", "Elizabeth", "David", "Barbara",
		"Richard", "Susan", "Joseph", "Jessica", "Thomas", "Sarah",
	}
	baseLastNames = []string{
		"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia",
		"Miller", "Davis", "Rodriguez", "Martinez", "Hernandez", "Lopez",
	}

	baseUserTypes = entropy.MustDistribution(types.UserTypes, []float64{0.7, 0.2, 0.1})

	acquisitionChannels = entropy.MustDistribution(
		[]types.MarketingChannel{
			types.ChannelOrganic, types.ChannelPaidSocial, types.ChannelPaidSearch,
			types.ChannelInfluencer, types.ChannelPartner, types.ChannelSchoolCampaign,
		},
		[]float64{0.35, 0.18, 0.18, 0.06, 0.08, 0.15},
	)
)

// GenerateUsers appends n base users to the population. Schools must exist.
func (g *Generator) GenerateUsers(n int) ([]*models.User, error) {
	if len(g.schools) == 0 {
		return nil, apperrors.NewPreconditionError(StageUsers, "schools must be generated before users")
	}
	if n < 0 {
		return nil, apperrors.NewInvalidParameterError("users", "must not be negative")
	}
	if err := g.pop.Open(StageUsers); err != nil {
		return nil, err
	}
	defer g.pop.Close()

	stats := newStageStats(StageUsers)
	window := g.params.Window

	for i := 0; i < n; i++ {
		first := entropy.Choice(g.src, baseFirstNames)
		last := entropy.Choice(g.src, baseLastNames)

		var createdAt time.Time
		if g.src.Bernoulli(existingUserFraction) {
			createdAt = window.Start.Add(-time.Duration(g.src.IntRange(1, 365)) * 24 * time.Hour)
		} else {
			createdAt = g.src.UniformDatetime(window.Start, window.End)
		}

		user := &models.User{
			UserID:           g.pop.NextID(),
			FirstName:        first,
			LastName:         last,
			Email:            g.baseEmail(first, last),
			SchoolID:         entropy.Choice(g.src, g.schools).SchoolID,
			CreatedAt:        createdAt,
			UserType:         baseUserTypes.Sample(g.src),
			IsVerified:       g.src.Bernoulli(baseVerifiedRate),
			DeviceID:         g.src.DeviceID(),
			MarketingChannel: acquisitionChannels.Sample(g.src),
		}
		if err := g.pop.Append(user); err != nil {
			return nil, err
		}
		stats.Emitted++
	}

	g.finishStage(stats)
	return g.pop.Users(), nil
}

// baseEmail builds first.last###@email.com, resampling the suffix on collision
func (g *Generator) baseEmail(first, last string) string {
	prefix := strings.ToLower(first) + "." + strings.ToLower(last)
	for attempt := 0; attempt < baseEmailAttempts; attempt++ {
		email := fmt.Sprintf("%s%d@email.com", prefix, g.src.IntRange(1, 999))
		if !g.pop.EmailTaken(email) {
			return email
		}
	}
	return g.src.UniqueEmail(g.pop.EmailTaken)
}
