package generator

import (
	"fmt"
	"time"

	"github.com/cartoncaps/analytics/internal/entropy"
	apperrors "github.com/cartoncaps/analytics/internal/errors"
	"github.com/cartoncaps/analytics/internal/models"
)

var (
	schoolNames = []string{
		"Sunnydale", "Springfield", "Hawkins", "Hill Valley", "Twin Peaks",
		"Rivendell", "Waterdeep", "Neverwinter", "Baldur", "Ravenloft",
		"Ooo", "Candy Kingdom", "Fire Kingdom", "Cloud Kingdom",
		"Arrakis", "Caladan", "Kaitain", "Ix",
		"Fairview", "Georgetown", "Riverside", "Madison",
	}
	schoolTypes   = []string{"Elementary", "Middle", "High"}
	streetNames   = []string{"Main", "Oak", "Elm", "School"}
	schoolCities  = []string{"Springfield", "Riverside", "Madison", "Georgetown", "Fairview"}
	schoolStates  = []string{"CA", "TX", "NY", "FL", "IL"}
	schoolKeySize = len(schoolNames) * len(schoolTypes)
)

// GenerateSchools creates n schools with unique (name, type) keys, each
// backdated 1-5 years before the window start.
func (g *Generator) GenerateSchools(n int) ([]*models.School, error) {
	if n < 0 || n > schoolKeySize {
		return nil, apperrors.NewInvalidParameterError("schools",
			fmt.Sprintf("must be between 0 and %d unique name/type combinations, got %d", schoolKeySize, n))
	}

	stats := newStageStats(StageSchools)
	used := make(map[string]struct{}, n)
	schools := make([]*models.School, 0, n)

	for i := 0; i < n; i++ {
		var name, schoolType string
		for {
			name = entropy.Choice(g.src, schoolNames)
			schoolType = entropy.Choice(g.src, schoolTypes)
			key := name + " " + schoolType
			if _, dup := used[key]; !dup {
				used[key] = struct{}{}
				break
			}
		}

		backdate := time.Duration(g.src.IntRange(365, 1825)) * 24 * time.Hour
		school := &models.School{
			SchoolID:  int64(i + 1),
			Name:      fmt.Sprintf("%s %s School", name, schoolType),
			Address:   fmt.Sprintf("%d %s St", g.src.IntRange(100, 9999), entropy.Choice(g.src, streetNames)),
			City:      entropy.Choice(g.src, schoolCities),
			State:     entropy.Choice(g.src, schoolStates),
			Zip:       fmt.Sprintf("%d", g.src.IntRange(10000, 99999)),
			CreatedAt: g.params.Window.Start.Add(-backdate),
		}
		schools = append(schools, school)
		stats.Emitted++
	}

	g.schools = schools
	g.finishStage(stats)
	return schools, nil
}
