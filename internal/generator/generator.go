// Package generator produces the synthetic loyalty dataset.
//
// Stages run strictly in order, each consuming the complete output of the
// previous ones:
//
//	schools -> users -> products -> referrals -> purchases -> events
//
// The referral stage may append users; the population is frozen when it ends.
// All randomness comes from one seeded entropy.Source owned by the Generator.
package generator

import (
	"fmt"

	"github.com/cartoncaps/analytics/internal/entropy"
	apperrors "github.com/cartoncaps/analytics/internal/errors"
	"github.com/cartoncaps/analytics/internal/logging"
	"github.com/cartoncaps/analytics/internal/models"
)

// Stage names
const (
	StageSchools   = "schools"
	StageUsers     = "users"
	StageProducts  = "products"
	StageReferrals = "referrals"
	StagePurchases = "purchases"
	StageEvents    = "events"
)

// Params are the generation parameters of one run
type Params struct {
	Seed      uint64        `json:"seed"`
	Window    models.Window `json:"window"`
	Schools   int           `json:"schools"`
	Users     int           `json:"users"`
	Products  int           `json:"products"`
	Referrals int           `json:"referrals"`
	Purchases int           `json:"purchases"`
}

// Validate checks the parameters before any draw is made
func (p Params) Validate() error {
	if p.Window.End.Before(p.Window.Start) {
		return apperrors.NewInvalidParameterError("window", "end must not be before start")
	}
	counts := map[string]int{
		StageSchools: p.Schools, StageUsers: p.Users, StageProducts: p.Products,
		StageReferrals: p.Referrals, StagePurchases: p.Purchases,
	}
	for _, name := range []string{StageSchools, StageUsers, StageProducts, StageReferrals, StagePurchases} {
		if counts[name] < 0 {
			return apperrors.NewInvalidParameterError(name, fmt.Sprintf("must not be negative, got %d", counts[name]))
		}
	}
	return nil
}

// Result is the output of a full run
type Result struct {
	Dataset *models.Dataset `json:"-"`
	Stages  []*StageStats   `json:"stages"`
	Funnel  FunnelStats     `json:"funnel"`
	// DeviceCollisions counts users whose device id was already in use
	DeviceCollisions int `json:"device_collisions"`
}

// Generator owns the random source and every in-memory table for one run.
// It is single-use and not safe for concurrent use.
type Generator struct {
	params    Params
	src       *entropy.Source
	logger    *logging.Logger
	pop       *Population
	schools   []*models.School
	products  []*models.Product
	referrals []*models.Referral
	purchases []*models.Purchase
	events    []*models.Event
	stats     []*StageStats
	completed map[string]bool
	funnel    FunnelStats
}

// New creates a generator for params
func New(params Params, logger *logging.Logger) (*Generator, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Generator{
		params:    params,
		src:       entropy.NewSource(params.Seed),
		logger:    logger.WithField("component", "generator"),
		pop:       NewPopulation(),
		completed: make(map[string]bool),
	}, nil
}

// Population returns the run's user population
func (g *Generator) Population() *Population {
	return g.pop
}

func (g *Generator) finishStage(stats *StageStats) {
	g.stats = append(g.stats, stats)
	g.completed[stats.Stage] = true

	fields := map[string]interface{}{
		"stage":   stats.Stage,
		"emitted": stats.Emitted,
		"dropped": stats.TotalDropped(),
	}
	for _, reason := range stats.Reasons() {
		fields["dropped_"+string(reason)] = stats.Dropped[reason]
	}
	g.logger.WithFields(fields).Info("Stage complete")
}

// Run executes every stage in order and returns the dataset
func (g *Generator) Run() (*Result, error) {
	p := g.params
	if _, err := g.GenerateSchools(p.Schools); err != nil {
		return nil, fmt.Errorf("generate schools: %w", err)
	}
	if _, err := g.GenerateUsers(p.Users); err != nil {
		return nil, fmt.Errorf("generate users: %w", err)
	}
	if _, err := g.GenerateProducts(p.Products); err != nil {
		return nil, fmt.Errorf("generate products: %w", err)
	}
	if _, err := g.GenerateReferrals(p.Referrals); err != nil {
		return nil, fmt.Errorf("generate referrals: %w", err)
	}
	if _, err := g.GeneratePurchases(p.Purchases); err != nil {
		return nil, fmt.Errorf("generate purchases: %w", err)
	}
	if _, err := g.GenerateEvents(); err != nil {
		return nil, fmt.Errorf("generate events: %w", err)
	}

	return &Result{
		Dataset: &models.Dataset{
			Window:    p.Window,
			Schools:   g.schools,
			Users:     g.pop.Users(),
			Products:  g.products,
			Referrals: g.referrals,
			Purchases: g.purchases,
			Events:    g.events,
		},
		Stages:           g.stats,
		Funnel:           g.funnel,
		DeviceCollisions: g.pop.DeviceCollisions(),
	}, nil
}

// Generate is a convenience wrapper for New followed by Run
func Generate(params Params, logger *logging.Logger) (*Result, error) {
	g, err := New(params, logger)
	if err != nil {
		return nil, err
	}
	return g.Run()
}
