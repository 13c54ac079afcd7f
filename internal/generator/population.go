package generator

import (
	"fmt"
	"strings"

	"github.com/cartoncaps/analytics/internal/entropy"
	apperrors "github.com/cartoncaps/analytics/internal/errors"
	"github.com/cartoncaps/analytics/internal/models"
)

// Population is the run's single growable user collection.
//
// Users are appended only while a stage holds the population open. Once frozen
// (after the referral stage) the population is read-only for the rest of the run.
// Version increases with every append so readers can detect growth.
type Population struct {
	users    []*models.User
	byEmail  map[string]int64 // lower-cased email -> user id
	reserved map[string]struct{}
	devices  []string // distinct device ids in first-seen order
	deviceN  map[string]int
	openBy   string
	frozen   bool
	version  int
}

// NewPopulation creates an empty population
func NewPopulation() *Population {
	return &Population{
		byEmail:  make(map[string]int64),
		reserved: make(map[string]struct{}),
		deviceN:  make(map[string]int),
	}
}

// Open grants a stage write access; it fails once the population is frozen
// or while another stage holds it.
func (p *Population) Open(stage string) error {
	if p.frozen {
		return apperrors.NewPreconditionError(stage, "population is frozen")
	}
	if p.openBy != "" {
		return apperrors.NewPreconditionError(stage, fmt.Sprintf("population is held open by %s", p.openBy))
	}
	p.openBy = stage
	return nil
}

// Close ends the current stage's write access
func (p *Population) Close() {
	p.openBy = ""
}

// Freeze closes the population for the remainder of the run
func (p *Population) Freeze() {
	p.openBy = ""
	p.frozen = true
}

// Frozen reports whether the population is read-only
func (p *Population) Frozen() bool {
	return p.frozen
}

// Version returns the number of appends so far
func (p *Population) Version() int {
	return p.version
}

// NextID returns the id the next appended user must carry
func (p *Population) NextID() int64 {
	return int64(len(p.users)) + 1
}

// Append adds a user. The id must be NextID and the email must be unused.
func (p *Population) Append(u *models.User) error {
	if p.openBy == "" {
		return apperrors.NewPreconditionError("population", "append outside an open stage")
	}
	if u.UserID != p.NextID() {
		return apperrors.NewInvalidParameterError("user_id", fmt.Sprintf("expected %d, got %d", p.NextID(), u.UserID))
	}
	email := strings.ToLower(u.Email)
	if _, exists := p.byEmail[email]; exists {
		return apperrors.NewInvalidParameterError("email", fmt.Sprintf("%s already belongs to a user", u.Email))
	}

	p.users = append(p.users, u)
	p.byEmail[email] = u.UserID
	if p.deviceN[u.DeviceID] == 0 {
		p.devices = append(p.devices, u.DeviceID)
	}
	p.deviceN[u.DeviceID]++
	p.version++
	return nil
}

// Len returns the number of users
func (p *Population) Len() int {
	return len(p.users)
}

// Users returns the users in id order. Callers must not modify the slice.
func (p *Population) Users() []*models.User {
	return p.users
}

// Get returns the user with the given id
func (p *Population) Get(id int64) (*models.User, bool) {
	if id < 1 || id > int64(len(p.users)) {
		return nil, false
	}
	return p.users[id-1], true
}

// ReserveEmail marks a referral target email as used. Reservations are permanent.
func (p *Population) ReserveEmail(email string) {
	p.reserved[strings.ToLower(email)] = struct{}{}
}

// EmailTaken reports whether a lower-cased email belongs to a user or a reservation
func (p *Population) EmailTaken(email string) bool {
	if _, ok := p.byEmail[email]; ok {
		return true
	}
	_, ok := p.reserved[email]
	return ok
}

// HasDevices reports whether any device id has been seen
func (p *Population) HasDevices() bool {
	return len(p.devices) > 0
}

// RandomDevice returns a uniformly chosen existing device id
func (p *Population) RandomDevice(src *entropy.Source) string {
	return entropy.Choice(src, p.devices)
}

// DeviceCollisions returns the number of users sharing a device with an earlier user
func (p *Population) DeviceCollisions() int {
	return len(p.users) - len(p.devices)
}
