package service

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"dispatch/internal/domain"
	"dispatch/internal/redis"
	"dispatch/internal/repository"
)

const (
	defaultETAWindow = 10 * time.Minute
	driverLockTTL    = 10 * time.Second
)

// RideService owns the ride lifecycle. Every transition is validated
// against the status table and committed with a conditional update, so
// concurrent callers on the same ride serialize: one wins, the rest
// observe a conflict. Driver availability flips go through the registry
// and are ordered after the ride-state commit.
type RideService struct {
	rideRepo  repository.RideRepository
	registry  *Registry
	fanout    *Fanout
	lockStore redis.LockStoreInterface
	log       *logrus.Logger
	etaWindow time.Duration
}

// NewRideService creates a new RideService. lockStore may be nil, in
// which case accept relies solely on the availability compare-and-set.
func NewRideService(
	rideRepo repository.RideRepository,
	registry *Registry,
	fanout *Fanout,
	lockStore redis.LockStoreInterface,
	log *logrus.Logger,
	etaWindow time.Duration,
) *RideService {
	if etaWindow <= 0 {
		etaWindow = defaultETAWindow
	}
	return &RideService{
		rideRepo:  rideRepo,
		registry:  registry,
		fanout:    fanout,
		lockStore: lockStore,
		log:       log,
		etaWindow: etaWindow,
	}
}

// Create persists a new ride in REQUESTED state with a fresh
// cryptographically random verification code. No driver is assigned.
func (s *RideService) Create(ctx context.Context, riderID string, pickup, destination domain.Location, class domain.VehicleClass, quote FareQuote) (*domain.Ride, error) {
	if riderID == "" {
		return nil, ErrInvalidRiderID
	}
	if !class.Valid() {
		return nil, ErrInvalidVehicleClass
	}
	amount, ok := quote.PerClass[class]
	if !ok {
		return nil, ErrInvalidVehicleClass
	}

	code, err := verificationCode()
	if err != nil {
		return nil, err
	}

	ride := &domain.Ride{
		ID:               uuid.New().String(),
		RiderID:          riderID,
		Pickup:           pickup,
		Destination:      destination,
		VehicleClass:     class,
		Status:           domain.RideStatusRequested,
		Fare:             domain.Fare{Amount: amount, Currency: quote.Currency},
		DistanceMeters:   quote.DistanceMeters,
		DurationSeconds:  quote.DurationSeconds,
		VerificationCode: code,
		RequestedAt:      time.Now(),
	}

	if err := s.rideRepo.Create(ctx, ride); err != nil {
		return nil, err
	}
	return ride, nil
}

// Accept assigns an available driver to a REQUESTED ride. The driver's
// availability is claimed first with a compare-and-set; the ride
// transition is guarded by status and version. Exactly one of any set
// of concurrent accepts wins; losers observe a conflict and the claimed
// driver is released again.
func (s *RideService) Accept(ctx context.Context, rideID, driverID string) (*domain.Ride, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}

	ride, err := s.getRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.Status != domain.RideStatusRequested {
		return nil, ErrInvalidState
	}

	if s.lockStore != nil {
		locked, err := s.lockStore.AcquireDriverLock(ctx, driverID, driverLockTTL)
		if err != nil {
			return nil, err
		}
		if !locked {
			return nil, ErrDriverUnavailable
		}
		defer func() { _ = s.lockStore.ReleaseDriverLock(ctx, driverID) }()
	}

	reserved, err := s.registry.Reserve(ctx, driverID)
	if err != nil {
		return nil, err
	}
	if !reserved {
		return nil, ErrDriverUnavailable
	}

	eta := time.Now().Add(s.etaWindow)
	ok, err := s.rideRepo.ApplyTransition(ctx, rideID, repository.RideTransition{
		From:             domain.RideStatusRequested,
		To:               domain.RideStatusAccepted,
		Version:          ride.Version,
		DriverID:         driverID,
		EstimatedArrival: eta,
	})
	if err != nil || !ok {
		// Lost the ride race after claiming the driver: compensate.
		if relErr := s.registry.Release(ctx, driverID); relErr != nil {
			s.log.WithField("driver_id", driverID).WithError(relErr).Error("failed to release driver after lost accept race")
		}
		if err != nil {
			return nil, err
		}
		return nil, ErrInvalidState
	}

	ride.Status = domain.RideStatusAccepted
	ride.Version++
	ride.DriverID = driverID
	ride.EstimatedArrival = eta

	s.fanout.StateChanged(ride, EventRideAccepted)
	return ride, nil
}

// MarkEnRoute moves an ACCEPTED ride to ON_THE_WAY. Driver-only.
func (s *RideService) MarkEnRoute(ctx context.Context, rideID, driverID string) (*domain.Ride, error) {
	ride, err := s.getRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.DriverID != driverID {
		return nil, ErrForbidden
	}
	if ride.Status != domain.RideStatusAccepted {
		return nil, &InvalidTransitionError{From: ride.Status, To: domain.RideStatusOnTheWay}
	}

	ok, err := s.rideRepo.ApplyTransition(ctx, rideID, repository.RideTransition{
		From:    ride.Status,
		To:      domain.RideStatusOnTheWay,
		Version: ride.Version,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidState
	}

	ride.Status = domain.RideStatusOnTheWay
	ride.Version++

	s.fanout.StateChanged(ride, EventRideEnRoute)
	return ride, nil
}

// Start moves an ACCEPTED or ON_THE_WAY ride to IN_PROGRESS after the
// supplied verification code matches exactly. A mismatch leaves the
// ride untouched.
func (s *RideService) Start(ctx context.Context, rideID, driverID, suppliedCode string) (*domain.Ride, error) {
	ride, err := s.getRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.DriverID != driverID {
		return nil, ErrForbidden
	}
	if !domain.CanTransition(ride.Status, domain.RideStatusInProgress) {
		return nil, &InvalidTransitionError{From: ride.Status, To: domain.RideStatusInProgress}
	}
	if suppliedCode != ride.VerificationCode {
		return nil, ErrInvalidCode
	}

	ok, err := s.rideRepo.ApplyTransition(ctx, rideID, repository.RideTransition{
		From:      ride.Status,
		To:        domain.RideStatusInProgress,
		Version:   ride.Version,
		ArrivedAt: time.Now(),
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidState
	}

	ride.Status = domain.RideStatusInProgress
	ride.Version++

	s.fanout.StateChanged(ride, EventRideStarted)
	return ride, nil
}

// Complete moves an IN_PROGRESS ride to COMPLETED and releases the
// driver back to the available pool. The ride commit is durable before
// the release and the notification are attempted.
func (s *RideService) Complete(ctx context.Context, rideID, driverID, paymentMethod string, tip int64) (*domain.Ride, error) {
	ride, err := s.getRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.DriverID != driverID {
		return nil, ErrForbidden
	}
	if !domain.CanTransition(ride.Status, domain.RideStatusCompleted) {
		return nil, &InvalidTransitionError{From: ride.Status, To: domain.RideStatusCompleted}
	}

	endedAt := time.Now()
	ok, err := s.rideRepo.ApplyTransition(ctx, rideID, repository.RideTransition{
		From:    ride.Status,
		To:      domain.RideStatusCompleted,
		Version: ride.Version,
		EndedAt: endedAt,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidState
	}

	ride.Status = domain.RideStatusCompleted
	ride.Version++
	ride.EndedAt = endedAt

	if err := s.registry.Release(ctx, driverID); err != nil {
		s.log.WithFields(logrus.Fields{
			"ride_id":   rideID,
			"driver_id": driverID,
		}).WithError(err).Error("driver release failed after completion")
	}

	event := Event{
		Type:   EventRideCompleted,
		RideID: ride.ID,
		Data: map[string]any{
			"status":         ride.Status,
			"driver_id":      ride.DriverID,
			"fare_amount":    ride.Fare.Amount,
			"payment_method": paymentMethod,
			"tip":            tip,
		},
		CreatedAt: time.Now(),
	}
	s.fanout.deliver(ride.RiderID, event)
	s.fanout.deliver(ride.DriverID, event)

	return ride, nil
}

// Cancel moves a REQUESTED or ACCEPTED ride to CANCELLED, recording the
// reason. An assigned driver is released back to the pool; the release
// is retried so a racing cancellation can never strand the driver.
func (s *RideService) Cancel(ctx context.Context, rideID, actor, reason string) (*domain.Ride, error) {
	ride, err := s.getRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if actor != ride.RiderID && (ride.DriverID == "" || actor != ride.DriverID) {
		return nil, ErrForbidden
	}
	if ride.Status != domain.RideStatusRequested && ride.Status != domain.RideStatusAccepted {
		return nil, &InvalidTransitionError{From: ride.Status, To: domain.RideStatusCancelled}
	}

	if reason == "" {
		reason = "unspecified"
	}
	ok, err := s.rideRepo.ApplyTransition(ctx, rideID, repository.RideTransition{
		From:         ride.Status,
		To:           domain.RideStatusCancelled,
		Version:      ride.Version,
		CancelReason: reason,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidState
	}

	ride.Status = domain.RideStatusCancelled
	ride.Version++
	ride.CancelReason = reason

	if ride.DriverID != "" {
		if err := s.registry.Release(ctx, ride.DriverID); err != nil {
			s.log.WithFields(logrus.Fields{
				"ride_id":   rideID,
				"driver_id": ride.DriverID,
			}).WithError(err).Error("driver release failed after cancellation")
		}
	}

	s.fanout.StateChanged(ride, EventRideCancelled)
	return ride, nil
}

// Rate records a 1-5 rating on a COMPLETED ride belonging to the rider.
func (s *RideService) Rate(ctx context.Context, rideID, riderID string, rating int, review string) error {
	if rating < 1 || rating > 5 {
		return ErrInvalidRating
	}

	ride, err := s.getRide(ctx, rideID)
	if err != nil {
		return err
	}
	if ride.RiderID != riderID {
		return ErrForbidden
	}
	if ride.Status != domain.RideStatusCompleted {
		return ErrInvalidState
	}

	ok, err := s.rideRepo.SetRating(ctx, rideID, rating, review)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidState
	}
	return nil
}

// Get retrieves a ride by ID.
func (s *RideService) Get(ctx context.Context, rideID string) (*domain.Ride, error) {
	return s.getRide(ctx, rideID)
}

// List retrieves recent rides.
func (s *RideService) List(ctx context.Context) ([]*domain.Ride, error) {
	return s.rideRepo.GetAll(ctx)
}

func (s *RideService) getRide(ctx context.Context, rideID string) (*domain.Ride, error) {
	if rideID == "" {
		return nil, ErrInvalidRideID
	}
	ride, err := s.rideRepo.GetByID(ctx, rideID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return ride, nil
}

// verificationCode generates 6 cryptographically random decimal digits.
func verificationCode() (string, error) {
	const digits = "0123456789"
	code := make([]byte, 6)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(digits))))
		if err != nil {
			return "", err
		}
		code[i] = digits[n.Int64()]
	}
	return string(code), nil
}
