// Package booking holds the travel inventory and the balance-checked booking
// operations over it. Stores are safe for concurrent use across sessions.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/soyeahso/tripdesk/internal/domain"
)

// ErrNotFound is returned by lookups of unknown records.
var ErrNotFound = errors.New("booking: not found")

// User-facing results of booking operations.
const (
	MsgConfirmed           = "Booking confirmed."
	MsgInsufficientBalance = "Your account balance is insufficient for this booking."
	MsgHotelBooked         = "Hotel is already booked."
)

// StatusConfirmed is the status of every booking written by a store.
const StatusConfirmed = "confirmed"

func notFound(kind, id string) string {
	return fmt.Sprintf("%s %s not found.", kind, id)
}

// FlightQuery filters flights. Zero fields impose no constraint.
type FlightQuery struct {
	DepartureAirport string
	ArrivalAirport   string
	Airline          string
	// DepartureDay matches flights departing on that UTC calendar day.
	DepartureDay *time.Time
}

// ShuttleQuery filters shuttles. Zero fields impose no constraint.
type ShuttleQuery struct {
	FromAirport    string
	To             string
	PickupDatetime *time.Time
}

// HotelQuery filters hotels. Zero fields impose no constraint.
type HotelQuery struct {
	Location     string
	Name         string
	PriceTier    string
	CheckinDate  string
	CheckoutDate string
}

// TourQuery filters tours. Zero fields impose no constraint.
type TourQuery struct {
	Destination  string
	DurationDays int
}

// Outcome is the result of a booking attempt. Domain failures such as an
// insufficient balance are outcomes, not errors.
type Outcome struct {
	OK      bool
	Message string
	Booking *domain.Booking
}

func failed(msg string) Outcome { return Outcome{Message: msg} }

func confirmed(b *domain.Booking) Outcome {
	return Outcome{OK: true, Message: MsgConfirmed, Booking: b}
}

// Dataset is a full inventory, used for seeding.
type Dataset struct {
	Flights  []domain.Flight
	Shuttles []domain.Shuttle
	Hotels   []domain.Hotel
	Tours    []domain.Tour
	Users    []domain.User
}

// Store is the booking database.
type Store interface {
	SearchFlights(ctx context.Context, q FlightQuery) ([]domain.Flight, error)
	SearchShuttles(ctx context.Context, q ShuttleQuery) ([]domain.Shuttle, error)
	SearchHotels(ctx context.Context, q HotelQuery) ([]domain.Hotel, error)
	SearchTours(ctx context.Context, q TourQuery) ([]domain.Tour, error)

	// BookFlight debits the flight price from userID and records a booking,
	// or does neither.
	BookFlight(ctx context.Context, userID, flightID string) (Outcome, error)
	// BookShuttle debits the shuttle price from userID and records a
	// booking, or does neither.
	BookShuttle(ctx context.Context, userID, shuttleID string) (Outcome, error)
	// BookHotel marks the hotel booked and records a booking, or does neither.
	BookHotel(ctx context.Context, userID, hotelID string) (Outcome, error)

	User(ctx context.Context, id string) (*domain.User, error)
	Bookings(ctx context.Context, userID string) ([]domain.Booking, error)

	// Seed inserts the dataset, replacing records with the same ids.
	Seed(ctx context.Context, d Dataset) error
	Close(ctx context.Context) error
}

// sameDay reports whether t falls on day's UTC calendar date.
func sameDay(t time.Time, day time.Time) bool {
	return t.UTC().Format(time.DateOnly) == day.UTC().Format(time.DateOnly)
}
