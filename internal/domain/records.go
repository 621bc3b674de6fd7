package domain

import "time"

// Flight is a bookable flight.
type Flight struct {
	ID               string    `bson:"_id,omitempty" json:"id"`
	DepartureAirport string    `bson:"departure_airport" json:"departure_airport"`
	ArrivalAirport   string    `bson:"arrival_airport" json:"arrival_airport"`
	Airline          string    `bson:"airline" json:"airline"`
	DepartureTime    time.Time `bson:"departure_time" json:"departure_time"`
	Price            float64   `bson:"price" json:"price"`
}

// Shuttle is a bookable airport shuttle.
type Shuttle struct {
	ID             string    `bson:"_id,omitempty" json:"id"`
	FromAirport    string    `bson:"from_airport" json:"from_airport"`
	To             string    `bson:"to" json:"to"`
	PickupDatetime time.Time `bson:"pickup_datetime" json:"pickup_datetime"`
	Price          float64   `bson:"price" json:"price"`
}

// Hotel is a bookable hotel stay. Dates are YYYY-MM-DD.
type Hotel struct {
	ID           string `bson:"_id,omitempty" json:"id"`
	Location     string `bson:"location" json:"location"`
	Name         string `bson:"name" json:"name"`
	PriceTier    string `bson:"price_tier" json:"price_tier"`
	CheckinDate  string `bson:"checkin_date" json:"checkin_date"`
	CheckoutDate string `bson:"checkout_date" json:"checkout_date"`
	Booked       int    `bson:"booked" json:"booked"`
}

// Tour is a guided tour offering.
type Tour struct {
	ID           string `bson:"_id,omitempty" json:"id"`
	Destination  string `bson:"destination" json:"destination"`
	DurationDays int    `bson:"duration_days" json:"duration_days"`
}

// User is a customer account with a spendable balance.
type User struct {
	ID      string  `bson:"_id,omitempty" json:"id"`
	Name    string  `bson:"name,omitempty" json:"name,omitempty"`
	Balance float64 `bson:"balance" json:"balance"`
}

// BookingKind distinguishes the booking collections.
type BookingKind string

const (
	BookingFlight  BookingKind = "flight"
	BookingShuttle BookingKind = "shuttle"
	BookingHotel   BookingKind = "hotel"
)

// Booking records a confirmed reservation.
type Booking struct {
	ID          string      `bson:"_id,omitempty" json:"id"`
	UserID      string      `bson:"user_id" json:"user_id"`
	ResourceID  string      `bson:"resource_id" json:"resource_id"`
	Kind        BookingKind `bson:"kind" json:"kind"`
	BookingTime time.Time   `bson:"booking_time" json:"booking_time"`
	Status      string      `bson:"status" json:"status"`
}
